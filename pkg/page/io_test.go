package page_test

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/bobboyms/dbcore/pkg/page"
)

func fillPage(b byte) []byte {
	buf := make([]byte, page.Size)
	for i := range buf {
		buf[i] = b
	}
	return buf
}

func TestPageIO_NoEncryptMode_WriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	io, err := page.NewPageIO(filepath.Join(dir, "data.db"), nil)
	if err != nil {
		t.Fatalf("NewPageIO: %v", err)
	}
	defer io.Close()

	if err := io.Truncate(1); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	want := fillPage(0xAB)
	if err := io.WritePage(0, want); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	got, err := io.ReadPage(0)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("round trip mismatch in no_encrypt_mode")
	}
}

func TestPageIO_EncryptedMode_WriteReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	key := bytes.Repeat([]byte{0x01}, 32)
	io, err := page.NewPageIO(filepath.Join(dir, "data.db"), key)
	if err != nil {
		t.Fatalf("NewPageIO: %v", err)
	}
	defer io.Close()

	if err := io.Truncate(1); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	want := fillPage(0xCD)
	if err := io.WritePage(0, want); err != nil {
		t.Fatalf("WritePage: %v", err)
	}

	got, err := io.ReadPage(0)
	if err != nil {
		t.Fatalf("ReadPage: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatal("round trip mismatch in encrypted mode")
	}
}

func TestPageIO_EncryptedMode_WrongKey_Fails(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.db")
	key := bytes.Repeat([]byte{0x01}, 32)

	io1, err := page.NewPageIO(path, key)
	if err != nil {
		t.Fatalf("NewPageIO: %v", err)
	}
	if err := io1.Truncate(1); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if err := io1.WritePage(0, fillPage(0x11)); err != nil {
		t.Fatalf("WritePage: %v", err)
	}
	io1.Close()

	wrongKey := bytes.Repeat([]byte{0x02}, 32)
	io2, err := page.NewPageIO(path, wrongKey)
	if err != nil {
		t.Fatalf("NewPageIO: %v", err)
	}
	defer io2.Close()

	if _, err := io2.ReadPage(0); err == nil {
		t.Fatal("expected decryption failure with wrong key")
	}
}

func TestPageIO_ReadPageInto_RejectsWrongBufferSize(t *testing.T) {
	dir := t.TempDir()
	io, err := page.NewPageIO(filepath.Join(dir, "data.db"), nil)
	if err != nil {
		t.Fatalf("NewPageIO: %v", err)
	}
	defer io.Close()

	if err := io.Truncate(1); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	if err := io.ReadPageInto(0, make([]byte, 10)); err == nil {
		t.Fatal("expected error for undersized buffer")
	}
}

func TestPageIO_PageCount_GrowsWithTruncate(t *testing.T) {
	dir := t.TempDir()
	io, err := page.NewPageIO(filepath.Join(dir, "data.db"), nil)
	if err != nil {
		t.Fatalf("NewPageIO: %v", err)
	}
	defer io.Close()

	if err := io.Truncate(5); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	count, err := io.PageCount()
	if err != nil {
		t.Fatalf("PageCount: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5 pages, got %d", count)
	}
}
