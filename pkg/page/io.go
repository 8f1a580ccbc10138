package page

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"sync"

	"github.com/bobboyms/dbcore/pkg/crypto"
	dbErrors "github.com/bobboyms/dbcore/pkg/errors"
)

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// crcSize and the on-disk slot layout. Each disk page is:
//
//	[nonce(12) | AEAD(plaintext ‖ crc32(4))(variable) | tag(16)]    when encrypted
//	[zeros(12) | plaintext ‖ crc32(4)                 | zeros(16)] when no_encrypt_mode
//
// The CRC32 covers the decrypted plaintext only, so a mismatch after a
// successful AEAD open still distinguishes logic corruption from tampering.
const crcSize = 4

// PageIO reads and writes fixed-size pages to an underlying file, handling
// the encryption envelope and checksum transparently.
type PageIO struct {
	mu            sync.RWMutex
	file          *os.File
	enc           *crypto.Encryptor // nil in no_encrypt_mode
	noEncryptMode bool
	diskPageSize  int64
}

// NewPageIO opens (or creates) a data file for page-level access. If key is
// nil, the file is opened in no_encrypt_mode and pages are stored as
// plaintext with a zero-filled nonce/tag region.
func NewPageIO(path string, key []byte) (*PageIO, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, &dbErrors.IoError{Path: path, Err: err}
	}

	io := &PageIO{file: f}
	if len(key) == 0 {
		io.noEncryptMode = true
		io.diskPageSize = int64(Size)
		return io, nil
	}

	enc, err := crypto.NewEncryptor(key)
	if err != nil {
		f.Close()
		return nil, err
	}
	io.enc = enc
	io.diskPageSize = int64(Size) + int64(crypto.Overhead)
	return io, nil
}

// DiskPageSize returns the on-disk footprint of one page, including the
// encryption envelope when enabled.
func (p *PageIO) DiskPageSize() int64 {
	return p.diskPageSize
}

// NoEncryptMode reports whether this PageIO was opened without a key.
func (p *PageIO) NoEncryptMode() bool {
	return p.noEncryptMode
}

// ReadPage reads and decodes the page at id, returning a fresh Size-length
// plaintext buffer.
func (p *PageIO) ReadPage(id int64) ([]byte, error) {
	buf := make([]byte, Size)
	if err := p.ReadPageInto(id, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// ReadPageInto decodes the page at id into a caller-supplied Size-length
// buffer, avoiding an allocation on the hot path.
func (p *PageIO) ReadPageInto(id int64, dst []byte) error {
	if len(dst) != Size {
		return fmt.Errorf("page: dst must be %d bytes, got %d", Size, len(dst))
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	raw := make([]byte, p.diskPageSize)
	off := id * p.diskPageSize
	n, err := p.file.ReadAt(raw, off)
	if err != nil && n == 0 {
		return &dbErrors.IoError{Path: p.file.Name(), Err: err}
	}

	var plaintext []byte
	if p.noEncryptMode {
		if !p.noEncryptEnvelopeEmpty(raw) {
			return fmt.Errorf("page %d: encrypted envelope found while running in no_encrypt_mode", id)
		}
		plaintext = raw[crypto.NonceSize : crypto.NonceSize+Size+crcSize]
	} else {
		opened, err := p.enc.Decrypt(raw)
		if err != nil {
			return err
		}
		plaintext = opened
	}

	if len(plaintext) != Size+crcSize {
		return &dbErrors.IoError{Path: p.file.Name(), Err: fmt.Errorf("page %d: corrupt plaintext length %d", id, len(plaintext))}
	}

	payload := plaintext[:Size]
	wantCRC := binary.LittleEndian.Uint32(plaintext[Size:])
	gotCRC := crc32.Checksum(payload, castagnoliTable)
	if gotCRC != wantCRC {
		return &dbErrors.IoError{Path: p.file.Name(), Err: fmt.Errorf("page %d: checksum mismatch", id)}
	}

	copy(dst, payload)
	return nil
}

// noEncryptEnvelopeEmpty reports whether the nonce/tag regions of a raw
// no_encrypt_mode page are all zero, as WritePage leaves them.
func (p *PageIO) noEncryptEnvelopeEmpty(raw []byte) bool {
	for _, b := range raw[:crypto.NonceSize] {
		if b != 0 {
			return false
		}
	}
	tagStart := len(raw) - crypto.TagSize
	for _, b := range raw[tagStart:] {
		if b != 0 {
			return false
		}
	}
	return true
}

// WritePage encodes and writes a Size-length plaintext page at id.
func (p *PageIO) WritePage(id int64, plaintext []byte) error {
	if len(plaintext) != Size {
		return fmt.Errorf("page: plaintext must be %d bytes, got %d", Size, len(plaintext))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	crc := crc32.Checksum(plaintext, castagnoliTable)
	withCRC := make([]byte, Size+crcSize)
	copy(withCRC, plaintext)
	binary.LittleEndian.PutUint32(withCRC[Size:], crc)

	var raw []byte
	if p.noEncryptMode {
		raw = make([]byte, p.diskPageSize)
		copy(raw[crypto.NonceSize:], withCRC)
	} else {
		sealed, err := p.enc.Encrypt(withCRC)
		if err != nil {
			return err
		}
		raw = sealed
	}

	off := id * p.diskPageSize
	if _, err := p.file.WriteAt(raw, off); err != nil {
		return &dbErrors.IoError{Path: p.file.Name(), Err: err}
	}
	return nil
}

// Sync flushes pending writes to stable storage.
func (p *PageIO) Sync() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.file.Sync(); err != nil {
		return &dbErrors.IoError{Path: p.file.Name(), Err: err}
	}
	return nil
}

// Truncate extends or shrinks the file to hold exactly pageCount pages.
func (p *PageIO) Truncate(pageCount int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.file.Truncate(pageCount * p.diskPageSize); err != nil {
		return &dbErrors.IoError{Path: p.file.Name(), Err: err}
	}
	return nil
}

// PageCount returns the number of pages currently allocated on disk,
// derived from the file size.
func (p *PageIO) PageCount() (int64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info, err := p.file.Stat()
	if err != nil {
		return 0, &dbErrors.IoError{Path: p.file.Name(), Err: err}
	}
	return info.Size() / p.diskPageSize, nil
}

// Close closes the underlying file.
func (p *PageIO) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.file.Close(); err != nil {
		return &dbErrors.IoError{Path: p.file.Name(), Err: err}
	}
	return nil
}
