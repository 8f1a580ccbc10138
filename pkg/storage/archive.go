package storage

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/klauspost/compress/zstd"
)

// VacuumArchiveWriter appends reclaimed records to a zstd-compressed archive
// segment instead of letting vacuum/compaction discard them outright. Each
// record is framed with a 4-byte length prefix before compression, so the
// archive can be replayed as a plain stream of length-prefixed documents.
type VacuumArchiveWriter struct {
	f   *os.File
	enc *zstd.Encoder
}

// OpenVacuumArchive opens (creating or appending to) the archive segment for
// a given base path, e.g. heap path + "_archive.zst" or a WAL path's
// compaction archive.
func OpenVacuumArchive(path string) (*VacuumArchiveWriter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("archive: new zstd writer: %w", err)
	}
	return &VacuumArchiveWriter{f: f, enc: enc}, nil
}

// Append writes one reclaimed record to the archive.
func (w *VacuumArchiveWriter) Append(record []byte) error {
	var lenPrefix [4]byte
	binary.LittleEndian.PutUint32(lenPrefix[:], uint32(len(record)))
	if _, err := w.enc.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("archive: write length prefix: %w", err)
	}
	if _, err := w.enc.Write(record); err != nil {
		return fmt.Errorf("archive: write record: %w", err)
	}
	return nil
}

// Close flushes the zstd stream and closes the underlying file. Safe to call
// on a writer that appended zero records.
func (w *VacuumArchiveWriter) Close() error {
	if err := w.enc.Close(); err != nil {
		w.f.Close()
		return fmt.Errorf("archive: close zstd encoder: %w", err)
	}
	return w.f.Close()
}
