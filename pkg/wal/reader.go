package wal

import (
	"errors"
	"fmt"
	"io"
	"os"
)

var (
	ErrInvalidMagic      = errors.New("wal: invalid file, bad magic number")
	ErrChecksumMismatch  = errors.New("wal: data corruption, CRC32 checksum mismatch")
	ErrInvalidPayloadLen = errors.New("wal: invalid or excessive payload length")
)

// WALReader reads log entries sequentially.
type WALReader struct {
	file   *os.File
	offset int64
}

// NewWALReader opens a reader over an existing log file.
func NewWALReader(path string) (*WALReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	return &WALReader{
		file: f,
	}, nil
}

// ReadEntry reads the next entry from the log, returning io.EOF once
// there's no more data.
func (r *WALReader) ReadEntry() (*WALEntry, error) {
	// 1. Read the fixed-size header.
	headerBuf := make([]byte, HeaderSize)
	n, err := io.ReadFull(r.file, headerBuf)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("wal: reading header: %w", err)
	}
	if n != HeaderSize {
		return nil, io.ErrUnexpectedEOF
	}

	// 2. Decode and validate the header.
	var header WALHeader
	header.Decode(headerBuf)

	if header.Magic != WALMagic {
		return nil, ErrInvalidMagic
	}

	if header.PayloadLen == 0 {
		// Empty entry: still return it, its checksum is trivially 0.
		return &WALEntry{Header: header}, nil
	}

	// Guard against an absurd allocation from a garbage length field.
	if header.PayloadLen > 1024*1024*1024 { // 1GB limit
		return nil, ErrInvalidPayloadLen
	}

	// 3. Read the payload. Pulled from the pool; the caller must
	// ReleaseEntry it.
	entry := AcquireEntry()
	entry.Header = header

	if uint32(cap(entry.Payload)) < header.PayloadLen {
		entry.Payload = make([]byte, header.PayloadLen)
	} else {
		entry.Payload = entry.Payload[:header.PayloadLen]
	}

	n, err = io.ReadFull(r.file, entry.Payload)
	if err != nil {
		// Return the entry to the pool before surfacing the error, so a
		// truncated read doesn't leak it.
		ReleaseEntry(entry)
		if err == io.EOF {
			return nil, io.ErrUnexpectedEOF // truncated payload
		}
		return nil, err
	}

	// 4. Validate the checksum.
	if !ValidateCRC32(entry.Payload, header.CRC32) {
		ReleaseEntry(entry)
		return nil, ErrChecksumMismatch
	}

	r.offset += int64(HeaderSize + header.PayloadLen)
	return entry, nil
}

// Close closes the underlying file.
func (r *WALReader) Close() error {
	return r.file.Close()
}
