package wal

import "time"

// SyncPolicy selects the WAL's durability strategy.
type SyncPolicy int

const (
	// SyncEveryWrite calls fsync() after every append. Safest, slowest.
	SyncEveryWrite SyncPolicy = iota

	// SyncInterval calls fsync() on a background timer. Balanced.
	SyncInterval

	// SyncBatch calls fsync() once the buffer crosses a byte threshold.
	// Fastest, widest durability window.
	SyncBatch
)

// Options configures a WAL Writer.
type Options struct {
	// DirPath is the directory segment files are written under.
	DirPath string

	// BufferSize is the bufio buffer held in memory before it's flushed
	// to the OS.
	BufferSize int

	// SyncPolicy picks when fsync() runs.
	SyncPolicy SyncPolicy

	// SyncIntervalDuration is the timer period for SyncInterval.
	SyncIntervalDuration time.Duration

	// SyncBatchBytes is the accumulated size that triggers a sync under
	// SyncBatch.
	SyncBatchBytes int64
}

// DefaultOptions returns a conservative, safe-by-default configuration.
func DefaultOptions() Options {
	return Options{
		DirPath:              "./wal_data",
		BufferSize:           64 * 1024, // 64KB bufio buffer
		SyncPolicy:           SyncInterval,
		SyncIntervalDuration: 200 * time.Millisecond,
		SyncBatchBytes:       1 * 1024 * 1024, // 1MB
	}
}
