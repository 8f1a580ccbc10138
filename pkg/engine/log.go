package engine

import (
	"log"
	"os"
)

// Logger wraps the standard library's log.Logger with a fixed prefix,
// giving the teacher's scattered fmt.Printf diagnostics (recovery counts,
// vacuum progress, checkpoint timing) one place to go through instead of
// writing straight to stdout from deep inside storage code.
type Logger struct {
	*log.Logger
}

// NewLogger creates a logger writing to stderr with a microsecond
// timestamp, prefixed by name.
func NewLogger(name string) *Logger {
	return &Logger{log.New(os.Stderr, name+": ", log.LstdFlags|log.Lmicroseconds)}
}
