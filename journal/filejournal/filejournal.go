// Package filejournal adapts github.com/agilira/lethe's rotating file
// writer into a journal.Writer, satisfying spec.md §4.7's Journal Stage.
//
// Grounded on agilira/lethe's lethe.go: Logger.Write already gives the
// durable-append semantics the Journal Stage needs, and its MaxSizeStr/
// MaxAgeStr rotation knobs give size- or age-bounded segments without any
// new rotation logic of our own. The pipeline's JournalStrategy setting is
// not passed to this writer.
package filejournal

import (
	"github.com/agilira/lethe"

	"github.com/canepat/helios/journal"
)

// Config configures the file-backed journal.Writer.
type Config struct {
	// Filename is the journal segment file path.
	Filename string
	// MaxSize is the maximum segment size before rotation, e.g. "512MB".
	// Empty disables size-based rotation.
	MaxSize string
	// MaxAge is the maximum segment age before rotation, e.g. "24h".
	// Empty disables age-based rotation.
	MaxAge string
	// MaxBackups bounds the number of retained rotated segments. Zero
	// retains all of them.
	MaxBackups int
}

// writer wraps a *lethe.Logger to satisfy journal.Writer.
type writer struct {
	logger *lethe.Logger
}

var _ journal.Writer = (*writer)(nil)

// Open creates (or appends to) the journal segment described by cfg.
func Open(cfg Config) (journal.Writer, error) {
	l := &lethe.Logger{
		Filename:   cfg.Filename,
		MaxSizeStr: cfg.MaxSize,
		MaxAgeStr:  cfg.MaxAge,
		MaxBackups: cfg.MaxBackups,
	}
	return &writer{logger: l}, nil
}

// Write appends buf[offset:offset+length] to the current segment,
// rotating first if the write would exceed the configured bounds.
func (w *writer) Write(buf []byte, offset, length int) (int, error) {
	return w.logger.Write(buf[offset : offset+length])
}

// Flush waits for any background rotation/compression work lethe has
// queued to finish. lethe.Logger.Write is synchronous on the data path
// itself (unless Async mode is enabled, which this adapter does not set),
// so Flush here only drains deferred housekeeping.
func (w *writer) Flush() error {
	w.logger.WaitForBackgroundTasks()
	return nil
}

// Close flushes and releases the underlying file handle.
func (w *writer) Close() error {
	return w.logger.Close()
}
