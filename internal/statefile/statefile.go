// Package statefile persists scheduler snapshots so the last known task set
// survives a crash or power loss.
package statefile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"

	"trampoline/internal/trampoline"
)

// Current schema version - increment when File format changes
const schemaVersion uint16 = 1

// ErrSchema is returned by Read for files written by an incompatible version.
var ErrSchema = errors.New("state file schema mismatch")

// File is the on-disk payload.
type File struct {
	Schema   uint16              `msgpack:"schema"`
	Snapshot trampoline.Snapshot `msgpack:"snapshot"`
}

// Write atomically replaces path with snap.
func Write(path string, snap trampoline.Snapshot) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".state-*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	if err = msgpack.NewEncoder(f).Encode(&File{Schema: schemaVersion, Snapshot: snap}); err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err = f.Close(); err != nil {
		return err
	}
	// atomic replace
	return os.Rename(f.Name(), path)
}

// Read decodes the state file at path.
func Read(path string) (File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, err
	}
	defer f.Close()

	var out File
	if err := msgpack.NewDecoder(f).Decode(&out); err != nil {
		return File{}, fmt.Errorf("%s: decode state: %w", path, err)
	}
	if out.Schema != schemaVersion {
		return File{}, fmt.Errorf("%s: %w: got %d, want %d", path, ErrSchema, out.Schema, schemaVersion)
	}
	return out, nil
}

// Writer persists the scheduler's latest snapshot each time it is flushed.
// It is registered as a housekeeping flusher, so the file lags the live
// state by at most one sync interval.
type Writer struct {
	mu     sync.Mutex
	path   string
	source func() trampoline.Snapshot
	last   uint64
	wrote  bool
}

// NewWriter returns a Writer that reads snapshots from source.
func NewWriter(path string, source func() trampoline.Snapshot) *Writer {
	return &Writer{path: path, source: source}
}

// Path returns the destination file.
func (w *Writer) Path() string { return w.path }

// Flush writes the current snapshot unless it was already written.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	snap := w.source()
	if w.wrote && snap.Round == w.last {
		return nil
	}
	if err := Write(w.path, snap); err != nil {
		return err
	}
	w.last = snap.Round
	w.wrote = true
	return nil
}
