package statefile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"trampoline/internal/trampoline"
)

func sampleSnapshot(round uint64) trampoline.Snapshot {
	return trampoline.Snapshot{
		RunID:   "0f8fad5b-d9cb-469f-a165-70867728950e",
		Round:   round,
		ClockMs: 1500,
		Tasks: []trampoline.TaskState{
			{ID: 1, Name: "sync", Depth: 1, Waits: 1},
			{ID: 2, Name: "blink", Depth: 1, Pending: true, Resumes: 4},
		},
	}
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "trampoline.state")
	if err := Write(path, sampleSnapshot(7)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got.Snapshot.Round != 7 || len(got.Snapshot.Tasks) != 2 || got.Snapshot.Tasks[1].Name != "blink" {
		t.Fatalf("snapshot = %+v", got.Snapshot)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("temp files left behind: %v", entries)
	}
}

func TestReadSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.state")
	data, err := msgpack.Marshal(&File{Schema: schemaVersion + 1})
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Read(path); !errors.Is(err, ErrSchema) {
		t.Fatalf("err = %v", err)
	}
}

func TestWriterSkipsUnchangedRound(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trampoline.state")
	round := uint64(1)
	w := NewWriter(path, func() trampoline.Snapshot { return sampleSnapshot(round) })

	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatal("unchanged snapshot was rewritten")
	}

	round = 2
	if err := w.Flush(); err != nil {
		t.Fatal(err)
	}
	got, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.Snapshot.Round != 2 {
		t.Fatalf("round = %d", got.Snapshot.Round)
	}
}
