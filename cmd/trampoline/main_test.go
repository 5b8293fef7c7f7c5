package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"

	"trampoline/internal/statefile"
	"trampoline/internal/trampoline"
)

func TestReadUIMode(t *testing.T) {
	cases := map[string]uiMode{"": uiModeAuto, "AUTO": uiModeAuto, "on": uiModeOn, " off ": uiModeOff}
	for in, want := range cases {
		got, err := readUIMode(in)
		if err != nil || got != want {
			t.Fatalf("readUIMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := readUIMode("maybe"); err == nil {
		t.Fatal("expected error")
	}
	if !shouldUseTUI(uiModeOn) || shouldUseTUI(uiModeOff) {
		t.Fatal("explicit modes must win")
	}
}

func TestResolvePath(t *testing.T) {
	dir := filepath.Join("srv", "robot")
	cases := map[string]string{
		"":        "",
		"-":       "-",
		"log.txt": filepath.Join(dir, "log.txt"),
	}
	abs, err := filepath.Abs("state")
	if err != nil {
		t.Fatal(err)
	}
	cases[abs] = abs
	for in, want := range cases {
		if got := resolvePath(dir, in); got != want {
			t.Fatalf("resolvePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRenderStatePretty(t *testing.T) {
	prev := color.NoColor
	color.NoColor = true
	defer func() { color.NoColor = prev }()

	var buf bytes.Buffer
	renderStatePretty(&buf, statefile.File{Snapshot: trampoline.Snapshot{
		RunID: "run-42",
		Round: 9,
		Tasks: []trampoline.TaskState{
			{ID: 1, Name: "sync", Depth: 1, Waits: 1},
			{ID: 3, Name: "blink", Depth: 1, Pending: true, Resumes: 5},
		},
	}})
	out := buf.String()
	for _, want := range []string{"run-42", "round 9", "2 tasks", "sync", "waiting", "blink", "ready", "RESUMES"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}
