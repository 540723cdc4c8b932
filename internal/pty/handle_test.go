package pty

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestResolveShell(t *testing.T) {
	t.Setenv("SHELL", "/bin/zsh")
	if got := ResolveShell("/bin/bash"); got != "/bin/bash" {
		t.Errorf("explicit shell = %q, want /bin/bash", got)
	}
	if got := ResolveShell(""); got != "/bin/zsh" {
		t.Errorf("$SHELL fallback = %q, want /bin/zsh", got)
	}

	t.Setenv("SHELL", "")
	if got := ResolveShell(""); got != DefaultShell {
		t.Errorf("default shell = %q, want %q", got, DefaultShell)
	}
}

func TestSpawnReadsOutputUntilEOF(t *testing.T) {
	h, err := Spawn(Options{Command: []string{"echo", "hello-handle"}})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer h.Close()

	var out strings.Builder
	buf := make([]byte, 256)
	timeout := time.After(5 * time.Second)
	done := make(chan error, 1)
	go func() {
		for {
			n, err := h.Read(buf)
			out.Write(buf[:n])
			if err != nil {
				done <- err
				return
			}
		}
	}()

	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Fatalf("terminal read error = %v, want io.EOF", err)
		}
	case <-timeout:
		t.Fatal("timed out waiting for EOF")
	}
	if !strings.Contains(out.String(), "hello-handle") {
		t.Errorf("output = %q, want hello-handle", out.String())
	}
}

func TestSpawnFailures(t *testing.T) {
	_, err := Spawn(Options{Command: []string{"/nonexistent/phantom-binary"}})
	if !errors.Is(err, ErrSpawnFailed) {
		t.Fatalf("missing binary error = %v, want ErrSpawnFailed", err)
	}

	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	_, err = Spawn(Options{Command: []string{"true"}, Dir: file})
	if !errors.Is(err, ErrSpawnFailed) {
		t.Fatalf("file as workdir error = %v, want ErrSpawnFailed", err)
	}
}

func TestSpawnUsesWorkingDir(t *testing.T) {
	dir := t.TempDir()
	h, err := Spawn(Options{Command: []string{"pwd"}, Dir: dir})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer h.Close()

	out, _ := io.ReadAll(h)
	resolved, _ := filepath.EvalSymlinks(dir)
	if !strings.Contains(string(out), dir) && !strings.Contains(string(out), resolved) {
		t.Fatalf("pwd output = %q, want %q", out, dir)
	}
}

func TestPollExitDoesNotBlock(t *testing.T) {
	h, err := Spawn(Options{Command: []string{"sleep", "10"}})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}

	if _, exited := h.PollExit(); exited {
		t.Fatal("sleep reported exited immediately")
	}

	if err := h.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("child still running after Close")
	}
	if _, exited := h.PollExit(); !exited {
		t.Fatal("PollExit after Done = not exited")
	}
}

func TestSpawnSetsTerm(t *testing.T) {
	h, err := Spawn(Options{Command: []string{"sh", "-c", "echo term=$TERM"}})
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	defer h.Close()

	out, _ := io.ReadAll(h)
	if !strings.Contains(string(out), "term=xterm-256color") {
		t.Fatalf("output = %q, want TERM=xterm-256color", out)
	}
}
