package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/user/phantom/internal/pty"
)

func TestRunOnceCapturesFinalScreen(t *testing.T) {
	res, err := runOnce(context.Background(), pty.Options{
		Command: []string{"sh", "-c", "printf 'hello\\r\\nworld'; exit 3"},
		Cols:    20,
		Rows:    5,
	})
	if err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	text, err := res.frame.Text()
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if !strings.HasPrefix(text, "hello\nworld") {
		t.Fatalf("screen = %q", text)
	}
	if res.frame.Cols != 20 || res.frame.Rows != 5 {
		t.Fatalf("frame size = %dx%d", res.frame.Cols, res.frame.Rows)
	}
	if res.code == nil || *res.code != 3 {
		t.Fatalf("exit code = %v, want 3", res.code)
	}
}

func TestRunOnceHonorsContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := runOnce(ctx, pty.Options{Command: []string{"sleep", "5"}})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("runOnce = %v, want deadline exceeded", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("runOnce returned after %v", elapsed)
	}
}

func TestRunCommand(t *testing.T) {
	path, _ := writeConfig(t)

	out, err := execute(t, "--config", path, "run", "--cols", "30", "--rows", "4", "--", "sh", "-c", "printf run-ok")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if out != "run-ok\n" {
		t.Fatalf("output = %q", out)
	}

	_, err = execute(t, "--config", path, "run", "--", "sh", "-c", "exit 4")
	var exit *exitError
	if !errors.As(err, &exit) || exit.code != 4 {
		t.Fatalf("run exit = %v, want status 4", err)
	}

	if _, err := execute(t, "--config", path, "run", "--profile", "missing", "--", "true"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}
