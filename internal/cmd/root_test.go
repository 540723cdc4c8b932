package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/user/phantom/internal/config"
	"github.com/user/phantom/internal/db"
)

// writeConfig writes a config file whose directories live under a temp dir.
func writeConfig(t *testing.T) (string, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "token: test-token\n" +
		"data_dir: " + filepath.Join(dir, "data") + "\n" +
		"profiles_dir: " + filepath.Join(dir, "profiles") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return path, cfg
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestProfilesCommand(t *testing.T) {
	path, _ := writeConfig(t)

	out, err := execute(t, "--config", path, "profiles")
	if err != nil {
		t.Fatalf("profiles: %v", err)
	}
	for _, want := range []string{"ID", "shell", "login-shell", "sandboxed", "(shell)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "--config", path, "profiles", "show", "login-shell")
	if err != nil {
		t.Fatalf("profiles show: %v", err)
	}
	if !strings.Contains(out, "command: /bin/sh -l") {
		t.Errorf("show output:\n%s", out)
	}

	if _, err := execute(t, "--config", path, "profiles", "show", "missing"); err == nil {
		t.Fatal("expected error for unknown profile")
	}
}

func TestLsCommand(t *testing.T) {
	path, cfg := writeConfig(t)

	out, err := execute(t, "--config", path, "ls")
	if err != nil {
		t.Fatalf("ls: %v", err)
	}
	if !strings.Contains(out, "No sessions recorded.") {
		t.Fatalf("empty ls output: %q", out)
	}

	ctx := context.Background()
	database, err := db.Open(ctx, cfg.DBPath())
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	code := 2
	for _, s := range []*db.Session{
		{SessionID: 11, Command: "make test", Status: db.StatusExited, ExitCode: &code, Title: "build"},
		{SessionID: 12, Command: "sh", Cols: 80, Rows: 24},
	} {
		if err := database.Sessions().Create(ctx, s); err != nil {
			t.Fatalf("create session: %v", err)
		}
	}
	database.Close()

	out, err = execute(t, "--config", path, "ls")
	if err != nil {
		t.Fatalf("ls: %v", err)
	}
	for _, want := range []string{"STATUS", "make test", "build", "exited", "running"} {
		if !strings.Contains(out, want) {
			t.Errorf("ls output missing %q:\n%s", want, out)
		}
	}

	out, err = execute(t, "--config", path, "ls", "--status", "exited")
	if err != nil {
		t.Fatalf("ls --status: %v", err)
	}
	if strings.Contains(out, "running") {
		t.Errorf("status filter ignored:\n%s", out)
	}
}

func TestServeRejectsInvalidFlags(t *testing.T) {
	path, _ := writeConfig(t)
	_, err := execute(t, "--config", path, "serve", "--port", "0")
	if err == nil || !strings.Contains(err.Error(), "invalid port") {
		t.Fatalf("serve --port 0 = %v, want invalid port", err)
	}
}

func TestNewLoggerWritesJSONToPipes(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, 0).Info("hello", "k", "v")
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"k":"v"`) {
		t.Fatalf("log output = %q", buf.String())
	}
}
