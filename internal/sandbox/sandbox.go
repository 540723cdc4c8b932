// Package sandbox confines a session to a git worktree with macOS
// sandbox-exec. The generated profile allows read/write inside the worktree,
// read access to the repository's shared git directory and the usual system
// paths, and denies writes everywhere else.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrUnavailable is returned when sandbox-exec cannot be used on this host.
var ErrUnavailable = errors.New("sandbox: sandbox-exec is not available")

const execName = "sandbox-exec"

const profileTemplate = `(version 1)

;; Default: deny everything
(deny default)

(allow process-exec)
(allow process-fork)

;; Standard system paths
(allow file-read*
    (subpath "/usr")
    (subpath "/bin")
    (subpath "/sbin")
    (subpath "/Library")
    (subpath "/System")
    (subpath "/private/var/db/dyld")
    (subpath "/private/etc")
    (subpath "/dev")
    (subpath "/opt/homebrew")
    (subpath "/tmp")
    (subpath "/var/folders")
    (literal "/etc")
    (literal "/var")
    (literal "/private"))

;; Temp directories
(allow file-write*
    (subpath "/tmp")
    (subpath "/private/tmp")
    (subpath "/var/folders")
    (subpath "/dev"))

;; Worktree
(allow file-read*
    (subpath "{{worktree}}"))
(allow file-write*
    (subpath "{{worktree}}"))

;; Shared git objects
(allow file-read*
    (subpath "{{gitdir}}"))

(allow network*)
(allow sysctl-read)
(allow mach-lookup)
(allow signal)
(allow iokit-open)

;; Home directory essentials
(allow file-read*
    (subpath (param "HOME")))
`

// Profile returns a sandbox-exec profile for worktree whose repository keeps
// its objects in gitDir.
func Profile(worktree, gitDir string) string {
	r := strings.NewReplacer(
		"{{worktree}}", escape(worktree),
		"{{gitdir}}", escape(gitDir),
	)
	return r.Replace(profileTemplate)
}

// escape quotes a path for a double-quoted profile string.
func escape(path string) string {
	path = strings.ReplaceAll(path, `\`, `\\`)
	return strings.ReplaceAll(path, `"`, `\"`)
}

// Available reports whether sandbox-exec can be run on this host.
func Available() bool {
	if runtime.GOOS != "darwin" {
		return false
	}
	_, err := exec.LookPath(execName)
	return err == nil
}

// Wrap prefixes argv with a sandbox-exec invocation running profile.
func Wrap(profile string, argv []string) []string {
	home, _ := os.UserHomeDir()
	out := []string{execName, "-D", "HOME=" + home, "-p", profile}
	return append(out, argv...)
}

// Command builds the sandboxed argv for a session confined to worktree.
func Command(worktree string, argv []string) ([]string, error) {
	if !Available() {
		return nil, ErrUnavailable
	}
	abs, err := filepath.Abs(worktree)
	if err != nil {
		return nil, fmt.Errorf("sandbox: resolve worktree: %w", err)
	}
	gitDir, err := GitDir(abs)
	if err != nil {
		return nil, err
	}
	return Wrap(Profile(abs, gitDir), argv), nil
}

// GitDir returns the directory holding the shared git objects for worktree.
// For a linked worktree .git is a file pointing at
// <repo>/.git/worktrees/<name>, which in turn names the common directory.
func GitDir(worktree string) (string, error) {
	dotGit := filepath.Join(worktree, ".git")
	info, err := os.Stat(dotGit)
	if err != nil {
		return "", fmt.Errorf("sandbox: %s is not a git worktree: %w", worktree, err)
	}
	if info.IsDir() {
		return dotGit, nil
	}

	data, err := os.ReadFile(dotGit)
	if err != nil {
		return "", fmt.Errorf("sandbox: read .git file: %w", err)
	}
	line := strings.TrimSpace(string(data))
	target, ok := strings.CutPrefix(line, "gitdir:")
	if !ok {
		return "", fmt.Errorf("sandbox: malformed .git file in %s", worktree)
	}
	target = strings.TrimSpace(target)
	if !filepath.IsAbs(target) {
		target = filepath.Join(worktree, target)
	}

	common, err := os.ReadFile(filepath.Join(target, "commondir"))
	if err != nil {
		return filepath.Clean(target), nil
	}
	dir := strings.TrimSpace(string(common))
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(target, dir)
	}
	return filepath.Clean(dir), nil
}

// SaveProfile writes profile to dir/<name>.sb and returns the path.
func SaveProfile(dir, name, profile string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("sandbox: create dir: %w", err)
	}
	path := filepath.Join(dir, name+".sb")
	if err := os.WriteFile(path, []byte(profile), 0o644); err != nil {
		return "", fmt.Errorf("sandbox: write profile: %w", err)
	}
	return path, nil
}
