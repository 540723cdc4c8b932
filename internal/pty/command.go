package pty

import (
	"fmt"
	"strings"

	"github.com/google/shlex"
)

// shellMeta are the characters that need a real shell to interpret.
const shellMeta = "|&;<>()$`\n*?"

// ParseCommand splits a command string into argv. Commands that use shell
// syntax run through `shell -c`.
func ParseCommand(command, shell string) ([]string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, nil
	}
	if strings.ContainsAny(command, shellMeta) {
		return []string{ResolveShell(shell), "-c", command}, nil
	}
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("pty: parse command %q: %w", command, err)
	}
	return argv, nil
}
