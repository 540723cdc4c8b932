package profiles

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/phantom/configs"
)

var defaultProfileFiles = []string{
	"shell.yaml",
	"login-shell.yaml",
	"sandboxed.yaml",
}

// ensureDefaults seeds dir with the shipped profiles when it holds no YAML.
func ensureDefaults(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read profiles dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
			return nil
		}
	}

	for _, file := range defaultProfileFiles {
		content, err := configs.ProfileDefaults.ReadFile("profiles/" + file)
		if err != nil {
			return fmt.Errorf("read embedded default %q: %w", file, err)
		}
		path := filepath.Join(dir, file)
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return fmt.Errorf("write default %q: %w", path, err)
		}
	}
	return nil
}
