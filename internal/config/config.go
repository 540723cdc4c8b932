// Package config loads server settings from a YAML file and command line
// flags. Flags win over the file.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

const (
	DefaultPort           = 8765
	DefaultRenderInterval = time.Second / 60
	DefaultRetention      = 30 * 24 * time.Hour
)

type Config struct {
	Port           int           `yaml:"port"`
	Token          string        `yaml:"token"`
	DataDir        string        `yaml:"data_dir"`
	ProfilesDir    string        `yaml:"profiles_dir"`
	Shell          string        `yaml:"shell,omitempty"`
	Cols           uint16        `yaml:"cols"`
	Rows           uint16        `yaml:"rows"`
	LogLevel       string        `yaml:"log_level"`
	RenderInterval time.Duration `yaml:"render_interval"`
	Sandbox        bool          `yaml:"sandbox,omitempty"`
	// HistoryRetention is how long ended sessions stay in the history
	// database. Zero keeps them forever.
	HistoryRetention time.Duration `yaml:"history_retention"`

	ConfigPath string `yaml:"-"`
}

// Dir returns ~/.config/phantom.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".phantom")
	}
	return filepath.Join(home, ".config", "phantom")
}

// DefaultPath returns the config file used when none is given.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func Default() *Config {
	dir := Dir()
	return &Config{
		Port:           DefaultPort,
		DataDir:        filepath.Join(dir, "data"),
		ProfilesDir:    filepath.Join(dir, "profiles"),
		Cols:           80,
		Rows:           24,
		LogLevel:       "info",
		RenderInterval: DefaultRenderInterval,
		ConfigPath:     DefaultPath(),

		HistoryRetention: DefaultRetention,
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		cfg.ConfigPath = path
	}

	data, err := os.ReadFile(cfg.ConfigPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", cfg.ConfigPath, err)
	}
	return cfg, nil
}

// BindFlags registers a flag for every setting, defaulting to the values
// already loaded.
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	fs.IntVarP(&c.Port, "port", "p", c.Port, "server port (1-65535)")
	fs.StringVar(&c.Token, "token", c.Token, "authentication token (auto-generated if empty)")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "directory for the session database and lock file")
	fs.StringVar(&c.ProfilesDir, "profiles-dir", c.ProfilesDir, "directory of session profile YAML files")
	fs.StringVar(&c.Shell, "shell", c.Shell, "default shell (falls back to $SHELL)")
	fs.Uint16Var(&c.Cols, "cols", c.Cols, "default terminal columns")
	fs.Uint16Var(&c.Rows, "rows", c.Rows, "default terminal rows")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level: debug, info, warn, error")
	fs.DurationVar(&c.RenderInterval, "render-interval", c.RenderInterval, "render pump tick period")
	fs.BoolVar(&c.Sandbox, "sandbox", c.Sandbox, "confine new sessions to their working directory (macOS)")
	fs.DurationVar(&c.HistoryRetention, "history-retention", c.HistoryRetention, "prune ended sessions older than this at startup (0 keeps all)")
}

// ApplyFlags copies every flag that was set on fs onto c. fs must have been
// bound with BindFlags.
func (c *Config) ApplyFlags(fs *pflag.FlagSet) error {
	target := pflag.NewFlagSet("config", pflag.ContinueOnError)
	c.BindFlags(target)

	var err error
	fs.Visit(func(f *pflag.Flag) {
		if err != nil {
			return
		}
		if dst := target.Lookup(f.Name); dst != nil {
			if setErr := dst.Value.Set(f.Value.String()); setErr != nil {
				err = fmt.Errorf("flag --%s: %w", f.Name, setErr)
			}
		}
	})
	return err
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 1 and 65535", c.Port)
	}
	if c.Cols == 0 || c.Rows == 0 {
		return fmt.Errorf("invalid default size %dx%d", c.Cols, c.Rows)
	}
	if c.RenderInterval < time.Millisecond {
		return fmt.Errorf("render interval %s is too short", c.RenderInterval)
	}
	if c.HistoryRetention < 0 {
		return errors.New("history retention cannot be negative")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("data dir is required")
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return level, nil
}

// EnsureToken generates and saves a token when none is configured. It
// reports whether a new token was created.
func (c *Config) EnsureToken() (bool, error) {
	if c.Token != "" {
		return false, nil
	}
	token, err := generateToken()
	if err != nil {
		return false, fmt.Errorf("failed to generate token: %w", err)
	}
	c.Token = token
	if err := c.Save(); err != nil {
		return false, fmt.Errorf("failed to save config file: %w", err)
	}
	return true, nil
}

// Save writes the config file with owner-only permissions.
func (c *Config) Save() error {
	dir := filepath.Dir(c.ConfigPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.ConfigPath, data, 0o600)
}

func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "phantom.db")
}

func (c *Config) LockPath() string {
	return filepath.Join(c.DataDir, "serve.lock")
}

func generateToken() (string, error) {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
