// Package profiles loads named session templates from a directory of YAML
// files and resolves client create requests against them.
package profiles

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/user/phantom/internal/pty"
	"github.com/user/phantom/internal/terminal"
)

// ErrNotFound is returned for unknown profile ids.
var ErrNotFound = errors.New("profile not found")

var profileIDPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

type Registry struct {
	dir      string
	profiles map[string]*Profile
	defaults Defaults
	mu       sync.RWMutex
}

// NewRegistry loads every profile in dir, seeding the defaults into an
// empty directory first.
func NewRegistry(dir string) (*Registry, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("profiles dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create profiles dir: %w", err)
	}
	if err := ensureDefaults(dir); err != nil {
		return nil, err
	}

	r := &Registry{
		dir:      dir,
		profiles: make(map[string]*Profile),
	}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// SetDefaults sets the values used when neither the request nor the
// profile provides one.
func (r *Registry) SetDefaults(d Defaults) {
	r.mu.Lock()
	r.defaults = d
	r.mu.Unlock()
}

func (r *Registry) Get(id string) (*Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.profiles[id]
	if !ok {
		return nil, false
	}
	return cloneProfile(p), true
}

func (r *Registry) List() []*Profile {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		result = append(result, cloneProfile(p))
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name == result[j].Name {
			return result[i].ID < result[j].ID
		}
		return result[i].Name < result[j].Name
	})
	return result
}

func (r *Registry) Reload() error {
	loaded, err := loadDir(r.dir)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.profiles = loaded
	r.mu.Unlock()
	return nil
}

func (r *Registry) Save(p *Profile) error {
	if p == nil {
		return errors.New("profile is required")
	}
	clean := cloneProfile(p)
	if err := validate(clean); err != nil {
		return err
	}

	data, err := yaml.Marshal(clean)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	path := filepath.Join(r.dir, clean.ID+".yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write profile %q: %w", path, err)
	}

	r.mu.Lock()
	r.profiles[clean.ID] = clean
	r.mu.Unlock()
	return nil
}

func (r *Registry) Delete(id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	path := filepath.Join(r.dir, id+".yaml")
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete profile %q: %w", path, err)
	}

	r.mu.Lock()
	delete(r.profiles, id)
	r.mu.Unlock()
	return nil
}

// Resolve turns a create request into session options. Fields set on the
// request win over the named profile. A nil Registry resolves requests
// that name no profile.
func (r *Registry) Resolve(req Request) (terminal.CreateOptions, error) {
	var base Profile
	var defaults Defaults
	if r != nil {
		r.mu.RLock()
		defaults = r.defaults
		r.mu.RUnlock()
	}
	if req.Profile != "" {
		if r == nil {
			return terminal.CreateOptions{}, fmt.Errorf("%w: %s", ErrNotFound, req.Profile)
		}
		p, ok := r.Get(req.Profile)
		if !ok {
			return terminal.CreateOptions{}, fmt.Errorf("%w: %s", ErrNotFound, req.Profile)
		}
		base = *p
	}

	shell := firstNonEmpty(req.Shell, base.Shell, defaults.Shell)
	command := firstNonEmpty(req.Command, base.Command)
	argv, err := pty.ParseCommand(command, shell)
	if err != nil {
		return terminal.CreateOptions{}, fmt.Errorf("parse command: %w", err)
	}

	dir, err := expandHome(firstNonEmpty(req.WorkingDir, base.WorkingDir))
	if err != nil {
		return terminal.CreateOptions{}, err
	}

	opts := terminal.CreateOptions{
		Shell:      shell,
		Command:    argv,
		Cols:       base.Cols,
		Rows:       base.Rows,
		WorkingDir: dir,
		Env:        envList(base.Env),
		Sandbox:    req.Sandbox || base.Sandbox || defaults.Sandbox,
	}
	if opts.Cols == 0 {
		opts.Cols = defaults.Cols
	}
	if opts.Rows == 0 {
		opts.Rows = defaults.Rows
	}
	if req.Cols > 0 {
		opts.Cols = req.Cols
	}
	if req.Rows > 0 {
		opts.Rows = req.Rows
	}
	return opts, nil
}

func loadDir(dir string) (map[string]*Profile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read profiles dir: %w", err)
	}

	loaded := make(map[string]*Profile)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := strings.ToLower(entry.Name())
		if !strings.HasSuffix(name, ".yaml") && !strings.HasSuffix(name, ".yml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		p, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		if _, exists := loaded[p.ID]; exists {
			return nil, fmt.Errorf("duplicate profile id %q", p.ID)
		}
		loaded[p.ID] = p
	}
	return loaded, nil
}

func loadFile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile %q: %w", path, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", path, err)
	}
	if err := validate(&p); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &p, nil
}

func validate(p *Profile) error {
	if p == nil {
		return errors.New("profile is required")
	}
	if err := validateID(p.ID); err != nil {
		return err
	}
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name is required")
	}
	if _, err := pty.ParseCommand(p.Command, p.Shell); err != nil {
		return fmt.Errorf("command: %w", err)
	}
	for k := range p.Env {
		if k == "" || strings.Contains(k, "=") {
			return fmt.Errorf("invalid env name %q", k)
		}
	}
	return nil
}

func validateID(id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("id is required")
	}
	if !profileIDPattern.MatchString(id) {
		return errors.New("id must be lowercase alphanumeric with hyphens")
	}
	return nil
}

func cloneProfile(p *Profile) *Profile {
	if p == nil {
		return nil
	}
	out := *p
	if p.Env != nil {
		out.Env = make(map[string]string, len(p.Env))
		for k, v := range p.Env {
			out.Env[k] = v
		}
	}
	return &out
}

func envList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func expandHome(dir string) (string, error) {
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(dir, "~")), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
