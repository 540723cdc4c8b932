package profiles

// Profile is a named session template loaded from a YAML file.
type Profile struct {
	ID         string            `yaml:"id" json:"id"`
	Name       string            `yaml:"name" json:"name"`
	Command    string            `yaml:"command,omitempty" json:"command,omitempty"`
	Shell      string            `yaml:"shell,omitempty" json:"shell,omitempty"`
	Env        map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	WorkingDir string            `yaml:"working_dir,omitempty" json:"working_dir,omitempty"`
	Cols       uint16            `yaml:"cols,omitempty" json:"cols,omitempty"`
	Rows       uint16            `yaml:"rows,omitempty" json:"rows,omitempty"`
	Sandbox    bool              `yaml:"sandbox,omitempty" json:"sandbox,omitempty"`
}

// Request is a create request from a client. Set fields override the
// named profile.
type Request struct {
	Profile    string `json:"profile,omitempty"`
	Shell      string `json:"shell,omitempty"`
	Command    string `json:"command,omitempty"`
	WorkingDir string `json:"working_dir,omitempty"`
	Cols       uint16 `json:"cols,omitempty"`
	Rows       uint16 `json:"rows,omitempty"`
	Sandbox    bool   `json:"sandbox,omitempty"`
}

// Defaults are server-wide fallbacks for create requests.
type Defaults struct {
	Shell   string
	Cols    uint16
	Rows    uint16
	Sandbox bool
}
