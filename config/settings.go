package config

import (
	"fmt"

	"devcrew/command"
)

// Execution configures the command executor
type Execution struct {
	Mode                string   `hcl:"mode,optional"`
	WorkDir             string   `hcl:"work_dir,optional"`
	Shell               string   `hcl:"shell,optional"`
	InteractivePatterns []string `hcl:"interactive_patterns,optional"`
}

func (e *Execution) Defaults() {
	if e.Mode == "" {
		e.Mode = string(command.ModeAll)
	}
	if e.WorkDir == "" {
		e.WorkDir = "."
	}
	if e.Shell == "" {
		e.Shell = "bash"
	}
}

func (e *Execution) Validate() error {
	_, err := command.ParseMode(e.Mode)
	return err
}

// Recovery configures automatic repair of failed command groups
type Recovery struct {
	Enabled bool `hcl:"enabled,optional"`
	// Model is the model key used to propose fixes
	Model string `hcl:"model,optional"`
	// Confirm asks before applying each plan
	Confirm bool `hcl:"confirm,optional"`
}

func (r *Recovery) Validate(models []Model) error {
	if !r.Enabled {
		return nil
	}
	if r.Model == "" {
		return fmt.Errorf("enabled recovery requires 'model'")
	}
	_, _, err := ResolveModel(models, r.Model)
	return err
}

// CacheConfig configures the seeded response cache. An empty Dir keeps
// responses in memory.
type CacheConfig struct {
	Enabled bool   `hcl:"enabled,optional"`
	Seed    int    `hcl:"seed,optional"`
	Dir     string `hcl:"dir,optional"`
}

func (c *CacheConfig) Defaults() {
	if c.Seed == 0 {
		c.Seed = 41
	}
}

// Scaffold configures the project scaffolding workflow
type Scaffold struct {
	Model       string `hcl:"model,optional"`
	Environment string `hcl:"environment,optional"`
	MaxRound    int    `hcl:"max_round,optional"`
	// ExtractRounds bounds the info-extraction chat
	ExtractRounds int `hcl:"extract_rounds,optional"`
}

const (
	EnvNormal = "normal"
	EnvDocker = "docker"
)

func (s *Scaffold) Defaults() {
	if s.Environment == "" {
		s.Environment = EnvNormal
	}
	if s.MaxRound == 0 {
		s.MaxRound = 30
	}
	if s.ExtractRounds == 0 {
		s.ExtractRounds = 20
	}
}

func (s *Scaffold) Validate(models []Model) error {
	if s.Environment != EnvNormal && s.Environment != EnvDocker {
		return fmt.Errorf("environment must be '%s' or '%s', got '%s'", EnvNormal, EnvDocker, s.Environment)
	}
	if s.MaxRound < 0 || s.ExtractRounds < 0 {
		return fmt.Errorf("round limits must not be negative")
	}
	if s.Model == "" {
		return nil
	}
	_, _, err := ResolveModel(models, s.Model)
	return err
}
