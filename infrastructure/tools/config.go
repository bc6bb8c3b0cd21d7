package tools

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-sqm/internal/domain"
)

// CommandConfig describes how to launch one external program.
type CommandConfig struct {
	// Command is the executable, looked up in PATH when not absolute.
	Command string `yaml:"command" validate:"required"`
	// Args are text/template strings rendered against the invocation.
	// Arguments that render to the empty string are dropped.
	Args []string `yaml:"args"`
	// Env adds variables to the inherited environment.
	Env map[string]string `yaml:"env"`
	// Timeout overrides the global timeout for this command.
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
}

// Config is the tools configuration file: which program runs each step and
// how launches are paced.
type Config struct {
	// LogDir receives tool logs. Empty means <project>/logs.
	LogDir string `yaml:"log_dir"`
	// Timeout bounds every invocation. Zero means no limit.
	Timeout time.Duration `yaml:"timeout" validate:"min=0"`
	// LaunchRate limits tool launches per second. Zero means unlimited.
	LaunchRate float64 `yaml:"launch_rate" validate:"min=0"`
	// LaunchBurst is the number of launches allowed at once.
	LaunchBurst int `yaml:"launch_burst" validate:"min=0"`
	// Tools maps canonical step names to commands.
	Tools map[string]CommandConfig `yaml:"tools" validate:"dive"`
	// Comparator computes the similarity of two assemblies; it must write a
	// TSV whose first data row ends with the score.
	Comparator *CommandConfig `yaml:"comparator"`
	// Merger combines contig files into {{.Output}}.
	Merger *CommandConfig `yaml:"merger"`
}

// LoadConfig reads and validates a tools configuration file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, &domain.MissingInputError{Path: path, Err: err}
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes a tools configuration, rejecting unknown fields, and
// checks that every argument template compiles.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, domain.NewConfigError("tools", fmt.Sprintf("YAML decode failed: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks struct constraints and compiles every template.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return domain.NewConfigError("tools", err.Error())
	}
	for _, name := range c.StepNames() {
		if _, err := NewCommandTemplate(name, c.Tools[name]); err != nil {
			return domain.NewConfigError("tools."+name, err.Error())
		}
	}
	for name, cmd := range map[string]*CommandConfig{"comparator": c.Comparator, "merger": c.Merger} {
		if cmd == nil {
			continue
		}
		if _, err := NewCommandTemplate(name, *cmd); err != nil {
			return domain.NewConfigError(name, err.Error())
		}
	}
	return nil
}

// StepNames returns the configured step names in sorted order.
func (c *Config) StepNames() []string {
	names := make([]string, 0, len(c.Tools))
	for name := range c.Tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CheckSteps reports configured step names that are not in known. A typo
// in the tools file would otherwise only surface when the step is reached.
func (c *Config) CheckSteps(known []string) error {
	set := make(map[string]struct{}, len(known))
	for _, k := range known {
		set[k] = struct{}{}
	}
	for _, name := range c.StepNames() {
		if _, ok := set[name]; !ok {
			return domain.NewConfigError("tools."+name, "not a pipeline step")
		}
	}
	return nil
}
