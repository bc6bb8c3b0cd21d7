package application

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/ahrav/go-sqm/internal/domain"
)

// ProjectConfigFile is the name of the persisted project configuration
// inside the project directory.
const ProjectConfigFile = "project.yaml"

// ProjectConfigVersion is the schema version of project.yaml.
const ProjectConfigVersion = 1

// ProjectConfig is the persisted run configuration of one project. It is
// written on the first run and reloaded on restart so that a restart only
// needs the project name.
type ProjectConfig struct {
	// Version is the schema version of the file.
	Version int `yaml:"version" validate:"required,eq=1"`
	// Name identifies the project and names its directory.
	Name string `yaml:"name" validate:"required,projectname"`
	// Mode is the execution mode, in any spelling ParseMode accepts.
	Mode string `yaml:"mode" validate:"required,sqmmode"`
	// Samples is the path of the samples manifest.
	Samples string `yaml:"samples" validate:"required"`
	// RawReads resolves relative read-file paths in the manifest.
	RawReads string `yaml:"raw_reads,omitempty"`
	// Options are the resolved step options.
	Options domain.Options `yaml:"options"`
	// CreatedAt records when the project was first configured.
	CreatedAt time.Time `yaml:"created_at"`
}

// ProjectConfigPath returns where the configuration of project name under
// root lives.
func ProjectConfigPath(root, name string) string {
	return filepath.Join(root, name, ProjectConfigFile)
}

// ParsedMode returns the canonical mode of the configuration.
func (c *ProjectConfig) ParsedMode() (domain.Mode, error) {
	return domain.ParseMode(c.Mode)
}

// ManifestOptions returns how the configured manifest must be read.
func (c *ProjectConfig) ManifestOptions(checkFiles bool) ManifestOptions {
	return ManifestOptions{RawReadsDir: c.RawReads, CheckFiles: checkFiles}
}

// Project builds the domain project rooted at root from the configuration
// and the parsed samples, and validates it.
func (c *ProjectConfig) Project(root string, samples []domain.Sample) (*domain.Project, error) {
	mode, err := c.ParsedMode()
	if err != nil {
		return nil, err
	}
	p := &domain.Project{
		Name:    c.Name,
		Root:    root,
		Mode:    mode,
		Samples: samples,
		Options: c.Options,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ConfigLoader parses, validates and persists project configurations.
type ConfigLoader struct {
	validator *validator.Validate
}

// NewConfigLoader creates a loader with the project validators registered.
// NewConfigLoader returns an error if validator registration fails.
func NewConfigLoader() (*ConfigLoader, error) {
	v, err := NewProjectValidator()
	if err != nil {
		return nil, fmt.Errorf("failed to register validators: %w", err)
	}
	return &ConfigLoader{validator: v}, nil
}

// Validate checks struct constraints of cfg. Failures are ValidationErrors,
// which classify as configuration errors.
func (l *ConfigLoader) Validate(cfg *ProjectConfig) error {
	return validationToDomain("ProjectConfig", l.validator.Struct(cfg))
}

// ParseProject decodes and validates a project configuration. Unknown
// fields are rejected so that typos are not silently ignored.
func (l *ConfigLoader) ParseProject(data []byte) (*ProjectConfig, error) {
	var cfg ProjectConfig
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&cfg); err != nil {
		return nil, domain.NewConfigError(ProjectConfigFile, fmt.Sprintf("YAML decode failed: %v", err))
	}
	if err := l.Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadProject reads the configuration of project name under root. An
// absent file is a MissingInputError.
func (l *ConfigLoader) LoadProject(root, name string) (*ProjectConfig, error) {
	path := ProjectConfigPath(root, name)
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, &domain.MissingInputError{Path: path, Err: err}
	}
	cfg, err := l.ParseProject(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if cfg.Name != name {
		return nil, domain.NewConfigError("name", fmt.Sprintf("%s belongs to project %q, not %q", path, cfg.Name, name))
	}
	return cfg, nil
}

// SaveProject validates cfg and writes it into the project directory under
// root, creating the directory if needed. The file is replaced atomically.
func (l *ConfigLoader) SaveProject(root string, cfg *ProjectConfig) error {
	if cfg.Version == 0 {
		cfg.Version = ProjectConfigVersion
	}
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = time.Now().UTC()
	}
	if err := l.Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode project config: %w", err)
	}

	dir := filepath.Join(root, cfg.Name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create project directory: %w", err)
	}
	return writeFileAtomic(filepath.Join(dir, ProjectConfigFile), data)
}

// writeFileAtomic writes data to a temporary sibling, syncs it and renames
// it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
