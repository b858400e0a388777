// Package config provides configuration for the skiff backup subsystem.
// Everything the orchestrators need arrives through this struct; no
// component reads ambient environment state.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/skiffhq/skiff/internal/objectstore"
	"github.com/skiffhq/skiff/internal/secrets"
	"github.com/skiffhq/skiff/internal/workload"
)

// DefaultConfigDir returns the default config directory (~/.skiff).
func DefaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home directory: %w", err)
	}
	return filepath.Join(home, ".skiff"), nil
}

// DefaultConfigPath returns the default config file path (~/.skiff/config.yml).
func DefaultConfigPath() (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yml"), nil
}

// Config holds the backup subsystem's configuration.
type Config struct {
	// Prefix namespaces both remote archive names and secret names.
	Prefix string `yaml:"prefix,omitempty"`

	// RetentionDays is the age in days beyond which timestamped archives
	// are deleted. Zero disables the retention sweep.
	RetentionDays int `yaml:"retention_days,omitempty"`

	// DataDir is the agent runtime's state directory, as seen by the
	// workload source (container path for docker, host path for fs).
	DataDir string `yaml:"data_dir,omitempty"`

	// BrowserDir is the host-side browser profile directory.
	BrowserDir string `yaml:"browser_dir,omitempty"`

	// WorkspaceDir is the host-side workspace directory holding the
	// persona documents and workspace memory.
	WorkspaceDir string `yaml:"workspace_dir,omitempty"`

	// DeployDir is the host directory holding the deployment descriptors.
	DeployDir string `yaml:"deploy_dir,omitempty"`

	// PortableConfigPath is the host-side portable config file.
	PortableConfigPath string `yaml:"portable_config_path,omitempty"`

	// TempDir is where per-run scratch directories are created.
	// Defaults to the system temp directory.
	TempDir string `yaml:"temp_dir,omitempty"`

	// OwnerUID and OwnerGID are the runtime identity restored data is
	// normalized to.
	OwnerUID int `yaml:"owner_uid,omitempty"`
	OwnerGID int `yaml:"owner_gid,omitempty"`

	// AuditDBPath is the local sqlite audit journal. Empty disables
	// journaling.
	AuditDBPath string `yaml:"audit_db_path,omitempty"`

	// Schedule is the cron expression driving automated backups.
	Schedule string `yaml:"schedule,omitempty"`

	Secrets     secrets.Config     `yaml:"secrets"`
	ObjectStore objectstore.Config `yaml:"object_store"`
	Workload    workload.Config    `yaml:"workload"`
}

// Defaults returns a Config pre-populated with the wizard's defaults.
func Defaults() *Config {
	return &Config{
		Prefix:             "skiff",
		RetentionDays:      30,
		DataDir:            "/opt/skiff/data",
		BrowserDir:         "/opt/skiff/browser",
		WorkspaceDir:       "/opt/skiff/workspace",
		DeployDir:          "/opt/skiff/deploy",
		PortableConfigPath: "/opt/skiff/deploy/skiff.json",
		OwnerUID:           1000,
		OwnerGID:           1000,
		Schedule:           "0 3 * * *",
		Workload: workload.Config{
			Type: workload.TypeFS,
		},
	}
}

// Load reads the configuration from the given path, applying defaults for
// unset fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// LoadDefault loads the configuration from the default path.
func LoadDefault() (*Config, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return nil, err
	}
	return Load(path)
}

// Save writes the configuration to the given path, creating directories as
// needed.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	// Holds backend credentials; keep it user-only.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks that the configuration is usable for backup and restore.
func (c *Config) Validate() error {
	if c.Prefix == "" {
		return errors.New("prefix is required")
	}
	if c.RetentionDays < 0 {
		return errors.New("retention_days cannot be negative")
	}
	if c.DataDir == "" {
		return errors.New("data_dir is required")
	}
	if c.Secrets.Backend == "" {
		return errors.New("secrets.backend is required")
	}
	if c.ObjectStore.Backend == "" {
		return errors.New("object_store.backend is required")
	}
	if c.Workload.Type == "" {
		return errors.New("workload.type is required")
	}
	return nil
}
