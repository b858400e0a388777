package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skiffhq/skiff/internal/objectstore"
	"github.com/skiffhq/skiff/internal/secrets"
	"github.com/skiffhq/skiff/internal/workload"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.Secrets.Backend = secrets.BackendMemory
	cfg.ObjectStore.Backend = objectstore.BackendLocal
	cfg.ObjectStore.LocalDir = "/tmp/objects"
	return cfg
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		if err := validConfig().Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("missing prefix", func(t *testing.T) {
		cfg := validConfig()
		cfg.Prefix = ""
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("negative retention", func(t *testing.T) {
		cfg := validConfig()
		cfg.RetentionDays = -1
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("missing secret backend", func(t *testing.T) {
		cfg := validConfig()
		cfg.Secrets.Backend = ""
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("missing object store backend", func(t *testing.T) {
		cfg := validConfig()
		cfg.ObjectStore.Backend = ""
		if err := cfg.Validate(); err == nil {
			t.Fatal("expected error")
		}
	})
}

func TestLoadSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yml")

	cfg := validConfig()
	cfg.Prefix = "staging"
	cfg.RetentionDays = 14
	cfg.Workload = workload.Config{Type: workload.TypeDocker, Container: "skiff-agent"}

	require.NoError(t, cfg.Save(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), "config file must be user-only")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", loaded.Prefix)
	assert.Equal(t, 14, loaded.RetentionDays)
	assert.Equal(t, "skiff-agent", loaded.Workload.Container)
	// Unset fields fall back to defaults.
	assert.Equal(t, Defaults().DataDir, loaded.DataDir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.Error(t, err)
}
