package secrets

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// BackendType identifies a secret backend implementation.
type BackendType string

const (
	// BackendGCP is Google Secret Manager.
	BackendGCP BackendType = "gcp"
	// BackendVault is HashiCorp Vault KV v2.
	BackendVault BackendType = "vault"
	// BackendMemory is the in-process store used in tests and dry runs.
	BackendMemory BackendType = "memory"
)

// Well-known logical secret names used by the deployment wizard and the
// backup subsystem.
const (
	// NameAnthropicAPIKey holds the agent runtime's API credential.
	NameAnthropicAPIKey = "anthropic-api-key"
	// NameAgePublicKey holds the age recipient encrypting every archive.
	NameAgePublicKey = "backup-age-public-key"
	// NameAgePrivateKey holds the age identity decrypting archives at
	// restore time. Without it, encrypted archives are unrecoverable.
	NameAgePrivateKey = "backup-age-private-key"
)

// Config selects and configures a secret backend.
type Config struct {
	Backend BackendType `yaml:"backend"`
	GCP     GCPConfig   `yaml:"gcp,omitempty"`
	Vault   VaultConfig `yaml:"vault,omitempty"`
}

// New creates the secret Store selected by cfg, namespaced under prefix.
func New(ctx context.Context, cfg Config, prefix string, logger zerolog.Logger) (Store, error) {
	switch cfg.Backend {
	case BackendGCP:
		return NewGCPStore(ctx, cfg.GCP, prefix, logger)
	case BackendVault:
		return NewVaultStore(cfg.Vault, prefix, logger)
	case BackendMemory:
		return NewMemoryStore(prefix), nil
	default:
		return nil, fmt.Errorf("unsupported secret backend: %q", cfg.Backend)
	}
}
