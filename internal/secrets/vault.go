package secrets

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"
)

// VaultConfig holds connection settings for a Vault KV v2 secret backend.
type VaultConfig struct {
	// Address is the Vault server URL. Falls back to VAULT_ADDR when empty.
	Address string `yaml:"address,omitempty"`
	// Token authenticates the client. Falls back to VAULT_TOKEN when empty.
	Token string `yaml:"token,omitempty"`
	// Mount is the KV v2 mount path. Defaults to "secret".
	Mount string `yaml:"mount,omitempty"`
}

// VaultStore implements Store against a Vault KV v2 mount. KV v2 gives the
// versioned, latest-wins write semantics the secret model requires.
type VaultStore struct {
	client *api.Client
	mount  string
	prefix string
	logger zerolog.Logger
}

// NewVaultStore creates a Store backed by Vault KV v2.
func NewVaultStore(cfg VaultConfig, prefix string, logger zerolog.Logger) (*VaultStore, error) {
	apiCfg := api.DefaultConfig()
	if cfg.Address != "" {
		apiCfg.Address = cfg.Address
	}
	client, err := api.NewClient(apiCfg)
	if err != nil {
		return nil, fmt.Errorf("create vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	mount := cfg.Mount
	if mount == "" {
		mount = "secret"
	}

	return &VaultStore{
		client: client,
		mount:  mount,
		prefix: prefix,
		logger: logger.With().Str("component", "vault_secrets").Logger(),
	}, nil
}

// Store writes a new version of the named secret. KV v2 assigns the version
// number; previous versions remain readable through Vault itself.
func (v *VaultStore) Store(ctx context.Context, name, value string) error {
	scoped := scopedName(v.prefix, name)
	_, err := v.client.KVv2(v.mount).Put(ctx, scoped, map[string]interface{}{
		"value": value,
	})
	if err != nil {
		return fmt.Errorf("store secret %s: %w", scoped, err)
	}
	return nil
}

// Get returns the latest version of the named secret.
func (v *VaultStore) Get(ctx context.Context, name string) (string, error) {
	scoped := scopedName(v.prefix, name)
	secret, err := v.client.KVv2(v.mount).Get(ctx, scoped)
	if err != nil {
		if isVaultNotFound(err) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get secret %s: %w", scoped, err)
	}
	if secret == nil || secret.Data == nil {
		return "", ErrNotFound
	}
	value, ok := secret.Data["value"].(string)
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Delete removes the named secret and all its version metadata.
func (v *VaultStore) Delete(ctx context.Context, name string) error {
	scoped := scopedName(v.prefix, name)
	if err := v.client.KVv2(v.mount).DeleteMetadata(ctx, scoped); err != nil {
		if isVaultNotFound(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete secret %s: %w", scoped, err)
	}
	return nil
}

// List returns the logical names of all secrets under the namespace prefix.
func (v *VaultStore) List(ctx context.Context) ([]string, error) {
	listPath := v.mount + "/metadata"
	resp, err := v.client.Logical().ListWithContext(ctx, listPath)
	if err != nil {
		return nil, fmt.Errorf("list secrets: %w", err)
	}
	if resp == nil || resp.Data == nil {
		return nil, nil
	}
	raw, ok := resp.Data["keys"].([]interface{})
	if !ok {
		return nil, nil
	}

	var names []string
	for _, k := range raw {
		key, ok := k.(string)
		if !ok {
			continue
		}
		if name, ok := logicalName(v.prefix, key); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// isVaultNotFound reports whether err is Vault's 404 response.
func isVaultNotFound(err error) bool {
	if err == nil {
		return false
	}
	if respErr, ok := err.(*api.ResponseError); ok {
		return respErr.StatusCode == 404
	}
	return strings.Contains(err.Error(), "secret not found")
}
