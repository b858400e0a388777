package secrets

import (
	"context"
	"fmt"
	"path"
	"sort"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rs/zerolog"
)

// GCPConfig holds connection settings for a Google Secret Manager backend.
type GCPConfig struct {
	// Project is the GCP project ID owning the secrets.
	Project string `yaml:"project"`
	// CredentialsFile optionally points at a service-account JSON key.
	// Application default credentials are used when empty.
	CredentialsFile string `yaml:"credentials_file,omitempty"`
}

// GCPStore implements Store against Google Secret Manager. Secret Manager
// assigns monotonically increasing version numbers on every add; reads pin
// the "latest" version alias.
type GCPStore struct {
	client  *secretmanager.Client
	project string
	prefix  string
	logger  zerolog.Logger
}

// NewGCPStore creates a Store backed by Google Secret Manager.
func NewGCPStore(ctx context.Context, cfg GCPConfig, prefix string, logger zerolog.Logger) (*GCPStore, error) {
	if cfg.Project == "" {
		return nil, fmt.Errorf("gcp secret backend: project is required")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := secretmanager.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create secret manager client: %w", err)
	}

	return &GCPStore{
		client:  client,
		project: cfg.Project,
		prefix:  prefix,
		logger:  logger.With().Str("component", "gcp_secrets").Logger(),
	}, nil
}

// Close releases the underlying gRPC connection.
func (g *GCPStore) Close() error {
	return g.client.Close()
}

func (g *GCPStore) parent() string {
	return "projects/" + g.project
}

func (g *GCPStore) secretPath(name string) string {
	return g.parent() + "/secrets/" + scopedName(g.prefix, name)
}

// Store ensures the secret container exists, then appends a new version.
func (g *GCPStore) Store(ctx context.Context, name, value string) error {
	scoped := scopedName(g.prefix, name)

	_, err := g.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
		Parent:   g.parent(),
		SecretId: scoped,
		Secret: &secretmanagerpb.Secret{
			Replication: &secretmanagerpb.Replication{
				Replication: &secretmanagerpb.Replication_Automatic_{
					Automatic: &secretmanagerpb.Replication_Automatic{},
				},
			},
		},
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("create secret %s: %w", scoped, err)
	}

	_, err = g.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent: g.secretPath(name),
		Payload: &secretmanagerpb.SecretPayload{
			Data: []byte(value),
		},
	})
	if err != nil {
		return fmt.Errorf("add secret version %s: %w", scoped, err)
	}
	return nil
}

// Get returns the latest version of the named secret.
func (g *GCPStore) Get(ctx context.Context, name string) (string, error) {
	resp, err := g.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: g.secretPath(name) + "/versions/latest",
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("access secret %s: %w", scopedName(g.prefix, name), err)
	}
	return string(resp.GetPayload().GetData()), nil
}

// Delete removes the named secret and all its versions.
func (g *GCPStore) Delete(ctx context.Context, name string) error {
	err := g.client.DeleteSecret(ctx, &secretmanagerpb.DeleteSecretRequest{
		Name: g.secretPath(name),
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("delete secret %s: %w", scopedName(g.prefix, name), err)
	}
	return nil
}

// List returns the logical names of all secrets under the namespace prefix.
func (g *GCPStore) List(ctx context.Context) ([]string, error) {
	it := g.client.ListSecrets(ctx, &secretmanagerpb.ListSecretsRequest{
		Parent: g.parent(),
	})

	var names []string
	for {
		secret, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list secrets: %w", err)
		}
		scoped := path.Base(secret.GetName())
		if name, ok := logicalName(g.prefix, scoped); ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}
