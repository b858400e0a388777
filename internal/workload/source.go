// Package workload abstracts the running workload whose state is snapshotted
// into backups and repopulated on restore. The agent runtime may live in a
// container (copied via docker cp) or directly on the host filesystem.
package workload

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Source is the copy-in/copy-out interface over the workload's filesystem.
// Paths on the workload side are absolute within the workload's own view.
type Source interface {
	// CopyOut copies a file or directory tree out of the workload into
	// localPath.
	CopyOut(ctx context.Context, workloadPath, localPath string) error

	// CopyIn copies a local file or directory tree into the workload at
	// workloadPath.
	CopyIn(ctx context.Context, localPath, workloadPath string) error
}

// Type identifies a workload source implementation.
type Type string

const (
	// TypeDocker copies through a running container.
	TypeDocker Type = "docker"
	// TypeFS copies directly on the host filesystem.
	TypeFS Type = "fs"
)

// Config selects and configures a workload source.
type Config struct {
	Type Type `yaml:"type"`
	// Container is the container name or ID for the docker source.
	Container string `yaml:"container,omitempty"`
}

// New creates the Source selected by cfg.
func New(cfg Config, logger zerolog.Logger) (Source, error) {
	switch cfg.Type {
	case TypeDocker:
		if cfg.Container == "" {
			return nil, fmt.Errorf("docker workload: container is required")
		}
		return NewDockerSource(cfg.Container, logger), nil
	case TypeFS:
		return NewFSSource(logger), nil
	default:
		return nil, fmt.Errorf("unsupported workload source: %q", cfg.Type)
	}
}
