package workload

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// DockerSource copies files through a running container using docker cp.
type DockerSource struct {
	container string
	logger    zerolog.Logger
}

// NewDockerSource creates a Source backed by docker cp against the named
// container.
func NewDockerSource(container string, logger zerolog.Logger) *DockerSource {
	return &DockerSource{
		container: container,
		logger:    logger.With().Str("component", "docker_workload").Str("container", container).Logger(),
	}
}

// CopyOut copies a path out of the container.
func (d *DockerSource) CopyOut(ctx context.Context, workloadPath, localPath string) error {
	return d.cp(ctx, d.container+":"+workloadPath, localPath)
}

// CopyIn copies a local path into the container.
func (d *DockerSource) CopyIn(ctx context.Context, localPath, workloadPath string) error {
	return d.cp(ctx, localPath, d.container+":"+workloadPath)
}

func (d *DockerSource) cp(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, "docker", "cp", "-q", src, dst)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	d.logger.Debug().Str("src", src).Str("dst", dst).Msg("docker cp")
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("docker cp %s -> %s: %s: %w", src, dst, msg, err)
		}
		return fmt.Errorf("docker cp %s -> %s: %w", src, dst, err)
	}
	return nil
}

// Exec runs a command inside the container. Used by restore for ownership
// normalization when the data tree lives in the container.
func (d *DockerSource) Exec(ctx context.Context, args ...string) error {
	cmdArgs := append([]string{"exec", d.container}, args...)
	cmd := exec.CommandContext(ctx, "docker", cmdArgs...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return fmt.Errorf("docker exec %v: %s: %w", args, msg, err)
		}
		return fmt.Errorf("docker exec %v: %w", args, err)
	}
	return nil
}
