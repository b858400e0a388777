package workload

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/skiffhq/skiff/internal/fsutil"
)

// FSSource copies directly on the host filesystem. Used when the agent
// runtime's data directory is a bind mount visible from the host.
type FSSource struct {
	logger zerolog.Logger
}

// NewFSSource creates a host-filesystem Source.
func NewFSSource(logger zerolog.Logger) *FSSource {
	return &FSSource{
		logger: logger.With().Str("component", "fs_workload").Logger(),
	}
}

// CopyOut copies a host path to localPath.
func (f *FSSource) CopyOut(ctx context.Context, workloadPath, localPath string) error {
	return hostCopy(workloadPath, localPath)
}

// CopyIn copies localPath to a host path.
func (f *FSSource) CopyIn(ctx context.Context, localPath, workloadPath string) error {
	return hostCopy(localPath, workloadPath)
}

func hostCopy(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if info.IsDir() {
		return fsutil.CopyDir(src, dst)
	}
	return fsutil.CopyFile(src, dst)
}
