// Package archive builds and unpacks skiff backup archives. The builder is
// a flat best-effort fan-out over the canonical manifest: a single missing
// entry costs a warning, never the backup.
package archive

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/skiffhq/skiff/internal/fsutil"
	"github.com/skiffhq/skiff/internal/manifest"
	"github.com/skiffhq/skiff/internal/workload"
)

// Spec names the source locations a snapshot is built from. Workload-side
// paths are interpreted by the workload source; the rest are host paths.
type Spec struct {
	// DataDir is the agent runtime's state directory (workload-side).
	DataDir string
	// BrowserDir is the host-side browser profile directory.
	BrowserDir string
	// WorkspaceDir is the host-side workspace directory.
	WorkspaceDir string
	// DeployDir is the host directory holding deployment descriptors.
	DeployDir string
	// PortableConfigPath is the host-side portable config file.
	PortableConfigPath string
}

// Builder snapshots the manifest entries into a destination directory.
type Builder struct {
	source workload.Source
	spec   Spec
	logger zerolog.Logger
}

// NewBuilder creates a Builder reading from the given workload source and
// host locations.
func NewBuilder(source workload.Source, spec Spec, logger zerolog.Logger) *Builder {
	return &Builder{
		source: source,
		spec:   spec,
		logger: logger.With().Str("component", "archive_builder").Logger(),
	}
}

// BuildResult reports what a build captured and what it had to skip.
type BuildResult struct {
	// ConfigCaptured is the basic health signal: whether the primary
	// configuration file made it into the snapshot.
	ConfigCaptured bool
	// Warnings lists every entry skipped or partially captured.
	Warnings []string
}

// Build populates destDir with the canonical manifest contents. Individual
// entry failures are warnings; Build only returns an error when destDir
// itself cannot be created.
func (b *Builder) Build(ctx context.Context, destDir string) (*BuildResult, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	result := &BuildResult{}
	warn := func(format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		result.Warnings = append(result.Warnings, msg)
		b.logger.Warn().Msg(msg)
	}

	// Primary configuration file. Failure is still non-fatal (a partial
	// backup beats none) but logged at elevated severity: this file is
	// the health signal restore validates.
	cfgSrc := path.Join(b.spec.DataDir, manifest.PrimaryConfigFile)
	if err := b.source.CopyOut(ctx, cfgSrc, filepath.Join(destDir, manifest.PrimaryConfigFile)); err != nil {
		msg := fmt.Sprintf("primary config %s not captured: %v", manifest.PrimaryConfigFile, err)
		result.Warnings = append(result.Warnings, msg)
		b.logger.Error().Msg(msg)
	} else {
		result.ConfigCaptured = true
	}

	// Canonical data subdirectories.
	for _, sub := range manifest.DataSubdirs {
		src := path.Join(b.spec.DataDir, sub)
		if err := b.source.CopyOut(ctx, src, filepath.Join(destDir, sub)); err != nil {
			warn("data directory %s not captured: %v", sub, err)
		}
	}

	// Browser profile, minus cache-only subpaths.
	if fsutil.DirExists(b.spec.BrowserDir) {
		browserDst := filepath.Join(destDir, manifest.BrowserDir)
		if err := fsutil.CopyDir(b.spec.BrowserDir, browserDst); err != nil {
			warn("browser profile not captured: %v", err)
		} else if err := StripBrowserCaches(browserDst); err != nil {
			warn("browser cache stripping incomplete: %v", err)
		}
	} else {
		warn("browser profile directory %s not present", b.spec.BrowserDir)
	}

	// Workspace documents: optional persona files, skipped silently.
	wsDst := filepath.Join(destDir, manifest.WorkspaceArchiveDir)
	for _, name := range manifest.WorkspaceFiles {
		src := filepath.Join(b.spec.WorkspaceDir, name)
		if !fsutil.FileExists(src) {
			continue
		}
		if err := fsutil.CopyFile(src, filepath.Join(wsDst, name)); err != nil {
			warn("workspace file %s not captured: %v", name, err)
		}
	}

	// Workspace memory subdirectory.
	wsMemSrc := filepath.Join(b.spec.WorkspaceDir, manifest.WorkspaceMemoryDir)
	if fsutil.DirExists(wsMemSrc) {
		if err := fsutil.CopyDir(wsMemSrc, filepath.Join(wsDst, manifest.WorkspaceMemoryDir)); err != nil {
			warn("workspace memory not captured: %v", err)
		}
	}

	// Deployment descriptors.
	for _, name := range manifest.DeployDescriptors {
		src := filepath.Join(b.spec.DeployDir, name)
		if err := fsutil.CopyFile(src, filepath.Join(destDir, name)); err != nil {
			warn("deployment descriptor %s not captured: %v", name, err)
		}
	}

	// Portable config.
	if err := fsutil.CopyFile(b.spec.PortableConfigPath, filepath.Join(destDir, manifest.PortableConfig)); err != nil {
		warn("portable config not captured: %v", err)
	}

	return result, nil
}

// StripBrowserCaches removes the cache-only subdirectories from a browser
// profile tree wherever they appear. Run on backup to shrink archives and
// again after restore so stale cached assets never come back.
func StripBrowserCaches(browserDir string) error {
	cacheNames := make(map[string]bool, len(manifest.BrowserCacheSubdirs))
	for _, name := range manifest.BrowserCacheSubdirs {
		cacheNames[name] = true
	}

	var targets []string
	err := filepath.WalkDir(browserDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() && cacheNames[d.Name()] {
			targets = append(targets, p)
			return filepath.SkipDir
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan browser profile: %w", err)
	}

	for _, t := range targets {
		if err := os.RemoveAll(t); err != nil {
			return fmt.Errorf("remove cache directory %s: %w", t, err)
		}
	}
	return nil
}
