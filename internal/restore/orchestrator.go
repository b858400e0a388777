// Package restore orchestrates disaster recovery from a remote archive:
// source resolution (encrypted preferred, legacy plaintext fallback),
// download, conditional decryption, extraction, selective distribution,
// ownership normalization, and guaranteed cleanup.
package restore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skiffhq/skiff/internal/agecrypt"
	"github.com/skiffhq/skiff/internal/archive"
	"github.com/skiffhq/skiff/internal/audit"
	"github.com/skiffhq/skiff/internal/config"
	"github.com/skiffhq/skiff/internal/fsutil"
	"github.com/skiffhq/skiff/internal/manifest"
	"github.com/skiffhq/skiff/internal/objectstore"
	"github.com/skiffhq/skiff/internal/secrets"
	"github.com/skiffhq/skiff/internal/workload"
)

// ErrPrivateKeyMissing indicates an encrypted archive was selected but the
// decrypting identity is not in the secret store. The error text names the
// exact secret the operator must provision.
var ErrPrivateKeyMissing = errors.New("encrypted backup requires private key in secret store")

// Orchestrator runs restores.
type Orchestrator struct {
	cfg     *config.Config
	store   secrets.Store
	objects objectstore.Backend
	source  workload.Source
	journal *audit.Journal
	logger  zerolog.Logger
}

// NewOrchestrator creates a restore Orchestrator.
func NewOrchestrator(cfg *config.Config, store secrets.Store, objects objectstore.Backend, source workload.Source, journal *audit.Journal, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		store:   store,
		objects: objects,
		source:  source,
		journal: journal,
		logger:  logger.With().Str("component", "restore").Logger(),
	}
}

// Result reports the outcome of one restore run.
type Result struct {
	RunID        string
	ResolvedName string
	Decrypted    bool
	Warnings     []string
}

// Run executes a restore of the named archive. An empty or "latest" name
// restores the most recent backup. Newer deployments produce encrypted
// archives and older ones may not, so resolution prefers the encrypted
// variant and falls back to the plaintext name transparently.
func (o *Orchestrator) Run(ctx context.Context, requested string) (result *Result, err error) {
	started := time.Now()
	runID := uuid.New().String()
	result = &Result{RunID: runID}

	logger := o.logger.With().Str("run_id", runID).Logger()

	defer func() {
		o.journal.RecordRun(ctx, audit.Run{
			ID:       runID,
			Kind:     audit.RunRestore,
			Archive:  result.ResolvedName,
			Started:  started,
			Finished: time.Now(),
			Success:  err == nil,
			Warnings: len(result.Warnings),
			Error:    errString(err),
		})
	}()

	warn := func(format string, args ...interface{}) {
		msg := fmt.Sprintf(format, args...)
		result.Warnings = append(result.Warnings, msg)
		logger.Warn().Msg(msg)
	}

	// RESOLVE_SOURCE
	name, err := o.resolveSource(ctx, requested)
	if err != nil {
		return result, err
	}
	result.ResolvedName = name
	logger.Info().Str("archive", name).Msg("restoring from archive")

	// Per-run scratch namespace; removed unconditionally on exit. The
	// decrypted key file gets its own removal below so it never outlives
	// the decrypt step, even though it also lives under scratch.
	scratch, err := os.MkdirTemp(o.cfg.TempDir, o.cfg.Prefix+"-restore-*")
	if err != nil {
		return result, fmt.Errorf("create scratch directory: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(scratch); rmErr != nil {
			logger.Warn().Err(rmErr).Str("dir", scratch).Msg("scratch cleanup failed")
		}
	}()

	// DOWNLOAD
	workPath := filepath.Join(scratch, filepath.Base(name))
	if err := o.objects.Get(ctx, name, workPath); err != nil {
		return result, fmt.Errorf("download archive %s: %w", name, err)
	}

	// DECRYPT or PASS
	encrypted := manifest.IsEncryptedName(name)
	if !encrypted {
		sniffed, sniffErr := manifest.SniffEncrypted(workPath)
		if sniffErr != nil {
			return result, sniffErr
		}
		encrypted = sniffed
	}
	if encrypted {
		plainPath, decErr := o.decrypt(ctx, scratch, workPath, logger)
		if decErr != nil {
			return result, decErr
		}
		workPath = plainPath
		result.Decrypted = true
	}

	// EXTRACT
	extractDir := filepath.Join(scratch, "extract")
	if err := os.MkdirAll(extractDir, 0o700); err != nil {
		return result, fmt.Errorf("create extraction directory: %w", err)
	}
	if err := archive.Unpack(workPath, extractDir); err != nil {
		return result, fmt.Errorf("extract archive: %w", err)
	}
	snapDir, err := archive.FindSnapshotDir(extractDir, o.cfg.Prefix)
	if err != nil {
		return result, err
	}

	// VALIDATE_MANIFEST
	if !fsutil.FileExists(filepath.Join(snapDir, manifest.PrimaryConfigFile)) {
		warn("archive has no %s; restoring without the primary config", manifest.PrimaryConfigFile)
	}

	// DISTRIBUTE
	o.distribute(ctx, snapDir, warn)

	// FIX_OWNERSHIP
	o.fixOwnership(ctx, warn)

	logger.Info().Int("warnings", len(result.Warnings)).Msg("restore complete")
	return result, nil
}

// resolveSource maps the requested name onto a concrete remote object:
// explicit encrypted names are used verbatim; otherwise the encrypted
// variant of the requested name is preferred and the plaintext name is the
// legacy fallback.
func (o *Orchestrator) resolveSource(ctx context.Context, requested string) (string, error) {
	if requested == "" || requested == manifest.LatestToken {
		requested = manifest.LatestName(o.cfg.Prefix, false)
	}
	if manifest.IsEncryptedName(requested) {
		return requested, nil
	}

	encName := requested + manifest.EncryptedExt
	exists, err := o.objects.Exists(ctx, encName)
	if err != nil {
		return "", fmt.Errorf("probe for encrypted archive %s: %w", encName, err)
	}
	if exists {
		return encName, nil
	}
	return requested, nil
}

// decrypt fetches the private key, materializes it as a short-lived
// owner-only key file, decrypts the archive, and removes both the key file
// and the ciphertext before returning.
func (o *Orchestrator) decrypt(ctx context.Context, scratch, cipherPath string, logger zerolog.Logger) (string, error) {
	identity, err := o.store.Get(ctx, secrets.NameAgePrivateKey)
	if err != nil {
		if errors.Is(err, secrets.ErrNotFound) {
			return "", fmt.Errorf("%w: provision secret %q and retry",
				ErrPrivateKeyMissing, o.cfg.Prefix+"-"+secrets.NameAgePrivateKey)
		}
		return "", fmt.Errorf("fetch private key: %w", err)
	}
	if identity == "" {
		return "", fmt.Errorf("%w: secret %q is empty",
			ErrPrivateKeyMissing, o.cfg.Prefix+"-"+secrets.NameAgePrivateKey)
	}

	keyFile, err := agecrypt.WriteKeyFile(scratch, identity)
	if err != nil {
		return "", err
	}
	// The key file must not outlive this function, success or failure.
	defer func() {
		if rmErr := os.Remove(keyFile); rmErr != nil && !os.IsNotExist(rmErr) {
			logger.Warn().Err(rmErr).Msg("key file cleanup failed")
		}
	}()

	plainPath, err := agecrypt.DecryptFile(cipherPath, keyFile)
	if err != nil {
		return "", err
	}
	if rmErr := os.Remove(cipherPath); rmErr != nil {
		logger.Warn().Err(rmErr).Msg("ciphertext cleanup failed")
	}
	return plainPath, nil
}

// distribute copies the snapshot contents into the live locations. Every
// entry is independent and best-effort; a missing entry is a warning.
func (o *Orchestrator) distribute(ctx context.Context, snapDir string, warn func(string, ...interface{})) {
	// Primary config.
	cfgSrc := filepath.Join(snapDir, manifest.PrimaryConfigFile)
	if fsutil.FileExists(cfgSrc) {
		if err := o.source.CopyIn(ctx, cfgSrc, path.Join(o.cfg.DataDir, manifest.PrimaryConfigFile)); err != nil {
			warn("primary config not restored: %v", err)
		}
	}

	// Canonical data subdirectories.
	for _, sub := range manifest.DataSubdirs {
		src := filepath.Join(snapDir, sub)
		if !fsutil.DirExists(src) {
			warn("archive has no data directory %s", sub)
			continue
		}
		if err := o.source.CopyIn(ctx, src, path.Join(o.cfg.DataDir, sub)); err != nil {
			warn("data directory %s not restored: %v", sub, err)
		}
	}

	// Browser profile, with the cache-stripping rule applied again after
	// restore so stale caches never reappear.
	browserSrc := filepath.Join(snapDir, manifest.BrowserDir)
	if fsutil.DirExists(browserSrc) {
		if err := fsutil.CopyDir(browserSrc, o.cfg.BrowserDir); err != nil {
			warn("browser profile not restored: %v", err)
		} else if err := archive.StripBrowserCaches(o.cfg.BrowserDir); err != nil {
			warn("browser cache stripping incomplete: %v", err)
		}
	}

	// Workspace: merged into the live workspace, never replaced wholesale.
	wsSrc := filepath.Join(snapDir, manifest.WorkspaceArchiveDir)
	if fsutil.DirExists(wsSrc) {
		for _, name := range manifest.WorkspaceFiles {
			src := filepath.Join(wsSrc, name)
			if !fsutil.FileExists(src) {
				continue
			}
			if err := fsutil.CopyFile(src, filepath.Join(o.cfg.WorkspaceDir, name)); err != nil {
				warn("workspace file %s not restored: %v", name, err)
			}
		}
		memSrc := filepath.Join(wsSrc, manifest.WorkspaceMemoryDir)
		if fsutil.DirExists(memSrc) {
			if err := fsutil.CopyDir(memSrc, filepath.Join(o.cfg.WorkspaceDir, manifest.WorkspaceMemoryDir)); err != nil {
				warn("workspace memory not restored: %v", err)
			}
		}
	}

	// Deployment descriptors and portable config.
	for _, name := range manifest.DeployDescriptors {
		src := filepath.Join(snapDir, name)
		if !fsutil.FileExists(src) {
			warn("archive has no deployment descriptor %s", name)
			continue
		}
		if err := fsutil.CopyFile(src, filepath.Join(o.cfg.DeployDir, name)); err != nil {
			warn("deployment descriptor %s not restored: %v", name, err)
		}
	}
	portableSrc := filepath.Join(snapDir, manifest.PortableConfig)
	if fsutil.FileExists(portableSrc) {
		if err := fsutil.CopyFile(portableSrc, o.cfg.PortableConfigPath); err != nil {
			warn("portable config not restored: %v", err)
		}
	}
}

// fixOwnership normalizes the restored data tree to the runtime identity.
// Inside a container the chown runs through docker exec; on the host it
// walks the tree directly.
func (o *Orchestrator) fixOwnership(ctx context.Context, warn func(string, ...interface{})) {
	owner := fmt.Sprintf("%d:%d", o.cfg.OwnerUID, o.cfg.OwnerGID)

	if docker, ok := o.source.(*workload.DockerSource); ok {
		if err := docker.Exec(ctx, "chown", "-R", owner, o.cfg.DataDir); err != nil {
			warn("ownership normalization failed: %v", err)
		}
		return
	}
	if err := fsutil.ChownTree(o.cfg.DataDir, o.cfg.OwnerUID, o.cfg.OwnerGID); err != nil {
		warn("ownership normalization failed: %v", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
