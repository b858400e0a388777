// Package backup orchestrates one backup run: snapshot build, compression,
// optional encryption, dual-named upload, and the retention sweep.
package backup

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/skiffhq/skiff/internal/agecrypt"
	"github.com/skiffhq/skiff/internal/archive"
	"github.com/skiffhq/skiff/internal/audit"
	"github.com/skiffhq/skiff/internal/config"
	"github.com/skiffhq/skiff/internal/manifest"
	"github.com/skiffhq/skiff/internal/objectstore"
	"github.com/skiffhq/skiff/internal/secrets"
	"github.com/skiffhq/skiff/internal/workload"
)

// Orchestrator runs backups.
type Orchestrator struct {
	cfg     *config.Config
	store   secrets.Store
	objects objectstore.Backend
	source  workload.Source
	journal *audit.Journal
	logger  zerolog.Logger

	// now is a test hook for the run timestamp.
	now func() time.Time
}

// NewOrchestrator creates a backup Orchestrator.
func NewOrchestrator(cfg *config.Config, store secrets.Store, objects objectstore.Backend, source workload.Source, journal *audit.Journal, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		cfg:     cfg,
		store:   store,
		objects: objects,
		source:  source,
		journal: journal,
		logger:  logger.With().Str("component", "backup").Logger(),
		now:     time.Now,
	}
}

// Result reports the outcome of one backup run.
type Result struct {
	RunID       string
	Timestamp   time.Time
	ArchiveName string
	LatestName  string
	Encrypted   bool
	Warnings    []string
	Sweep       *SweepResult
}

// Run executes one full backup. Build and upload failures are fatal;
// missing encryption material degrades to a plaintext upload with a
// warning; retention-sweep failures never fail the run.
func (o *Orchestrator) Run(ctx context.Context) (result *Result, err error) {
	started := o.now()
	ts := started.UTC()
	runID := uuid.New().String()
	result = &Result{RunID: runID, Timestamp: ts}

	logger := o.logger.With().Str("run_id", runID).Logger()
	logger.Info().Time("timestamp", ts).Msg("starting backup")

	defer func() {
		o.journal.RecordRun(ctx, audit.Run{
			ID:       runID,
			Kind:     audit.RunBackup,
			Archive:  result.ArchiveName,
			Started:  started,
			Finished: o.now(),
			Success:  err == nil,
			Warnings: len(result.Warnings),
			Error:    errString(err),
		})
	}()

	// Per-run scratch namespace; removed unconditionally on exit.
	scratch, err := os.MkdirTemp(o.cfg.TempDir, fmt.Sprintf("%s-%s-*", o.cfg.Prefix, ts.Format(manifest.TimestampLayout)))
	if err != nil {
		return result, fmt.Errorf("create scratch directory: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(scratch); rmErr != nil {
			logger.Warn().Err(rmErr).Str("dir", scratch).Msg("scratch cleanup failed")
		}
	}()

	// BUILD
	snapDir := filepath.Join(scratch, manifest.SnapshotDirName(o.cfg.Prefix, ts))
	builder := archive.NewBuilder(o.source, archive.Spec{
		DataDir:            o.cfg.DataDir,
		BrowserDir:         o.cfg.BrowserDir,
		WorkspaceDir:       o.cfg.WorkspaceDir,
		DeployDir:          o.cfg.DeployDir,
		PortableConfigPath: o.cfg.PortableConfigPath,
	}, logger)

	buildResult, err := builder.Build(ctx, snapDir)
	if err != nil {
		return result, fmt.Errorf("build snapshot: %w", err)
	}
	result.Warnings = append(result.Warnings, buildResult.Warnings...)

	// COMPRESS
	tarPath := filepath.Join(scratch, manifest.ArchiveName(o.cfg.Prefix, ts, false))
	if err := archive.Pack(snapDir, tarPath); err != nil {
		return result, fmt.Errorf("compress snapshot: %w", err)
	}

	// ENCRYPT or SKIP. A missing or unusable public key never blocks the
	// backup; it degrades to a plaintext upload.
	uploadPath := tarPath
	if pub, ok := secrets.GetOptional(ctx, o.store, secrets.NameAgePublicKey, logger); ok {
		encPath, encErr := agecrypt.EncryptFile(tarPath, pub)
		if encErr != nil {
			msg := fmt.Sprintf("encryption skipped: %v", encErr)
			result.Warnings = append(result.Warnings, msg)
			logger.Warn().Msg(msg)
		} else {
			uploadPath = encPath
			result.Encrypted = true
			// The plaintext variant must not linger next to the ciphertext.
			if rmErr := os.Remove(tarPath); rmErr != nil {
				logger.Warn().Err(rmErr).Msg("plaintext archive cleanup failed")
			}
		}
	} else {
		msg := "encryption skipped: no public key available"
		result.Warnings = append(result.Warnings, msg)
		logger.Warn().Msg(msg)
	}

	// UPLOAD, timestamped then latest.
	result.ArchiveName = manifest.ArchiveName(o.cfg.Prefix, ts, result.Encrypted)
	result.LatestName = manifest.LatestName(o.cfg.Prefix, result.Encrypted)

	if err := o.objects.Put(ctx, result.ArchiveName, uploadPath); err != nil {
		return result, fmt.Errorf("upload archive %s: %w", result.ArchiveName, err)
	}
	if err := o.objects.Put(ctx, result.LatestName, uploadPath); err != nil {
		return result, fmt.Errorf("upload latest alias %s: %w", result.LatestName, err)
	}
	logger.Info().
		Str("archive", result.ArchiveName).
		Bool("encrypted", result.Encrypted).
		Msg("archive uploaded")

	// RETENTION SWEEP. Never fails an otherwise-successful backup.
	if o.cfg.RetentionDays > 0 {
		sweeper := NewSweeper(o.objects, o.cfg.Prefix, o.cfg.RetentionDays, o.journal, logger)
		sweeper.now = o.now
		sweep, sweepErr := sweeper.Sweep(ctx, runID)
		if sweepErr != nil {
			msg := fmt.Sprintf("retention sweep failed: %v", sweepErr)
			result.Warnings = append(result.Warnings, msg)
			logger.Warn().Msg(msg)
		} else {
			result.Sweep = sweep
		}
	}

	logger.Info().Int("warnings", len(result.Warnings)).Msg("backup complete")
	return result, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
