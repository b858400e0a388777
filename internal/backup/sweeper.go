package backup

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/skiffhq/skiff/internal/audit"
	"github.com/skiffhq/skiff/internal/manifest"
	"github.com/skiffhq/skiff/internal/objectstore"
)

// Sweeper deletes timestamped archives older than the retention window.
// The "latest" alias is exempt. Objects whose names carry no parseable
// timestamp are never deleted; each skip is journaled so an operator can
// audit what the sweep refused to touch.
type Sweeper struct {
	objects       objectstore.Backend
	prefix        string
	retentionDays int
	journal       *audit.Journal
	logger        zerolog.Logger

	// now is a test hook for the cutoff computation.
	now func() time.Time
}

// NewSweeper creates a retention Sweeper.
func NewSweeper(objects objectstore.Backend, prefix string, retentionDays int, journal *audit.Journal, logger zerolog.Logger) *Sweeper {
	return &Sweeper{
		objects:       objects,
		prefix:        prefix,
		retentionDays: retentionDays,
		journal:       journal,
		logger:        logger.With().Str("component", "retention").Logger(),
		now:           time.Now,
	}
}

// SweepResult reports what one sweep did.
type SweepResult struct {
	Deleted       []string
	Retained      []string
	Skipped       []string
	FailedDeletes []string
}

// Sweep lists remote archives and deletes those strictly older than the
// cutoff date (now minus the retention window, at date granularity; an
// archive dated exactly at the cutoff is retained). Individual delete
// failures are logged and do not stop the sweep.
func (s *Sweeper) Sweep(ctx context.Context, runID string) (*SweepResult, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -s.retentionDays).Truncate(24 * time.Hour)

	names, err := s.objects.List(ctx, s.prefix+"-")
	if err != nil {
		return nil, fmt.Errorf("list remote archives: %w", err)
	}

	result := &SweepResult{}
	for _, name := range names {
		if manifest.IsLatestName(s.prefix, name) {
			result.Retained = append(result.Retained, name)
			s.journal.RecordSweepDecision(ctx, runID, name, audit.DecisionRetained, "latest alias is retention-exempt")
			continue
		}
		if !manifest.IsArchiveName(s.prefix, name) {
			result.Skipped = append(result.Skipped, name)
			s.logger.Warn().Str("object", name).Msg("retention skipped object outside archive naming pattern")
			s.journal.RecordSweepDecision(ctx, runID, name, audit.DecisionSkippedUnparseable, "not an archive name")
			continue
		}

		ts, ok := manifest.ParseTimestamp(name)
		if !ok {
			result.Skipped = append(result.Skipped, name)
			s.logger.Warn().Str("object", name).Msg("retention skipped object with no parseable timestamp")
			s.journal.RecordSweepDecision(ctx, runID, name, audit.DecisionSkippedUnparseable, "no timestamp token")
			continue
		}

		day := ts.UTC().Truncate(24 * time.Hour)
		if !day.Before(cutoff) {
			result.Retained = append(result.Retained, name)
			s.journal.RecordSweepDecision(ctx, runID, name, audit.DecisionRetained, "")
			continue
		}

		if err := s.objects.Delete(ctx, name); err != nil {
			result.FailedDeletes = append(result.FailedDeletes, name)
			s.logger.Warn().Err(err).Str("object", name).Msg("retention delete failed")
			s.journal.RecordSweepDecision(ctx, runID, name, audit.DecisionDeleteFailed, err.Error())
			continue
		}
		result.Deleted = append(result.Deleted, name)
		s.logger.Info().Str("object", name).Time("archived_at", ts).Msg("retention deleted old archive")
		s.journal.RecordSweepDecision(ctx, runID, name, audit.DecisionDeleted, "")
	}

	s.logger.Info().
		Int("deleted", len(result.Deleted)).
		Int("retained", len(result.Retained)).
		Int("skipped", len(result.Skipped)).
		Msg("retention sweep complete")
	return result, nil
}
