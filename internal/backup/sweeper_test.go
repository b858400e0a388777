package backup

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/skiffhq/skiff/internal/audit"
	"github.com/skiffhq/skiff/internal/manifest"
	"github.com/skiffhq/skiff/internal/objectstore"
)

func newTestSweeper(objects objectstore.Backend, retentionDays int, journal *audit.Journal, now time.Time) *Sweeper {
	s := NewSweeper(objects, "skiff", retentionDays, journal, zerolog.Nop())
	s.now = func() time.Time { return now }
	return s
}

func TestSweepRetentionBoundary(t *testing.T) {
	ctx := context.Background()
	objects := objectstore.NewMemoryBackend()
	now := time.Date(2026, 8, 26, 3, 0, 0, 0, time.UTC)

	ages := map[string]int{}
	for _, days := range []int{100, 91, 90, 89} {
		name := manifest.ArchiveName("skiff", now.AddDate(0, 0, -days), true)
		ages[name] = days
		seedObject(t, objects, name)
	}
	latest := manifest.LatestName("skiff", true)
	seedObject(t, objects, latest)

	result, err := newTestSweeper(objects, 90, nil, now).Sweep(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}

	if len(result.Deleted) != 2 {
		t.Fatalf("expected 2 deletions, got %v", result.Deleted)
	}
	for _, name := range result.Deleted {
		if d := ages[name]; d != 100 && d != 91 {
			t.Errorf("deleted archive %s is only %d days old", name, d)
		}
	}
	// An archive dated exactly at the cutoff stays.
	for name, days := range ages {
		exists, _ := objects.Exists(ctx, name)
		wantGone := days > 90
		if exists == wantGone {
			t.Errorf("archive %s (%d days old): exists=%v", name, days, exists)
		}
	}
	if exists, _ := objects.Exists(ctx, latest); !exists {
		t.Error("latest alias deleted by sweep")
	}
}

func TestSweepNeverDeletesUnparseableNames(t *testing.T) {
	ctx := context.Background()
	objects := objectstore.NewMemoryBackend()
	now := time.Date(2026, 8, 26, 3, 0, 0, 0, time.UTC)

	journal, err := audit.Open(filepath.Join(t.TempDir(), "audit.db"), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer journal.Close()

	// Archive-shaped name with no timestamp, and a foreign object that
	// merely shares the prefix. Both very old in spirit, both untouchable.
	golden := "skiff-golden-master.tar.gz"
	foreign := "skiff-operator-notes.txt"
	seedObject(t, objects, golden)
	seedObject(t, objects, foreign)

	result, err := newTestSweeper(objects, 1, journal, now).Sweep(ctx, "run-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Deleted) != 0 {
		t.Fatalf("unexpected deletions: %v", result.Deleted)
	}
	if len(result.Skipped) != 2 {
		t.Fatalf("expected 2 skips, got %v", result.Skipped)
	}
	for _, name := range []string{golden, foreign} {
		if exists, _ := objects.Exists(ctx, name); !exists {
			t.Errorf("unparseable object %s was deleted", name)
		}
	}

	decisions, err := journal.SweepDecisions(ctx, "run-2")
	if err != nil {
		t.Fatal(err)
	}
	skipped := 0
	for _, d := range decisions {
		if d.Decision == audit.DecisionSkippedUnparseable {
			skipped++
		}
	}
	if skipped != 2 {
		t.Errorf("expected 2 journaled skips, got %d", skipped)
	}
}

func TestSweepToleratesDeleteFailures(t *testing.T) {
	ctx := context.Background()
	objects := objectstore.NewMemoryBackend()
	now := time.Date(2026, 8, 26, 3, 0, 0, 0, time.UTC)

	stuck := manifest.ArchiveName("skiff", now.AddDate(0, 0, -40), false)
	old := manifest.ArchiveName("skiff", now.AddDate(0, 0, -50), false)
	seedObject(t, objects, stuck)
	seedObject(t, objects, old)
	objects.FailDeletes = map[string]bool{stuck: true}

	result, err := newTestSweeper(objects, 30, nil, now).Sweep(ctx, "run-3")
	if err != nil {
		t.Fatalf("individual delete failure must not fail the sweep: %v", err)
	}
	if len(result.FailedDeletes) != 1 || result.FailedDeletes[0] != stuck {
		t.Errorf("failed deletes: %v", result.FailedDeletes)
	}
	if len(result.Deleted) != 1 || result.Deleted[0] != old {
		t.Errorf("sweep did not continue past the failure: deleted %v", result.Deleted)
	}
}
