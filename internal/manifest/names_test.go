package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestArchiveName(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	t.Run("plaintext", func(t *testing.T) {
		got := ArchiveName("skiff-backup", ts, false)
		want := "skiff-backup-20260314-092653.tar.gz"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("encrypted", func(t *testing.T) {
		got := ArchiveName("skiff-backup", ts, true)
		want := "skiff-backup-20260314-092653.tar.gz.age"
		if got != want {
			t.Errorf("got %q, want %q", got, want)
		}
	})

	t.Run("latest alias", func(t *testing.T) {
		if got := LatestName("skiff-backup", false); got != "skiff-backup-latest.tar.gz" {
			t.Errorf("unexpected latest name: %q", got)
		}
		if got := LatestName("skiff-backup", true); got != "skiff-backup-latest.tar.gz.age" {
			t.Errorf("unexpected encrypted latest name: %q", got)
		}
	})

	t.Run("lexicographic order matches chronological", func(t *testing.T) {
		earlier := ArchiveName("p", ts, false)
		later := ArchiveName("p", ts.Add(time.Second), false)
		if !(earlier < later) {
			t.Errorf("expected %q < %q", earlier, later)
		}
	})
}

func TestParseTimestamp(t *testing.T) {
	t.Run("valid name round-trips", func(t *testing.T) {
		ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
		name := ArchiveName("skiff-backup", ts, true)
		got, ok := ParseTimestamp(name)
		if !ok {
			t.Fatalf("expected parseable timestamp in %q", name)
		}
		if !got.Equal(ts) {
			t.Errorf("got %v, want %v", got, ts)
		}
	})

	t.Run("latest alias has no timestamp", func(t *testing.T) {
		if _, ok := ParseTimestamp("skiff-backup-latest.tar.gz"); ok {
			t.Error("latest alias must not parse as timestamped")
		}
	})

	t.Run("custom scheme without date token", func(t *testing.T) {
		if _, ok := ParseTimestamp("nightly-golden.tar.gz"); ok {
			t.Error("name without date token must not parse")
		}
	})

	t.Run("impossible date", func(t *testing.T) {
		if _, ok := ParseTimestamp("p-20269999-999999.tar.gz"); ok {
			t.Error("impossible date must not parse")
		}
	})
}

func TestIsArchiveName(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"timestamped plaintext", "skiff-backup-20260102-030405.tar.gz", true},
		{"timestamped encrypted", "skiff-backup-20260102-030405.tar.gz.age", true},
		{"latest alias", "skiff-backup-latest.tar.gz", true},
		{"wrong prefix", "other-20260102-030405.tar.gz", false},
		{"wrong extension", "skiff-backup-20260102-030405.zip", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsArchiveName("skiff-backup", tc.in); got != tc.want {
				t.Errorf("IsArchiveName(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestSniffEncrypted(t *testing.T) {
	t.Run("age stream", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.bin")
		if err := os.WriteFile(path, []byte("age-encryption.org/v1\n-> X25519 ..."), 0o600); err != nil {
			t.Fatal(err)
		}
		enc, err := SniffEncrypted(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !enc {
			t.Error("expected age stream to sniff as encrypted")
		}
	})

	t.Run("gzip stream", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "a.tar.gz")
		if err := os.WriteFile(path, []byte{0x1f, 0x8b, 0x08, 0x00, 0x00, 0x00}, 0o600); err != nil {
			t.Fatal(err)
		}
		enc, err := SniffEncrypted(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if enc {
			t.Error("gzip stream must not sniff as encrypted")
		}
		gz, err := SniffGzip(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !gz {
			t.Error("expected gzip magic to be detected")
		}
	})

	t.Run("empty file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "empty")
		if err := os.WriteFile(path, nil, 0o600); err != nil {
			t.Fatal(err)
		}
		enc, err := SniffEncrypted(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if enc {
			t.Error("empty file must not sniff as encrypted")
		}
	})
}
