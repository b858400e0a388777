package objectstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// backends under test share the Backend contract; the local and memory
// implementations are exercised the same way.
func testBackends(t *testing.T) map[string]Backend {
	local, err := NewLocalBackend(filepath.Join(t.TempDir(), "objects"))
	if err != nil {
		t.Fatal(err)
	}
	return map[string]Backend{
		"local":  local,
		"memory": NewMemoryBackend(),
	}
}

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "payload")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBackendContract(t *testing.T) {
	ctx := context.Background()

	for name, backend := range testBackends(t) {
		t.Run(name, func(t *testing.T) {
			src := writeTemp(t, "archive-bytes")

			t.Run("get missing returns ErrNotFound", func(t *testing.T) {
				dst := filepath.Join(t.TempDir(), "out")
				if err := backend.Get(ctx, "absent.tar.gz", dst); !errors.Is(err, ErrNotFound) {
					t.Fatalf("expected ErrNotFound, got %v", err)
				}
			})

			t.Run("put then get round-trips", func(t *testing.T) {
				if err := backend.Put(ctx, "b-20260101-000000.tar.gz", src); err != nil {
					t.Fatal(err)
				}
				dst := filepath.Join(t.TempDir(), "out")
				if err := backend.Get(ctx, "b-20260101-000000.tar.gz", dst); err != nil {
					t.Fatal(err)
				}
				data, err := os.ReadFile(dst)
				if err != nil {
					t.Fatal(err)
				}
				if string(data) != "archive-bytes" {
					t.Errorf("round-trip mismatch: %q", data)
				}
			})

			t.Run("exists", func(t *testing.T) {
				ok, err := backend.Exists(ctx, "b-20260101-000000.tar.gz")
				if err != nil {
					t.Fatal(err)
				}
				if !ok {
					t.Error("expected object to exist")
				}
				ok, err = backend.Exists(ctx, "nope")
				if err != nil {
					t.Fatal(err)
				}
				if ok {
					t.Error("missing object must not exist")
				}
			})

			t.Run("put overwrites", func(t *testing.T) {
				src2 := writeTemp(t, "newer-bytes")
				if err := backend.Put(ctx, "b-latest.tar.gz", src); err != nil {
					t.Fatal(err)
				}
				if err := backend.Put(ctx, "b-latest.tar.gz", src2); err != nil {
					t.Fatal(err)
				}
				dst := filepath.Join(t.TempDir(), "out")
				if err := backend.Get(ctx, "b-latest.tar.gz", dst); err != nil {
					t.Fatal(err)
				}
				data, _ := os.ReadFile(dst)
				if string(data) != "newer-bytes" {
					t.Errorf("overwrite did not take: %q", data)
				}
			})

			t.Run("list by prefix", func(t *testing.T) {
				if err := backend.Put(ctx, "other-obj", src); err != nil {
					t.Fatal(err)
				}
				names, err := backend.List(ctx, "b-")
				if err != nil {
					t.Fatal(err)
				}
				for _, n := range names {
					if n == "other-obj" {
						t.Error("prefix filter leaked unrelated object")
					}
				}
				if len(names) < 2 {
					t.Errorf("expected at least 2 objects, got %v", names)
				}
			})

			t.Run("delete is idempotent", func(t *testing.T) {
				if err := backend.Delete(ctx, "b-latest.tar.gz"); err != nil {
					t.Fatal(err)
				}
				if err := backend.Delete(ctx, "b-latest.tar.gz"); err != nil {
					t.Fatalf("second delete must succeed, got %v", err)
				}
				ok, err := backend.Exists(ctx, "b-latest.tar.gz")
				if err != nil {
					t.Fatal(err)
				}
				if ok {
					t.Error("object still present after delete")
				}
			})
		})
	}
}

func TestFactory(t *testing.T) {
	ctx := context.Background()

	t.Run("local requires dir", func(t *testing.T) {
		_, err := New(ctx, Config{Backend: BackendLocal}, testLogger())
		if err == nil {
			t.Fatal("expected error for missing local_dir")
		}
	})

	t.Run("unknown backend", func(t *testing.T) {
		_, err := New(ctx, Config{Backend: "ftp"}, testLogger())
		if err == nil {
			t.Fatal("expected error for unsupported backend")
		}
	})

	t.Run("local", func(t *testing.T) {
		b, err := New(ctx, Config{Backend: BackendLocal, LocalDir: t.TempDir()}, testLogger())
		if err != nil {
			t.Fatal(err)
		}
		defer b.Close()
	})
}
