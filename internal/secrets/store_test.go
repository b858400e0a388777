package secrets

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()

	t.Run("get missing returns ErrNotFound", func(t *testing.T) {
		s := NewMemoryStore("skiff")
		_, err := s.Get(ctx, "anthropic-api-key")
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("store then get returns value", func(t *testing.T) {
		s := NewMemoryStore("skiff")
		if err := s.Store(ctx, "anthropic-api-key", "sk-ant-123"); err != nil {
			t.Fatal(err)
		}
		got, err := s.Get(ctx, "anthropic-api-key")
		if err != nil {
			t.Fatal(err)
		}
		if got != "sk-ant-123" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("second store appends a version, latest wins", func(t *testing.T) {
		s := NewMemoryStore("skiff")
		if err := s.Store(ctx, "k", "v1"); err != nil {
			t.Fatal(err)
		}
		if err := s.Store(ctx, "k", "v2"); err != nil {
			t.Fatal(err)
		}
		got, err := s.Get(ctx, "k")
		if err != nil {
			t.Fatal(err)
		}
		if got != "v2" {
			t.Errorf("got %q, want latest version", got)
		}
		if n := s.Versions("k"); n != 2 {
			t.Errorf("expected 2 versions, got %d", n)
		}
	})

	t.Run("list returns logical names", func(t *testing.T) {
		s := NewMemoryStore("skiff")
		for _, name := range []string{"b", "a"} {
			if err := s.Store(ctx, name, "x"); err != nil {
				t.Fatal(err)
			}
		}
		names, err := s.List(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(names) != 2 || names[0] != "a" || names[1] != "b" {
			t.Errorf("unexpected names: %v", names)
		}
	})

	t.Run("delete removes all versions", func(t *testing.T) {
		s := NewMemoryStore("skiff")
		if err := s.Store(ctx, "k", "v"); err != nil {
			t.Fatal(err)
		}
		if err := s.Delete(ctx, "k"); err != nil {
			t.Fatal(err)
		}
		if _, err := s.Get(ctx, "k"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})
}

func TestScopedName(t *testing.T) {
	if got := scopedName("skiff", "anthropic-api-key"); got != "skiff-anthropic-api-key" {
		t.Errorf("unexpected scoped name: %q", got)
	}

	name, ok := logicalName("skiff", "skiff-anthropic-api-key")
	if !ok || name != "anthropic-api-key" {
		t.Errorf("unexpected logical name: %q, %v", name, ok)
	}

	if _, ok := logicalName("skiff", "other-key"); ok {
		t.Error("name outside namespace must not resolve")
	}
}

func TestGetOptional(t *testing.T) {
	ctx := context.Background()
	logger := zerolog.Nop()

	t.Run("present", func(t *testing.T) {
		s := NewMemoryStore("skiff")
		if err := s.Store(ctx, NameAgePublicKey, "age1xyz"); err != nil {
			t.Fatal(err)
		}
		v, ok := GetOptional(ctx, s, NameAgePublicKey, logger)
		if !ok || v != "age1xyz" {
			t.Errorf("got %q, %v", v, ok)
		}
	})

	t.Run("absent", func(t *testing.T) {
		s := NewMemoryStore("skiff")
		if _, ok := GetOptional(ctx, s, NameAgePublicKey, logger); ok {
			t.Error("absent secret must report not ok")
		}
	})

	t.Run("empty value treated as absent", func(t *testing.T) {
		s := NewMemoryStore("skiff")
		if err := s.Store(ctx, NameAgePublicKey, ""); err != nil {
			t.Fatal(err)
		}
		if _, ok := GetOptional(ctx, s, NameAgePublicKey, logger); ok {
			t.Error("empty secret must report not ok")
		}
	})

	t.Run("backend outage treated as absent", func(t *testing.T) {
		s := NewMemoryStore("skiff")
		if err := s.Store(ctx, NameAgePublicKey, "age1xyz"); err != nil {
			t.Fatal(err)
		}
		s.FailGets = true
		if _, ok := GetOptional(ctx, s, NameAgePublicKey, logger); ok {
			t.Error("backend failure must degrade to absent")
		}
	})
}
