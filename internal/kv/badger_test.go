package kv

import (
	"context"
	"errors"
	"testing"
)

func openTestKV(t *testing.T) *Badger {
	t.Helper()
	b, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBadgerSetGetDelete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	b := openTestKV(t)

	if _, err := b.Get(ctx, "current_thread"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := b.Set(ctx, "current_thread", []byte("t1")); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := b.Get(ctx, "current_thread")
	if err != nil || string(got) != "t1" {
		t.Fatalf("unexpected get %q %v", got, err)
	}
	if err := b.Delete(ctx, "current_thread"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := b.Delete(ctx, "current_thread"); err != nil {
		t.Fatalf("deleting a missing key should succeed: %v", err)
	}
	if _, err := b.Get(ctx, "current_thread"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestJSONHelpers(t *testing.T) {
	t.Parallel()

	type prefs struct {
		LockoutEnabled bool `json:"lockoutEnabled"`
	}

	ctx := context.Background()
	b := openTestKV(t)

	var out prefs
	if err := GetJSON(ctx, b, "prefs", &out); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := SetJSON(ctx, b, "prefs", prefs{LockoutEnabled: true}); err != nil {
		t.Fatalf("set json: %v", err)
	}
	if err := GetJSON(ctx, b, "prefs", &out); err != nil || !out.LockoutEnabled {
		t.Fatalf("unexpected prefs %+v %v", out, err)
	}

	_ = b.Set(ctx, "broken", []byte("{"))
	if err := GetJSON(ctx, b, "broken", &out); err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestOpenRequiresDir(t *testing.T) {
	t.Parallel()

	if _, err := Open(Options{}); err == nil {
		t.Fatalf("expected error without dir")
	}
}

func TestOpenOnDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	b, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := b.Set(context.Background(), "k", []byte("v")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(Options{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if got, err := reopened.Get(context.Background(), "k"); err != nil || string(got) != "v" {
		t.Fatalf("value should persist, got %q %v", got, err)
	}
}
