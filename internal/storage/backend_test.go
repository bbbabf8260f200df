package storage

import (
	"context"
	"errors"
	"strings"
	"testing"
)

var (
	_ KeyLister = (*Memory)(nil)
	_ KeyLister = (*Session)(nil)
	_ KeyLister = (*Durable)(nil)
	_ KeyLister = (*Postgres)(nil)
)

// exerciseBackend runs the behaviour every Backend must share.
// The backend must be empty on entry.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	if !b.IsEnabled(ctx) {
		t.Fatal("expected backend to be enabled")
	}

	if _, err := b.GetItem(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing key, got: %v", err)
	}

	for _, k := range []string{"b", "a", "c"} {
		if err := b.SetItem(ctx, k, []byte("value-"+k)); err != nil {
			t.Fatalf("SetItem(%s) failed: %v", k, err)
		}
	}

	val, err := b.GetItem(ctx, "a")
	if err != nil {
		t.Fatalf("GetItem failed: %v", err)
	}
	if string(val) != "value-a" {
		t.Fatalf("expected 'value-a', got '%s'", string(val))
	}

	// Overwrite keeps the count stable
	if err := b.SetItem(ctx, "a", []byte("again")); err != nil {
		t.Fatalf("SetItem overwrite failed: %v", err)
	}
	n, err := b.Len(ctx)
	if err != nil {
		t.Fatalf("Len failed: %v", err)
	}
	if n != 3 {
		t.Fatalf("expected 3 items, got %d", n)
	}

	for i, want := range []string{"a", "b", "c"} {
		got, err := b.Key(ctx, i)
		if err != nil {
			t.Fatalf("Key(%d) failed: %v", i, err)
		}
		if got != want {
			t.Fatalf("Key(%d): expected %q, got %q", i, want, got)
		}
	}
	if _, err := b.Key(ctx, 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for out of range index, got: %v", err)
	}
	if _, err := b.Key(ctx, -1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for negative index, got: %v", err)
	}

	if kl, ok := b.(KeyLister); ok {
		keys, err := kl.Keys(ctx)
		if err != nil {
			t.Fatalf("Keys failed: %v", err)
		}
		if strings.Join(keys, ",") != "a,b,c" {
			t.Fatalf("expected keys a,b,c, got %v", keys)
		}
	}

	if err := b.RemoveItem(ctx, "b"); err != nil {
		t.Fatalf("RemoveItem failed: %v", err)
	}
	if _, err := b.GetItem(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after remove, got: %v", err)
	}
	if err := b.RemoveItem(ctx, "nonexistent"); err != nil {
		t.Fatalf("RemoveItem of missing key should not fail: %v", err)
	}

	if err := b.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	n, err = b.Len(ctx)
	if err != nil {
		t.Fatalf("Len after clear failed: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected empty backend after clear, got %d items", n)
	}
}

func TestParseType(t *testing.T) {
	for _, name := range []string{"session", "durable", "memory"} {
		typ, err := ParseType(name)
		if err != nil {
			t.Fatalf("ParseType(%q) failed: %v", name, err)
		}
		if string(typ) != name {
			t.Fatalf("expected %q, got %q", name, typ)
		}
	}
	if _, err := ParseType("local"); err == nil {
		t.Fatal("expected error for unknown backend type")
	}
}
