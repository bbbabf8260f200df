package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestDurable(t *testing.T) (*Durable, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	d, err := OpenDurable(path)
	if err != nil {
		t.Fatalf("OpenDurable failed: %v", err)
	}
	return d, path
}

func TestDurable_Contract(t *testing.T) {
	d, _ := openTestDurable(t)
	defer d.Close()

	exerciseBackend(t, d)
}

func TestDurable_SurvivesReopen(t *testing.T) {
	d, path := openTestDurable(t)
	ctx := context.Background()

	if err := d.SetItem(ctx, "persist", []byte("value")); err != nil {
		t.Fatalf("SetItem failed: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenDurable(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	val, err := reopened.GetItem(ctx, "persist")
	if err != nil {
		t.Fatalf("GetItem after reopen failed: %v", err)
	}
	if string(val) != "value" {
		t.Fatalf("expected 'value', got '%s'", string(val))
	}
}

func TestDurable_DisabledAfterClose(t *testing.T) {
	d, _ := openTestDurable(t)
	ctx := context.Background()

	if d.Type() != TypeDurable {
		t.Fatalf("expected durable type, got %s", d.Type())
	}
	if !d.IsEnabled(ctx) {
		t.Fatal("expected open database to be enabled")
	}

	d.Close()

	if d.IsEnabled(ctx) {
		t.Fatal("expected closed database to be disabled")
	}
	if _, err := d.GetItem(ctx, "any"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second Close should be a no-op: %v", err)
	}
}
