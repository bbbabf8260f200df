// Package storage defines the key/value medium the cache orchestrator writes
// through. Backends hold opaque byte values under string keys and carry no
// expiration or tagging logic of their own; that lives in package cache.
package storage

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a key (or key index) does not exist.
	ErrNotFound = errors.New("storage: key not found")

	// ErrQuotaExceeded is returned when a backend refuses a write because it is full.
	ErrQuotaExceeded = errors.New("storage: quota exceeded")

	// ErrClosed is returned by operations on a backend that has been closed.
	ErrClosed = errors.New("storage: backend closed")
)

// Type identifies the kind of medium behind a Backend.
type Type string

const (
	TypeSession Type = "session"
	TypeDurable Type = "durable"
	TypeMemory  Type = "memory"
)

// IsValid reports whether t names a known backend type.
func (t Type) IsValid() bool {
	switch t {
	case TypeSession, TypeDurable, TypeMemory:
		return true
	}
	return false
}

// ParseType converts a backend name from configuration into a Type.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.IsValid() {
		return "", fmt.Errorf("unknown backend type: %q (valid: session, durable, memory)", s)
	}
	return t, nil
}

// Backend is a synchronous key/value medium.
type Backend interface {
	// GetItem returns the stored bytes for key, or ErrNotFound.
	GetItem(ctx context.Context, key string) ([]byte, error)

	// SetItem stores value under key. A non-nil error means the write was rejected.
	SetItem(ctx context.Context, key string, value []byte) error

	// RemoveItem deletes key. Removing a missing key is not an error.
	RemoveItem(ctx context.Context, key string) error

	// Clear removes every item held by the backend.
	Clear(ctx context.Context) error

	// Len returns the number of stored items.
	Len(ctx context.Context) (int, error)

	// Key returns the key at position index in lexical key order,
	// or ErrNotFound when index is out of range.
	Key(ctx context.Context, index int) (string, error)

	// Type reports the kind of medium.
	Type() Type

	// IsEnabled reports whether the medium is usable right now. It must not panic.
	IsEnabled(ctx context.Context) bool

	// Close releases resources held by the backend.
	Close() error
}

// KeyLister is implemented by backends that can list every key, in the same
// lexical order as Key, with one call instead of one call per index.
type KeyLister interface {
	Keys(ctx context.Context) ([]string, error)
}
