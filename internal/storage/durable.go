package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

const durableBucket = "CacheItems"

// Durable is a Backend persisted to a local bbolt file.
type Durable struct {
	mu     sync.RWMutex
	db     *bbolt.DB
	path   string
	closed bool
}

// OpenDurable opens (or creates) the bbolt file at path and ensures the item
// bucket exists.
func OpenDurable(path string) (*Durable, error) {
	// The Timeout option makes Open give up if another process holds the file lock.
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db %s: %w", path, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(durableBucket)); err != nil {
			return fmt.Errorf("create bucket %s: %w", durableBucket, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Durable{db: db, path: path}, nil
}

// Path returns the database file location.
func (d *Durable) Path() string {
	return d.path
}

func (d *Durable) view(fn func(b *bbolt.Bucket) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return d.db.View(func(tx *bbolt.Tx) error {
		return fn(tx.Bucket([]byte(durableBucket)))
	})
}

func (d *Durable) update(fn func(b *bbolt.Bucket) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return d.db.Update(func(tx *bbolt.Tx) error {
		return fn(tx.Bucket([]byte(durableBucket)))
	})
}

func (d *Durable) GetItem(_ context.Context, key string) ([]byte, error) {
	var out []byte
	err := d.view(func(b *bbolt.Bucket) error {
		v := b.Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// bbolt memory is only valid inside the transaction
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Durable) SetItem(_ context.Context, key string, value []byte) error {
	return d.update(func(b *bbolt.Bucket) error {
		if err := b.Put([]byte(key), value); err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
		return nil
	})
}

func (d *Durable) RemoveItem(_ context.Context, key string) error {
	return d.update(func(b *bbolt.Bucket) error {
		return b.Delete([]byte(key))
	})
}

func (d *Durable) Clear(_ context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	return d.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket([]byte(durableBucket)); err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket([]byte(durableBucket))
		return err
	})
}

func (d *Durable) Len(_ context.Context) (int, error) {
	n := 0
	err := d.view(func(b *bbolt.Bucket) error {
		n = b.Stats().KeyN
		return nil
	})
	return n, err
}

// Key walks the bucket cursor; bbolt keeps keys in byte order.
func (d *Durable) Key(_ context.Context, index int) (string, error) {
	if index < 0 {
		return "", ErrNotFound
	}
	var key string
	err := d.view(func(b *bbolt.Bucket) error {
		c := b.Cursor()
		i := 0
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if i == index {
				key = string(k)
				return nil
			}
			i++
		}
		return ErrNotFound
	})
	return key, err
}

func (d *Durable) Keys(_ context.Context) ([]string, error) {
	var keys []string
	err := d.view(func(b *bbolt.Bucket) error {
		keys = make([]string, 0, b.Stats().KeyN)
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys, err
}

func (d *Durable) Type() Type { return TypeDurable }

func (d *Durable) IsEnabled(_ context.Context) bool {
	if d == nil {
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return !d.closed && d.db != nil
}

// Close the database. Further operations return ErrClosed.
func (d *Durable) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}
