package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sort"
)

// tagIndex maps a tag name to the namespaced keys written under it.
type tagIndex map[string][]string

// sortedTags returns tag names in the order Remove scans them.
func (idx tagIndex) sortedTags() []string {
	names := make([]string, 0, len(idx))
	for name := range idx {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetTagData returns the live entries recorded under tag, keyed by caller
// key. Expired entries are removed on the way and left out.
func (c *Cache) GetTagData(ctx context.Context, tag string) map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]any)
	listed, ok := c.readIndex(ctx)[tag]
	if !ok {
		return out
	}

	// load may rewrite the index while expiring entries
	for _, storageKey := range slices.Clone(listed) {
		e, st := c.load(ctx, storageKey)
		if st != StatePresent {
			continue
		}
		var v any
		if err := json.Unmarshal(e.Value, &v); err != nil {
			c.logger.Warn("cache entry value undecodable", "key", storageKey, "error", err)
			continue
		}
		key, _ := denamespaced(storageKey)
		out[key] = v
	}
	return out
}

// RemoveTag deletes every entry recorded under tag and drops the tag from
// the index. Unknown tags are a no-op.
func (c *Cache) RemoveTag(ctx context.Context, tag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := c.readIndex(ctx)
	listed, ok := idx[tag]
	if !ok {
		return nil
	}

	var errs []error
	for _, storageKey := range listed {
		if err := c.backend.RemoveItem(ctx, storageKey); err != nil {
			errs = append(errs, fmt.Errorf("remove %q: %w", storageKey, err))
		}
	}
	delete(idx, tag)
	if err := c.writeIndex(ctx, idx); err != nil {
		errs = append(errs, err)
	}
	c.metrics.RemoveTag()
	return errors.Join(errs...)
}

// Tags lists the tag names currently in the index.
func (c *Cache) Tags(ctx context.Context) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.readIndex(ctx).sortedTags()
}

// readIndex loads the tag index. A missing or malformed index reads as empty.
func (c *Cache) readIndex(ctx context.Context) tagIndex {
	idx := make(tagIndex)
	e, ok := c.readEntry(ctx, namespaced(tagIndexKey))
	if !ok || !e.valid(c.now()) {
		return idx
	}
	if err := json.Unmarshal(e.Value, &idx); err != nil {
		c.logger.Warn("malformed tag index, treating as empty", "error", err)
		return make(tagIndex)
	}
	if idx == nil {
		idx = make(tagIndex)
	}
	return idx
}

// writeIndex persists the tag index directly, never through Set, with no
// expiration.
func (c *Cache) writeIndex(ctx context.Context, idx tagIndex) error {
	raw, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("encode tag index: %w", err)
	}
	e := entry{Value: raw, Options: entryOptions{Expires: neverExpires}}
	if err := c.writeEntry(ctx, namespaced(tagIndexKey), e); err != nil {
		return fmt.Errorf("write tag index: %w", err)
	}
	return nil
}

func (c *Cache) addToTag(ctx context.Context, tag, storageKey string) error {
	idx := c.readIndex(ctx)
	if slices.Contains(idx[tag], storageKey) {
		return nil
	}
	idx[tag] = append(idx[tag], storageKey)
	return c.writeIndex(ctx, idx)
}

// scavenge drops storageKey from the first tag listing it and stops there.
func (c *Cache) scavenge(ctx context.Context, storageKey string) error {
	idx := c.readIndex(ctx)
	for _, name := range idx.sortedTags() {
		i := slices.Index(idx[name], storageKey)
		if i < 0 {
			continue
		}
		idx[name] = slices.Delete(idx[name], i, i+1)
		return c.writeIndex(ctx, idx)
	}
	return nil
}
