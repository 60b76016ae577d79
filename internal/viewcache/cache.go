// Package viewcache holds the in-memory projection composite reads are
// served from. Mutations apply a speculative transform here before the
// remote round-trip completes; a copy-on-write snapshot keyed by a rollback
// token allows the pre-mutation value to be restored byte for byte.
package viewcache

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Value is a cacheable projection. Clone must return a deep copy and
// RemapID must return a copy with every reference to the old entity id
// replaced.
type Value interface {
	Clone() Value
	RemapID(oldID, newID string) Value
}

// Token identifies a rollback snapshot taken by ApplyOptimistic.
type Token struct {
	id string
}

// Zero reports whether the token was never issued.
func (t Token) Zero() bool { return t.id == "" }

type snapshot struct {
	key     string
	value   Value
	present bool
}

// Cache is a bounded per-query-key cache of derived projections. It is a
// replaceable view: discarding it entirely and rebuilding from the entity
// store is always safe.
type Cache struct {
	mu        sync.RWMutex
	entries   *lru.Cache[string, Value]
	snapshots map[string]snapshot
}

// New builds a cache bounded to size query keys.
func New(size int) (*Cache, error) {
	if size <= 0 {
		size = 128
	}
	entries, err := lru.New[string, Value](size)
	if err != nil {
		return nil, fmt.Errorf("viewcache: %w", err)
	}
	return &Cache{
		entries:   entries,
		snapshots: make(map[string]snapshot),
	}, nil
}

// Read returns the cached value for key, cloned so callers cannot mutate
// the cached copy, and whether the key was present.
func (c *Cache) Read(key string) (Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.entries.Get(key)
	if !ok || v == nil {
		return nil, false
	}
	return v.Clone(), true
}

// Put stores a freshly reconciled value for key. Used by the read path
// after a cache miss.
func (c *Cache) Put(key string, value Value) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(key, value)
}

// ApplyOptimistic snapshots the current value for key and replaces it with
// transform's result. The transform receives the current value (nil on
// miss) and returns the speculative projection mirroring the eventual
// server effect.
func (c *Cache) ApplyOptimistic(key string, transform func(Value) Value) Token {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, present := c.entries.Get(key)
	snap := snapshot{key: key, present: present}
	if present && current != nil {
		snap.value = current.Clone()
	}

	token := Token{id: uuid.NewString()}
	c.snapshots[token.id] = snap

	var input Value
	if present && current != nil {
		input = current.Clone()
	}
	if next := transform(input); next != nil {
		c.entries.Add(key, next)
	} else {
		c.entries.Remove(key)
	}
	return token
}

// Rollback restores the snapshot identified by token, even if the entry
// was evicted or invalidated in the meantime. The token is consumed.
func (c *Cache) Rollback(token Token) {
	if token.Zero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	snap, ok := c.snapshots[token.id]
	if !ok {
		return
	}
	delete(c.snapshots, token.id)
	if !snap.present {
		c.entries.Remove(snap.key)
		return
	}
	c.entries.Add(snap.key, snap.value)
}

// Release discards the snapshot identified by token once the mutation has
// settled and rollback can no longer happen.
func (c *Cache) Release(token Token) {
	if token.Zero() {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, token.id)
}

// Invalidate drops the cached value for key, forcing the next read to
// reconcile from the entity store.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Remove(key)
}

// Purge drops every cached value. Pending snapshots survive so an
// in-flight rollback still restores its key.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// RemapID rewrites every cached value, pending snapshot, and query key that
// references the old entity id.
func (c *Cache) RemapID(oldID, newID string) {
	if oldID == "" || newID == "" || oldID == newID {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range c.entries.Keys() {
		v, ok := c.entries.Peek(key)
		if !ok {
			continue
		}
		if v != nil {
			v = v.RemapID(oldID, newID)
		}
		newKey := strings.ReplaceAll(key, oldID, newID)
		if newKey != key {
			c.entries.Remove(key)
		}
		c.entries.Add(newKey, v)
	}
	for id, snap := range c.snapshots {
		if snap.value != nil {
			snap.value = snap.value.RemapID(oldID, newID)
		}
		snap.key = strings.ReplaceAll(snap.key, oldID, newID)
		c.snapshots[id] = snap
	}
}
