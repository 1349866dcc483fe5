// Package dedupe tracks keys that must be processed at most once, such as
// the (submission, skill) pair of a skill award.
package dedupe

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
)

// Deduper records seen keys to ensure at-most-once processing.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool

	// Seen reports whether id was recorded without recording it.
	Seen(ctx context.Context, id string) bool

	// Unrecord removes an ID from the seen set. Use it only to roll back a
	// record whose surrounding unit of work failed.
	Unrecord(ctx context.Context, id string)

	Size() int64
}

// Key joins parts into a single dedupe key.
func Key(parts ...string) string {
	return strings.Join(parts, "\x1f")
}

// inMemoryDeduper keeps every key for the life of the process. Keys are
// never evicted: forgetting one would let an award be granted twice.
type inMemoryDeduper struct {
	mu   sync.RWMutex
	seen map[string]struct{}
	size atomic.Int64
}

// NewInMemoryDeduper creates an empty in-memory deduper.
func NewInMemoryDeduper() Deduper {
	return &inMemoryDeduper{seen: make(map[string]struct{})}
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		return true
	}
	d.seen[id] = struct{}{}
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Seen(_ context.Context, id string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, exists := d.seen[id]
	return exists
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[id]; exists {
		delete(d.seen, id)
		d.size.Add(-1)
	}
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
