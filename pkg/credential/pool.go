package credential

import "sync"

// Pool is the authoritative list of credential entries. It preserves the
// caller's ordering, which is what makes round-robin rotation fair: the
// active view is always a stable subsequence of the full list.
//
// The pool exposes no field mutation. The dispatch engine mutates entry
// state through the pointers the pool hands out, under the engine's own
// lock; the pool's lock only guards the list itself.
type Pool struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{}
}

// Replace atomically swaps the full entry list. The engine re-validates
// its cursor against the new active view after calling this.
func (p *Pool) Replace(entries []*Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = make([]*Entry, len(entries))
	copy(p.entries, entries)
}

// ActiveEntries returns the entries with Active set, preserving list
// order. Returns an empty slice rather than failing when nothing is
// eligible; callers treat empty as "no usable credential."
func (p *Pool) ActiveEntries() []*Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	active := make([]*Entry, 0, len(p.entries))
	for _, e := range p.entries {
		if e.Active {
			active = append(active, e)
		}
	}
	return active
}

// All returns the full list in order.
func (p *Pool) All() []*Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make([]*Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// ByID returns the entry with the given ID, or nil.
func (p *Pool) ByID(id string) *Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, e := range p.entries {
		if e.ID == id {
			return e
		}
	}
	return nil
}

// DisplayIndex returns the 1-based position of the entry within the full
// pool, the way callers label credentials in their UI. Returns 0 when the
// ID is unknown.
func (p *Pool) DisplayIndex(id string) int {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for i, e := range p.entries {
		if e.ID == id {
			return i + 1
		}
	}
	return 0
}

// Len returns the total number of entries.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}
