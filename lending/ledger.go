package lending

import (
	"sort"
	"sync"
)

// Ledger is the registry of all physical copies by ID and the single source of truth
// for whether a copy is held.
//
// The Ledger's own lock only guards the map structure and the set of retired IDs. The held state
// lives in each Copy and is guarded by that Copy's mutex, so TryAcquire and Release never contend
// on the Ledger.
type Ledger struct {
	mu      sync.RWMutex
	copies  map[string]*Copy
	retired map[string]struct{}
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		copies:  make(map[string]*Copy),
		retired: make(map[string]struct{}),
	}
}

// Add registers a Copy. It fails with ErrDuplicateCopyID if the ID is taken.
// Adding a previously retired ID brings it back into circulation.
func (l *Ledger) Add(c *Copy) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.copies[c.ID]; exists {
		return ErrDuplicateCopyID
	}

	l.copies[c.ID] = c
	delete(l.retired, c.ID)

	return nil
}

// Adopt returns the Copy registered under the record's ID, creating it from the record if absent.
// The second return value reports whether a new Copy was created.
// Retired IDs are never adopted: Adopt returns nil and false for them.
func (l *Ledger) Adopt(record CopyRecord) (*Copy, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.copies[record.CopyID]; ok {
		return existing, false
	}

	if _, retired := l.retired[record.CopyID]; retired {
		return nil, false
	}

	c := copyFromRecord(record)
	l.copies[c.ID] = c

	return c, true
}

// Get looks up a Copy by ID.
func (l *Ledger) Get(id string) (*Copy, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c, ok := l.copies[id]

	return c, ok
}

// Remove drops a Copy from the registry.
func (l *Ledger) Remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.copies, id)
}

// Retire drops a Copy from the registry and remembers its ID, so that persisted records
// of the Copy are not adopted again until the ID is added anew.
func (l *Ledger) Retire(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	delete(l.copies, id)
	l.retired[id] = struct{}{}
}

// IsRetired reports whether the ID was retired and not added again since.
func (l *Ledger) IsRetired(id string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.retired[id]

	return ok
}

// All returns the registered copies ordered by ID.
func (l *Ledger) All() []*Copy {
	l.mu.RLock()
	all := make([]*Copy, 0, len(l.copies))
	for _, c := range l.copies {
		all = append(all, c)
	}
	l.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	return all
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.copies)
}

// TryAcquire attempts to mark the Copy as held.
func (l *Ledger) TryAcquire(c *Copy) bool {
	return c.TryAcquire()
}

// Release marks the Copy as available and reports whether it was held.
func (l *Ledger) Release(c *Copy) bool {
	return c.Release()
}
