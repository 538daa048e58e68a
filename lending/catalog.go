package lending

import (
	"fmt"
	"sync"
)

// Catalog indexes Works by their case-insensitive (title, author) identity.
//
// The coarse lock guards the index structure only. Each Work guards its copy list with
// its own mutex and each Copy guards its held state, so availability is always computed
// live from the copies and never cached.
type Catalog struct {
	mu    sync.RWMutex
	works map[string]*Work
	order []string
}

// NewCatalog creates an empty Catalog.
func NewCatalog() *Catalog {
	return &Catalog{works: make(map[string]*Work)}
}

// AddWork trims and validates the input and registers a new Work.
// The duplicate check and the insert happen under one index lock, so of several concurrent
// identical calls exactly one succeeds and the others get ErrDuplicateWork.
func (c *Catalog) AddWork(in WorkInput) (*Work, error) {
	in = in.normalized()

	if err := validateInput(in, ErrInvalidWork); err != nil {
		return nil, err
	}

	w := newWork(in)

	if !c.insert(w) {
		return nil, fmt.Errorf("%w: %q by %q", ErrDuplicateWork, in.Title, in.Author)
	}

	return w, nil
}

// adoptWork returns the Work registered under the record's key, creating it if absent.
func (c *Catalog) adoptWork(record WorkRecord) (*Work, bool) {
	key := naturalKey(record.Title, record.Author)

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.works[key]; ok {
		return existing, false
	}

	w := workFromRecord(record)
	c.works[key] = w
	c.order = append(c.order, key)

	return w, true
}

func (c *Catalog) insert(w *Work) bool {
	key := w.Key()

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.works[key]; exists {
		return false
	}

	c.works[key] = w
	c.order = append(c.order, key)

	return true
}

// AddCopy attaches a Copy to a Work. The Copy's title and author must name the Work.
func (c *Catalog) AddCopy(w *Work, cp *Copy) error {
	if w == nil || cp == nil {
		return ErrWorkNotFound
	}

	if !w.matches(cp.Title, cp.Author) {
		return fmt.Errorf("%w: copy %s is %q by %q", ErrCopyWorkMismatch, cp.ID, cp.Title, cp.Author)
	}

	if !w.appendCopy(cp) {
		return fmt.Errorf("%w: %s", ErrDuplicateCopyID, cp.ID)
	}

	return nil
}

// RemoveCopy retires and detaches a Copy from its Work.
// A held Copy cannot be removed. Retiring happens under the Copy's lock, so a concurrent
// borrow either wins before the removal (and the removal fails with ErrCopyHeld) or fails.
func (c *Catalog) RemoveCopy(w *Work, copyID string) (*Copy, error) {
	if w == nil {
		return nil, ErrWorkNotFound
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	cp, idx := w.findCopy(copyID)
	if cp == nil {
		return nil, fmt.Errorf("%w: %s", ErrCopyNotFound, copyID)
	}

	if !cp.retire() {
		return nil, fmt.Errorf("%w: %s", ErrCopyHeld, copyID)
	}

	w.copies = append(w.copies[:idx], w.copies[idx+1:]...)

	return cp, nil
}

// FindByTitle returns all Works whose title equals the query, ignoring case and surrounding whitespace.
func (c *Catalog) FindByTitle(title string) []*Work {
	q := normalize(title)

	return c.filter(func(w *Work) bool { return normalize(w.Title) == q })
}

// FindByAuthor returns all Works whose author equals the query, ignoring case and surrounding whitespace.
func (c *Catalog) FindByAuthor(author string) []*Work {
	q := normalize(author)

	return c.filter(func(w *Work) bool { return normalize(w.Author) == q })
}

// WorkByKey looks up a Work by its exact identity.
func (c *Catalog) WorkByKey(title, author string) (*Work, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	w, ok := c.works[naturalKey(title, author)]

	return w, ok
}

// Works returns all Works in insertion order.
func (c *Catalog) Works() []*Work {
	return c.filter(func(*Work) bool { return true })
}

// AvailableCopies counts the copies of the Work that are not held right now.
func (c *Catalog) AvailableCopies(w *Work) int {
	if w == nil {
		return 0
	}

	available := 0
	for _, cp := range w.Copies() {
		if !cp.Held() {
			available++
		}
	}

	return available
}

func (c *Catalog) filter(keep func(*Work) bool) []*Work {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var result []*Work
	for _, key := range c.order {
		if w := c.works[key]; keep(w) {
			result = append(result, w)
		}
	}

	return result
}
