package lending

import (
	"fmt"
	"sync"
)

// DigitalItem is a catalog item accessed electronically by a bounded number of concurrent readers.
type DigitalItem struct {
	Title        string
	Author       string
	Genre        string
	Pages        int
	Format       string
	DownloadLink string
	DRMProtected bool
	MaxAccessors int

	mu        sync.Mutex
	accessors int
}

// Access grants access if fewer than MaxAccessors readers are active. Denied callers are not queued.
func (d *DigitalItem) Access() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.accessors >= d.MaxAccessors {
		return false
	}

	d.accessors++

	return true
}

// Release ends one access. Releasing with no active readers does nothing.
func (d *DigitalItem) Release() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.accessors > 0 {
		d.accessors--
	}
}

// CanAccess reports whether an Access call would currently be granted, without consuming a slot.
func (d *DigitalItem) CanAccess() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.accessors < d.MaxAccessors
}

// Accessors returns the number of active readers.
func (d *DigitalItem) Accessors() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.accessors
}

// Key returns the case-insensitive identity of the DigitalItem.
func (d *DigitalItem) Key() string {
	return naturalKey(d.Title, d.Author)
}

// DigitalShelf holds the DigitalItems of the library.
type DigitalShelf struct {
	mu    sync.RWMutex
	items []*DigitalItem
}

// NewDigitalShelf creates an empty DigitalShelf.
func NewDigitalShelf() *DigitalShelf {
	return &DigitalShelf{}
}

// Add validates the input and places a new DigitalItem on the shelf.
func (s *DigitalShelf) Add(in DigitalItemInput) (*DigitalItem, error) {
	in = in.normalized()

	if err := validateInput(in, ErrInvalidDigitalItem); err != nil {
		return nil, err
	}

	item := &DigitalItem{
		Title:        in.Title,
		Author:       in.Author,
		Genre:        in.Genre,
		Pages:        in.Pages,
		Format:       in.Format,
		DownloadLink: in.DownloadLink,
		DRMProtected: in.DRMProtected,
		MaxAccessors: in.MaxAccessors,
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.items {
		if existing.Key() == item.Key() {
			return nil, fmt.Errorf("%w: %q by %q", ErrDuplicateDigitalItem, in.Title, in.Author)
		}
	}

	s.items = append(s.items, item)

	return item, nil
}

// Remove takes every DigitalItem with the given title off the shelf and reports whether any was removed.
func (s *DigitalShelf) Remove(title string) bool {
	q := normalize(title)

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.items[:0]
	removed := false
	for _, item := range s.items {
		if normalize(item.Title) == q {
			removed = true
			continue
		}
		kept = append(kept, item)
	}

	for i := len(kept); i < len(s.items); i++ {
		s.items[i] = nil
	}
	s.items = kept

	return removed
}

// FindByTitle returns the first DigitalItem with the given title, ignoring case and surrounding whitespace.
func (s *DigitalShelf) FindByTitle(title string) (*DigitalItem, bool) {
	q := normalize(title)

	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if normalize(item.Title) == q {
			return item, true
		}
	}

	return nil, false
}

// ListAvailable returns the DigitalItems that currently have a free access slot.
// Listing does not consume any slot.
func (s *DigitalShelf) ListAvailable() []*DigitalItem {
	var available []*DigitalItem
	for _, item := range s.All() {
		if item.CanAccess() {
			available = append(available, item)
		}
	}

	return available
}

// All returns every DigitalItem on the shelf.
func (s *DigitalShelf) All() []*DigitalItem {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]*DigitalItem, len(s.items))
	copy(all, s.items)

	return all
}
