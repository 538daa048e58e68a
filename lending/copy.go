package lending

import "sync"

// Copy is one physical, individually lendable instance of a Work.
//
// The descriptive fields are copied from the owning Work when the Copy is created and never change.
// The held state may only be read or written while holding the Copy's own mutex;
// use TryAcquire, Release and Held instead of touching it directly.
type Copy struct {
	ID     string
	Title  string
	Author string
	Genre  string
	Pages  int

	mu      sync.Mutex
	held    bool
	retired bool
}

// NewCopy creates an available Copy with the descriptive fields of the given Work.
func NewCopy(id string, work *Work) *Copy {
	return &Copy{
		ID:     id,
		Title:  work.Title,
		Author: work.Author,
		Genre:  work.Genre,
		Pages:  work.Pages,
	}
}

// copyFromRecord creates a Copy from a persisted record. The Copy always gets a fresh mutex.
func copyFromRecord(record CopyRecord) *Copy {
	return &Copy{
		ID:     record.CopyID,
		Title:  record.Title,
		Author: record.Author,
		Genre:  record.Genre,
		Pages:  record.Pages,
		held:   record.Held,
	}
}

// TryAcquire marks the Copy as held if it is currently available.
// It returns false without waiting if the Copy is already held or was removed from circulation.
func (c *Copy) TryAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.held || c.retired {
		return false
	}

	c.held = true

	return true
}

// Release marks the Copy as available and reports whether it was held before.
// Releasing a Copy that was not held is not an error.
func (c *Copy) Release() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasHeld := c.held
	c.held = false

	return wasHeld
}

// Held reports whether the Copy is currently lent out.
func (c *Copy) Held() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.held
}

// Retired reports whether the Copy was removed from circulation.
func (c *Copy) Retired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.retired
}

// retire removes the Copy from circulation unless it is held.
func (c *Copy) retire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.held {
		return false
	}

	c.retired = true

	return true
}

// Record flattens the Copy into its persisted form.
func (c *Copy) Record() CopyRecord {
	return CopyRecord{
		CopyID: c.ID,
		Title:  c.Title,
		Author: c.Author,
		Genre:  c.Genre,
		Pages:  c.Pages,
		Held:   c.Held(),
	}
}
