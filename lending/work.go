package lending

import "sync"

// Work is a catalog entry identified by title and author (case-insensitive) that groups its copies.
type Work struct {
	Title  string
	Author string
	Genre  string
	Pages  int

	mu     sync.Mutex
	copies []*Copy
}

func newWork(in WorkInput) *Work {
	return &Work{
		Title:  in.Title,
		Author: in.Author,
		Genre:  in.Genre,
		Pages:  in.Pages,
	}
}

func workFromRecord(record WorkRecord) *Work {
	return &Work{
		Title:  record.Title,
		Author: record.Author,
		Genre:  record.Genre,
		Pages:  record.Pages,
	}
}

// Key returns the case-insensitive identity of the Work.
func (w *Work) Key() string {
	return naturalKey(w.Title, w.Author)
}

// Copies returns a snapshot of the Work's copies.
func (w *Work) Copies() []*Copy {
	w.mu.Lock()
	defer w.mu.Unlock()

	copies := make([]*Copy, len(w.copies))
	copy(copies, w.copies)

	return copies
}

// Record flattens the Work into its persisted form.
func (w *Work) Record() WorkRecord {
	return WorkRecord{
		Title:  w.Title,
		Author: w.Author,
		Genre:  w.Genre,
		Pages:  w.Pages,
	}
}

// matches reports whether the copy's denormalized fields name this Work.
func (w *Work) matches(title, author string) bool {
	return naturalKey(title, author) == w.Key()
}

func (w *Work) appendCopy(c *Copy) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, existing := range w.copies {
		if existing.ID == c.ID {
			return false
		}
	}

	w.copies = append(w.copies, c)

	return true
}

func (w *Work) findCopy(id string) (*Copy, int) {
	for i, c := range w.copies {
		if c.ID == id {
			return c, i
		}
	}

	return nil, -1
}
