package lending

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

var (
	// ErrEmptyRecordTitle is returned when a persisted work or copy has no title.
	ErrEmptyRecordTitle = errors.New("record title must not be empty")

	// ErrEmptyRecordAuthor is returned when a persisted work or copy has no author.
	ErrEmptyRecordAuthor = errors.New("record author must not be empty")

	// ErrEmptyRecordCopyID is returned when a persisted copy has no ID.
	ErrEmptyRecordCopyID = errors.New("record copy id must not be empty")

	// ErrInvalidRecordBorrowerID is returned when a persisted borrower has a non-positive ID.
	ErrInvalidRecordBorrowerID = errors.New("record borrower id must be positive")

	// ErrUnknownRecordRole is returned when a persisted borrower has a role that is not known.
	ErrUnknownRecordRole = errors.New("record role is not known")
)

// SnapshotStore is the persistence collaborator of the Reconciler.
//
// Stores are append-only: AppendSnapshot adds only records whose key is not persisted yet
// and never rewrites an existing record. Keys are the lower-cased "title|author" for works,
// the ID for borrowers and the copy ID for copies.
type SnapshotStore interface {
	// LoadSnapshot returns everything persisted so far, or nil if nothing was persisted.
	// Malformed records are skipped by the store.
	LoadSnapshot(ctx context.Context) (*Snapshot, error)

	// AppendSnapshot persists the records whose keys are not persisted yet.
	AppendSnapshot(ctx context.Context, works []WorkRecord, borrowers []BorrowerRecord, copies []CopyRecord) error

	// LoadCopiesForTitle returns the persisted copies with the given title, compared case-insensitively.
	LoadCopiesForTitle(ctx context.Context, title string) ([]CopyRecord, error)
}

// Snapshot is the persisted form of the library's working set.
type Snapshot struct {
	Works     []WorkRecord
	Borrowers []BorrowerRecord
	Copies    []CopyRecord
}

// IsEmpty reports whether the Snapshot carries no records at all.
func (s *Snapshot) IsEmpty() bool {
	return s == nil || len(s.Works)+len(s.Borrowers)+len(s.Copies) == 0
}

// WorkRecord is the persisted form of a Work.
type WorkRecord struct {
	Title  string `json:"title"  db:"title"`
	Author string `json:"author" db:"author"`
	Genre  string `json:"genre"  db:"genre"`
	Pages  int    `json:"pages"  db:"pages"`
}

// Key returns the dedupe key of the record.
func (r WorkRecord) Key() string {
	return naturalKey(r.Title, r.Author)
}

// Validate ensures the record can be turned into a Work.
func (r WorkRecord) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return ErrEmptyRecordTitle
	}

	if strings.TrimSpace(r.Author) == "" {
		return ErrEmptyRecordAuthor
	}

	return nil
}

// BorrowerRecord is the persisted form of a Borrower. Holdings are not persisted.
type BorrowerRecord struct {
	ID   int64  `json:"id"   db:"id"`
	Role string `json:"role" db:"role"`
	Name string `json:"name" db:"name"`
}

// Key returns the dedupe key of the record.
func (r BorrowerRecord) Key() string {
	return strconv.FormatInt(r.ID, 10)
}

// Validate ensures the record can be turned into a Borrower.
func (r BorrowerRecord) Validate() error {
	if r.ID <= 0 {
		return ErrInvalidRecordBorrowerID
	}

	if _, ok := RoleByName(r.Role); !ok {
		return ErrUnknownRecordRole
	}

	return nil
}

// CopyRecord is the persisted form of a Copy.
type CopyRecord struct {
	CopyID string `json:"copy_id" db:"copy_id"`
	Title  string `json:"title"   db:"title"`
	Author string `json:"author"  db:"author"`
	Genre  string `json:"genre"   db:"genre"`
	Pages  int    `json:"pages"   db:"pages"`
	Held   bool   `json:"held"    db:"held"`
}

// Key returns the dedupe key of the record.
func (r CopyRecord) Key() string {
	return r.CopyID
}

// Validate ensures the record can be turned into a Copy.
func (r CopyRecord) Validate() error {
	if strings.TrimSpace(r.CopyID) == "" {
		return ErrEmptyRecordCopyID
	}

	if strings.TrimSpace(r.Title) == "" {
		return ErrEmptyRecordTitle
	}

	if strings.TrimSpace(r.Author) == "" {
		return ErrEmptyRecordAuthor
	}

	return nil
}

// BuildSnapshot flattens the in-memory working set into records.
func BuildSnapshot(works []*Work, borrowers []*Borrower, copies []*Copy) Snapshot {
	snapshot := Snapshot{
		Works:     make([]WorkRecord, 0, len(works)),
		Borrowers: make([]BorrowerRecord, 0, len(borrowers)),
		Copies:    make([]CopyRecord, 0, len(copies)),
	}

	for _, w := range works {
		snapshot.Works = append(snapshot.Works, w.Record())
	}

	for _, b := range borrowers {
		snapshot.Borrowers = append(snapshot.Borrowers, b.Record())
	}

	for _, c := range copies {
		snapshot.Copies = append(snapshot.Copies, c.Record())
	}

	return snapshot
}
