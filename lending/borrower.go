package lending

import (
	"fmt"
	"sort"
	"sync"
)

const (
	// RoleStudent borrowers may hold at most DefaultStudentLimit copies at a time.
	RoleStudent = "student"

	// RoleLibrarian borrowers are not limited and may run librarian actions.
	RoleLibrarian = "librarian"

	// DefaultStudentLimit is the number of copies a Student may hold at once.
	DefaultStudentLimit = 3
)

// Role is the borrowing strategy attached to a Borrower.
type Role interface {
	Name() string

	// Limit returns the maximum number of held copies and whether a limit applies at all.
	Limit() (int, bool)
}

// StudentRole limits the number of held copies.
type StudentRole struct {
	MaxHeld int
}

func (r StudentRole) Name() string { return RoleStudent }

func (r StudentRole) Limit() (int, bool) { return r.MaxHeld, true }

// LibrarianRole has no borrowing limit.
type LibrarianRole struct{}

func (LibrarianRole) Name() string { return RoleLibrarian }

func (LibrarianRole) Limit() (int, bool) { return 0, false }

// RoleByName resolves a role name to its strategy. Unknown names yield false.
func RoleByName(name string) (Role, bool) {
	switch normalize(name) {
	case RoleStudent:
		return StudentRole{MaxHeld: DefaultStudentLimit}, true
	case RoleLibrarian:
		return LibrarianRole{}, true
	default:
		return nil, false
	}
}

// Borrower is a registered person who can hold copies.
// The set of held copies is guarded by the Borrower's own mutex.
type Borrower struct {
	ID   int64
	Name string
	Role Role

	mu   sync.Mutex
	held map[string]*Copy
}

// NewBorrower creates a Borrower without holdings.
func NewBorrower(id int64, name string, role Role) *Borrower {
	return &Borrower{
		ID:   id,
		Name: name,
		Role: role,
		held: make(map[string]*Copy),
	}
}

// HeldCount returns the number of copies the Borrower holds.
func (b *Borrower) HeldCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.held)
}

// HeldCopyIDs returns the IDs of the held copies in ascending order.
func (b *Borrower) HeldCopyIDs() []string {
	b.mu.Lock()
	ids := make([]string, 0, len(b.held))
	for id := range b.held {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	sort.Strings(ids)

	return ids
}

// Holds reports whether the Borrower holds the Copy with the given ID.
func (b *Borrower) Holds(copyID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	_, ok := b.held[copyID]

	return ok
}

// Record flattens the Borrower into its persisted form.
func (b *Borrower) Record() BorrowerRecord {
	return BorrowerRecord{
		ID:   b.ID,
		Role: b.Role.Name(),
		Name: b.Name,
	}
}

// limitReachedLocked must be called with b.mu held.
func (b *Borrower) limitReachedLocked() bool {
	limit, limited := b.Role.Limit()

	return limited && len(b.held) >= limit
}

// Registry holds all Borrowers by ID.
type Registry struct {
	mu        sync.RWMutex
	borrowers map[int64]*Borrower
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{borrowers: make(map[int64]*Borrower)}
}

// Register validates the input and adds a new Borrower.
func (r *Registry) Register(in BorrowerInput) (*Borrower, error) {
	in = in.normalized()

	if err := validateInput(in, ErrInvalidBorrower); err != nil {
		return nil, err
	}

	role, _ := RoleByName(in.Role)
	b := NewBorrower(in.ID, in.Name, role)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.borrowers[b.ID]; exists {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateBorrower, b.ID)
	}

	r.borrowers[b.ID] = b

	return b, nil
}

// adopt registers a Borrower from a persisted record unless the ID is already present.
func (r *Registry) adopt(record BorrowerRecord) (*Borrower, bool) {
	role, ok := RoleByName(record.Role)
	if !ok || record.ID <= 0 {
		return nil, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, exists := r.borrowers[record.ID]; exists {
		return existing, false
	}

	b := NewBorrower(record.ID, record.Name, role)
	r.borrowers[b.ID] = b

	return b, true
}

// Get looks up a Borrower by ID.
func (r *Registry) Get(id int64) (*Borrower, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.borrowers[id]

	return b, ok
}

// All returns all Borrowers ordered by ID.
func (r *Registry) All() []*Borrower {
	r.mu.RLock()
	all := make([]*Borrower, 0, len(r.borrowers))
	for _, b := range r.borrowers {
		all = append(all, b)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	return all
}
