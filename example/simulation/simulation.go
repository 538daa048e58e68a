package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AntonStoeckl/library-lending-go/lending"
)

const (
	returnPercent  = 40
	digitalPercent = 10

	digitalTitle        = "Concurrency in Go"
	digitalAuthor       = "Katherine Cox-Buday"
	digitalMaxAccessors = 2
)

var (
	// ErrInvalidSettings is returned when the workload settings cannot produce any work.
	ErrInvalidSettings = errors.New("simulation settings are not valid")

	// ErrInvariantViolated is returned by Verify when the Library state is inconsistent.
	ErrInvariantViolated = errors.New("lending invariant violated")
)

// Settings describes the size of the workload.
type Settings struct {
	Students      int
	Works         int
	CopiesPerWork int
	Workers       int
	Operations    int
	Seed          int64
}

func (s Settings) validate() error {
	if s.Students <= 0 || s.Works <= 0 || s.CopiesPerWork <= 0 || s.Workers <= 0 || s.Operations < 0 {
		return fmt.Errorf("%w: %+v", ErrInvalidSettings, s)
	}

	return nil
}

// Summary counts what happened during a run.
type Summary struct {
	Operations     int
	Borrows        map[lending.Outcome]int
	Returns        map[lending.Outcome]int
	NoneAvailable  int
	DigitalGranted int
	DigitalDenied  int
	Duration       time.Duration
}

type tally struct {
	mu      sync.Mutex
	summary Summary
}

func newTally() *tally {
	return &tally{summary: Summary{
		Borrows: make(map[lending.Outcome]int),
		Returns: make(map[lending.Outcome]int),
	}}
}

func (t *tally) record(fn func(s *Summary)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fn(&t.summary)
}

// Simulation drives a Library with a random but reproducible workload.
type Simulation struct {
	library  *lending.Library
	settings Settings
}

// New creates a Simulation for the given Library.
func New(library *lending.Library, settings Settings) (*Simulation, error) {
	if library == nil {
		return nil, fmt.Errorf("%w: library must not be nil", ErrInvalidSettings)
	}

	if err := settings.validate(); err != nil {
		return nil, err
	}

	return &Simulation{library: library, settings: settings}, nil
}

// WorkTitle is the title of the i-th simulated Work.
func WorkTitle(i int) string {
	return fmt.Sprintf("Work %03d", i)
}

// WorkAuthor is the author of the i-th simulated Work.
func WorkAuthor(i int) string {
	return fmt.Sprintf("Author %02d", i%10)
}

// LibrarianID is the ID of the single simulated Librarian.
func (s *Simulation) LibrarianID() int64 {
	return int64(s.settings.Students) + 1
}

// Seed fills the Library with Works, Copies, Students, one Librarian and a digital item.
// It is idempotent: what already exists, e.g. after a Reload, is kept and only topped up.
func (s *Simulation) Seed(ctx context.Context) error {
	existing := make(map[string]int)
	for _, view := range s.library.Works() {
		existing[view.Title] = view.TotalCopies
	}

	for i := 1; i <= s.settings.Works; i++ {
		title, author := WorkTitle(i), WorkAuthor(i)

		if _, ok := existing[title]; !ok {
			_, err := s.library.AddWork(ctx, lending.WorkInput{Title: title, Author: author, Genre: "Fiction", Pages: 100 + i})
			if err != nil && !errors.Is(err, lending.ErrDuplicateWork) {
				return err
			}
		}

		for c := existing[title]; c < s.settings.CopiesPerWork; c++ {
			if _, err := s.library.AddCopy(ctx, title, author, ""); err != nil {
				return err
			}
		}
	}

	for id := int64(1); id <= int64(s.settings.Students); id++ {
		err := s.register(ctx, lending.BorrowerInput{ID: id, Name: fmt.Sprintf("Student %d", id), Role: lending.RoleStudent})
		if err != nil {
			return err
		}
	}

	err := s.register(ctx, lending.BorrowerInput{ID: s.LibrarianID(), Name: "Librarian", Role: lending.RoleLibrarian})
	if err != nil {
		return err
	}

	_, err = s.library.AddDigitalItem(ctx, lending.DigitalItemInput{
		Title:        digitalTitle,
		Author:       digitalAuthor,
		Format:       "epub",
		DRMProtected: true,
		MaxAccessors: digitalMaxAccessors,
	})
	if err != nil && !errors.Is(err, lending.ErrDuplicateDigitalItem) {
		return err
	}

	return nil
}

func (s *Simulation) register(ctx context.Context, in lending.BorrowerInput) error {
	_, err := s.library.RegisterBorrower(ctx, in)
	if err != nil && !errors.Is(err, lending.ErrDuplicateBorrower) {
		return err
	}

	return nil
}

// Run executes the configured number of operations with at most Workers of them in flight.
// It stops early when ctx is canceled and reports what was done until then.
func (s *Simulation) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	counts := newTally()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.settings.Workers)

	for op := 0; op < s.settings.Operations; op++ {
		if gctx.Err() != nil {
			break
		}

		g.Go(func() error {
			s.step(gctx, op, counts)
			return nil
		})
	}

	_ = g.Wait()

	summary := counts.summary
	summary.Duration = time.Since(start)

	return summary, ctx.Err()
}

func (s *Simulation) step(ctx context.Context, op int, counts *tally) {
	rng := rand.New(rand.NewPCG(uint64(s.settings.Seed), uint64(op))) //nolint:gosec

	studentID := int64(1 + rng.IntN(s.settings.Students))

	defer counts.record(func(sum *Summary) { sum.Operations++ })

	if rng.IntN(100) < digitalPercent {
		s.probeDigital(ctx, counts)
		return
	}

	if view, ok := s.library.Borrower(studentID); ok && len(view.HeldCopyIDs) > 0 && rng.IntN(100) < returnPercent {
		copyID := view.HeldCopyIDs[rng.IntN(len(view.HeldCopyIDs))]
		outcome := s.library.Return(ctx, studentID, copyID)
		counts.record(func(sum *Summary) { sum.Returns[outcome]++ })

		return
	}

	available := s.library.AvailableCopies(ctx, WorkTitle(1+rng.IntN(s.settings.Works)))
	if len(available) == 0 {
		counts.record(func(sum *Summary) { sum.NoneAvailable++ })
		return
	}

	outcome := s.library.Borrow(ctx, studentID, available[rng.IntN(len(available))])
	counts.record(func(sum *Summary) { sum.Borrows[outcome]++ })
}

func (s *Simulation) probeDigital(ctx context.Context, counts *tally) {
	if !s.library.AccessDigital(ctx, digitalTitle) {
		counts.record(func(sum *Summary) { sum.DigitalDenied++ })
		return
	}

	counts.record(func(sum *Summary) { sum.DigitalGranted++ })
	s.library.ReleaseDigital(ctx, digitalTitle)
}

// Verify checks the Library state after a run.
// No copy may be held by two borrowers, every held copy must be unavailable,
// and with a strict borrow limit no student may hold more than the limit.
func Verify(ctx context.Context, library *lending.Library, strictLimit bool) error {
	available := make(map[string]struct{})
	for _, work := range library.Works() {
		for _, id := range library.AvailableCopies(ctx, work.Title) {
			available[id] = struct{}{}
		}
	}

	var violations []error

	holders := make(map[string]int64)

	for _, borrower := range library.Borrowers() {
		if strictLimit && borrower.Role == lending.RoleStudent && len(borrower.HeldCopyIDs) > lending.DefaultStudentLimit {
			violations = append(violations, fmt.Errorf("borrower %d holds %d copies", borrower.ID, len(borrower.HeldCopyIDs)))
		}

		for _, id := range borrower.HeldCopyIDs {
			if other, taken := holders[id]; taken {
				violations = append(violations, fmt.Errorf("copy %s held by borrowers %d and %d", id, other, borrower.ID))
			}

			holders[id] = borrower.ID

			if _, free := available[id]; free {
				violations = append(violations, fmt.Errorf("copy %s held by borrower %d is listed as available", id, borrower.ID))
			}
		}
	}

	if len(violations) > 0 {
		return errors.Join(append([]error{ErrInvariantViolated}, violations...)...)
	}

	return nil
}
