package testdoubles

import (
	"context"
	"strings"
	"sync"

	"github.com/AntonStoeckl/library-lending-go/lending"
)

// SnapshotStoreFake is an in-memory, append-only lending.SnapshotStore.
// Failures can be injected per call to exercise retry and error paths.
type SnapshotStoreFake struct {
	mu          sync.Mutex
	snapshot    lending.Snapshot
	keys        map[string]struct{}
	appendCalls int
	appendErrs  []error
	loadErr     error
	copiesErr   error
}

// NewSnapshotStoreFake creates an empty SnapshotStoreFake.
func NewSnapshotStoreFake() *SnapshotStoreFake {
	return &SnapshotStoreFake{keys: make(map[string]struct{})}
}

// FailAppends makes the next AppendSnapshot calls fail with the given errors, one per call.
func (s *SnapshotStoreFake) FailAppends(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendErrs = append(s.appendErrs, errs...)
}

// FailLoads makes LoadSnapshot and LoadCopiesForTitle fail with the given error until it is reset with nil.
func (s *SnapshotStoreFake) FailLoads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.loadErr = err
	s.copiesErr = err
}

// Seed stores records directly, bypassing key deduplication, to simulate a store with duplicates.
func (s *SnapshotStoreFake) Seed(snapshot lending.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.Works = append(s.snapshot.Works, snapshot.Works...)
	s.snapshot.Borrowers = append(s.snapshot.Borrowers, snapshot.Borrowers...)
	s.snapshot.Copies = append(s.snapshot.Copies, snapshot.Copies...)
}

// AppendCalls returns how many times AppendSnapshot was called.
func (s *SnapshotStoreFake) AppendCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.appendCalls
}

// Persisted returns a copy of everything stored so far.
func (s *SnapshotStoreFake) Persisted() lending.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return lending.Snapshot{
		Works:     append([]lending.WorkRecord(nil), s.snapshot.Works...),
		Borrowers: append([]lending.BorrowerRecord(nil), s.snapshot.Borrowers...),
		Copies:    append([]lending.CopyRecord(nil), s.snapshot.Copies...),
	}
}

// LoadSnapshot implements lending.SnapshotStore.
func (s *SnapshotStoreFake) LoadSnapshot(_ context.Context) (*lending.Snapshot, error) {
	if err := s.loadErrOrNil(); err != nil {
		return nil, err
	}

	snapshot := s.Persisted()
	if snapshot.IsEmpty() {
		return nil, nil //nolint:nilnil
	}

	return &snapshot, nil
}

// AppendSnapshot implements lending.SnapshotStore.
func (s *SnapshotStoreFake) AppendSnapshot(
	_ context.Context,
	works []lending.WorkRecord,
	borrowers []lending.BorrowerRecord,
	copies []lending.CopyRecord,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendCalls++

	if len(s.appendErrs) > 0 {
		err := s.appendErrs[0]
		s.appendErrs = s.appendErrs[1:]

		if err != nil {
			return err
		}
	}

	for _, w := range works {
		if s.claim("w:" + w.Key()) {
			s.snapshot.Works = append(s.snapshot.Works, w)
		}
	}

	for _, b := range borrowers {
		if s.claim("b:" + b.Key()) {
			s.snapshot.Borrowers = append(s.snapshot.Borrowers, b)
		}
	}

	for _, c := range copies {
		if s.claim("c:" + c.Key()) {
			s.snapshot.Copies = append(s.snapshot.Copies, c)
		}
	}

	return nil
}

// LoadCopiesForTitle implements lending.SnapshotStore.
func (s *SnapshotStoreFake) LoadCopiesForTitle(_ context.Context, title string) ([]lending.CopyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.copiesErr != nil {
		return nil, s.copiesErr
	}

	q := strings.ToLower(strings.TrimSpace(title))

	var result []lending.CopyRecord
	for _, c := range s.snapshot.Copies {
		if strings.ToLower(strings.TrimSpace(c.Title)) == q {
			result = append(result, c)
		}
	}

	return result, nil
}

func (s *SnapshotStoreFake) loadErrOrNil() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.loadErr
}

// claim must be called with s.mu held.
func (s *SnapshotStoreFake) claim(key string) bool {
	if _, ok := s.keys[key]; ok {
		return false
	}

	s.keys[key] = struct{}{}

	return true
}

var _ lending.SnapshotStore = (*SnapshotStoreFake)(nil)
