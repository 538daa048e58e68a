package lending

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidWork is returned when a Work has an empty title, author or genre, or a non-positive page count.
	ErrInvalidWork = errors.New("work is not valid")

	// ErrDuplicateWork is returned when a Work with the same title and author already exists.
	ErrDuplicateWork = errors.New("work with the same title and author already exists")

	// ErrWorkNotFound is returned when no Work matches the given title and author.
	ErrWorkNotFound = errors.New("work not found")

	// ErrDuplicateCopyID is returned when a Copy with the same ID is already in the ledger.
	ErrDuplicateCopyID = errors.New("copy id already exists")

	// ErrCopyWorkMismatch is returned when a Copy's title or author contradicts the Work it is added to.
	ErrCopyWorkMismatch = errors.New("copy does not belong to work")

	// ErrCopyNotFound is returned when a Copy is not part of the Work or the ledger.
	ErrCopyNotFound = errors.New("copy not found")

	// ErrCopyHeld is returned when removing a Copy that is currently lent out.
	ErrCopyHeld = errors.New("copy is currently held and cannot be removed")

	// ErrInvalidBorrower is returned when a Borrower has a non-positive ID, an empty name or an unknown role.
	ErrInvalidBorrower = errors.New("borrower is not valid")

	// ErrDuplicateBorrower is returned when a Borrower with the same ID is already registered.
	ErrDuplicateBorrower = errors.New("borrower id already registered")

	// ErrInvalidDigitalItem is returned when a DigitalItem has an empty title or author or a non-positive capacity.
	ErrInvalidDigitalItem = errors.New("digital item is not valid")

	// ErrDuplicateDigitalItem is returned when a DigitalItem with the same title and author already exists.
	ErrDuplicateDigitalItem = errors.New("digital item with the same title and author already exists")

	// ErrNilSnapshotStore is returned when a Library or Reconciler is built without a SnapshotStore.
	ErrNilSnapshotStore = errors.New("snapshot store must not be nil")

	// ErrTransientPersistence marks a persistence failure that may succeed when retried,
	// e.g. a serialization failure or deadlock reported by the database.
	ErrTransientPersistence = errors.New("transient persistence failure")

	// ErrSavingSnapshotFailed is returned when appending the snapshot to the store fails.
	ErrSavingSnapshotFailed = errors.New("saving snapshot failed")
)

// ValidationError describes a single rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

// ValidationErrors collects all rejected fields of one input.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}

	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.Error())
	}

	return "validation failed: " + strings.Join(parts, ", ")
}

// naturalKey builds the case-insensitive identity of a Work or DigitalItem.
func naturalKey(title, author string) string {
	return normalize(title) + "|" + normalize(author)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
