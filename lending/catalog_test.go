package lending_test

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-lending-go/lending"
)

func Test_Catalog_AddWork_RejectsInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input lending.WorkInput
		field string
	}{
		{
			name:  "blank_title",
			input: lending.WorkInput{Title: "   ", Author: "A", Genre: "G", Pages: 1},
			field: "title",
		},
		{
			name:  "empty_author",
			input: lending.WorkInput{Title: "T", Author: "", Genre: "G", Pages: 1},
			field: "author",
		},
		{
			name:  "empty_genre",
			input: lending.WorkInput{Title: "T", Author: "A", Genre: "", Pages: 1},
			field: "genre",
		},
		{
			name:  "zero_pages",
			input: lending.WorkInput{Title: "T", Author: "A", Genre: "G", Pages: 0},
			field: "pages",
		},
		{
			name:  "negative_pages",
			input: lending.WorkInput{Title: "T", Author: "A", Genre: "G", Pages: -5},
			field: "pages",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			catalog := lending.NewCatalog()

			// act
			work, err := catalog.AddWork(tc.input)

			// assert
			assert.Nil(t, work)
			assert.ErrorIs(t, err, lending.ErrInvalidWork)

			var validationErrs lending.ValidationErrors
			require.True(t, errors.As(err, &validationErrs))
			require.Len(t, validationErrs, 1)
			assert.Equal(t, tc.field, validationErrs[0].Field)
			assert.Empty(t, catalog.Works())
		})
	}
}

func Test_Catalog_AddWork_RejectsDuplicateIgnoringCase(t *testing.T) {
	// arrange
	catalog := lending.NewCatalog()
	_, err := catalog.AddWork(lending.WorkInput{Title: "Go in Action", Author: "William Kennedy", Genre: "Programming", Pages: 264})
	require.NoError(t, err)

	// act
	_, err = catalog.AddWork(lending.WorkInput{Title: " go IN action ", Author: "WILLIAM KENNEDY", Genre: "Other", Pages: 1})

	// assert
	assert.ErrorIs(t, err, lending.ErrDuplicateWork)
	assert.Len(t, catalog.Works(), 1)
}

func Test_Catalog_AddWork_ConcurrentIdenticalCallsAddOnce(t *testing.T) {
	// arrange
	catalog := lending.NewCatalog()
	input := lending.WorkInput{Title: "T", Author: "A", Genre: "G", Pages: 10}

	var successes atomic.Int32
	var wg sync.WaitGroup

	// act
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := catalog.AddWork(input); err == nil {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	// assert
	assert.Equal(t, int32(1), successes.Load())
	assert.Len(t, catalog.Works(), 1)
}

func Test_Catalog_Find_IsCaseInsensitiveExactMatch(t *testing.T) {
	// arrange
	catalog := lending.NewCatalog()
	for _, in := range []lending.WorkInput{
		{Title: "Go in Action", Author: "William Kennedy", Genre: "Programming", Pages: 264},
		{Title: "The Go Programming Language", Author: "Alan Donovan", Genre: "Programming", Pages: 380},
		{Title: "Go in Practice", Author: "William Kennedy", Genre: "Programming", Pages: 288},
	} {
		_, err := catalog.AddWork(in)
		require.NoError(t, err)
	}

	// act
	byTitle := catalog.FindByTitle("  GO IN ACTION ")
	byAuthor := catalog.FindByAuthor("william kennedy")
	partial := catalog.FindByTitle("Go")

	// assert
	require.Len(t, byTitle, 1)
	assert.Equal(t, "Go in Action", byTitle[0].Title)
	assert.Len(t, byAuthor, 2)
	assert.Empty(t, partial)
}

func Test_Catalog_AddCopy_RejectsCopyOfAnotherWork(t *testing.T) {
	// arrange
	catalog := lending.NewCatalog()
	goInAction, err := catalog.AddWork(lending.WorkInput{Title: "Go in Action", Author: "William Kennedy", Genre: "P", Pages: 1})
	require.NoError(t, err)
	other, err := catalog.AddWork(lending.WorkInput{Title: "Other", Author: "Someone", Genre: "P", Pages: 1})
	require.NoError(t, err)

	// act
	err = catalog.AddCopy(goInAction, lending.NewCopy("X", other))

	// assert
	assert.ErrorIs(t, err, lending.ErrCopyWorkMismatch)
	assert.Empty(t, goInAction.Copies())
}

func Test_Catalog_AvailableCopies_ReflectsLiveHeldState(t *testing.T) {
	// arrange
	catalog := lending.NewCatalog()
	work, err := catalog.AddWork(lending.WorkInput{Title: "T", Author: "A", Genre: "G", Pages: 1})
	require.NoError(t, err)

	c1 := lending.NewCopy("C1", work)
	c2 := lending.NewCopy("C2", work)
	require.NoError(t, catalog.AddCopy(work, c1))
	require.NoError(t, catalog.AddCopy(work, c2))

	// act / assert
	assert.Equal(t, 2, catalog.AvailableCopies(work))

	require.True(t, c1.TryAcquire())
	assert.Equal(t, 1, catalog.AvailableCopies(work))

	c1.Release()
	assert.Equal(t, 2, catalog.AvailableCopies(work))
}

func Test_Catalog_RemoveCopy(t *testing.T) {
	// arrange
	catalog := lending.NewCatalog()
	work, err := catalog.AddWork(lending.WorkInput{Title: "T", Author: "A", Genre: "G", Pages: 1})
	require.NoError(t, err)

	held := lending.NewCopy("held", work)
	free := lending.NewCopy("free", work)
	require.NoError(t, catalog.AddCopy(work, held))
	require.NoError(t, catalog.AddCopy(work, free))
	require.True(t, held.TryAcquire())

	t.Run("held_copy_is_rejected", func(t *testing.T) {
		_, err := catalog.RemoveCopy(work, "held")

		assert.ErrorIs(t, err, lending.ErrCopyHeld)
		assert.Len(t, work.Copies(), 2)
	})

	t.Run("unknown_copy_is_rejected", func(t *testing.T) {
		_, err := catalog.RemoveCopy(work, "nope")

		assert.ErrorIs(t, err, lending.ErrCopyNotFound)
	})

	t.Run("available_copy_is_retired_and_detached", func(t *testing.T) {
		removed, err := catalog.RemoveCopy(work, "free")

		require.NoError(t, err)
		assert.Same(t, free, removed)
		assert.True(t, removed.Retired())
		assert.False(t, removed.TryAcquire(), "a retired copy can never be acquired")
		assert.Len(t, work.Copies(), 1)
	})
}
