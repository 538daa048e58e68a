package lending_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-lending-go/lending"
)

func newDigitalItem(t *testing.T, maxAccessors int) *lending.DigitalItem {
	t.Helper()

	item, err := lending.NewDigitalShelf().Add(lending.DigitalItemInput{
		Title:        "Concurrency in Go",
		Author:       "Katherine Cox-Buday",
		Format:       "PDF",
		DownloadLink: "https://example.org/concurrency-in-go.pdf",
		DRMProtected: true,
		MaxAccessors: maxAccessors,
	})
	require.NoError(t, err)

	return item
}

func Test_DigitalItem_Access_IsBoundedByMaxAccessors(t *testing.T) {
	// arrange
	item := newDigitalItem(t, 2)

	// act / assert
	assert.True(t, item.Access())
	assert.True(t, item.Access())
	assert.False(t, item.Access())

	item.Release()
	assert.True(t, item.Access())
}

func Test_DigitalItem_Access_ConcurrentCallersNeverExceedMax(t *testing.T) {
	// arrange
	item := newDigitalItem(t, 2)

	var granted atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	// act
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if item.Access() {
				granted.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	// assert
	assert.Equal(t, int32(2), granted.Load())
	assert.Equal(t, 2, item.Accessors())
}

func Test_DigitalItem_Release_BelowZeroIsNoop(t *testing.T) {
	// arrange
	item := newDigitalItem(t, 1)

	// act
	item.Release()
	item.Release()

	// assert
	assert.Equal(t, 0, item.Accessors())
	assert.True(t, item.Access())
	assert.False(t, item.Access())
}

func Test_DigitalShelf_ListAvailable_DoesNotConsumeSlots(t *testing.T) {
	// arrange
	shelf := lending.NewDigitalShelf()
	item, err := shelf.Add(lending.DigitalItemInput{Title: "T", Author: "A", MaxAccessors: 1})
	require.NoError(t, err)

	// act
	first := shelf.ListAvailable()
	second := shelf.ListAvailable()

	// assert
	assert.Len(t, first, 1)
	assert.Len(t, second, 1)
	assert.Equal(t, 0, item.Accessors())
	assert.True(t, item.Access())
	assert.Empty(t, shelf.ListAvailable())
}

func Test_DigitalShelf_Add_RejectsInvalidAndDuplicateItems(t *testing.T) {
	// arrange
	shelf := lending.NewDigitalShelf()
	_, err := shelf.Add(lending.DigitalItemInput{Title: "T", Author: "A", MaxAccessors: 1})
	require.NoError(t, err)

	// act / assert
	_, err = shelf.Add(lending.DigitalItemInput{Title: "t", Author: "a", MaxAccessors: 3})
	assert.ErrorIs(t, err, lending.ErrDuplicateDigitalItem)

	_, err = shelf.Add(lending.DigitalItemInput{Title: "Other", Author: "A", MaxAccessors: 0})
	assert.ErrorIs(t, err, lending.ErrInvalidDigitalItem)

	_, err = shelf.Add(lending.DigitalItemInput{Title: "Other", Author: "A", MaxAccessors: 1, DownloadLink: "not a url"})
	assert.ErrorIs(t, err, lending.ErrInvalidDigitalItem)
}

func Test_DigitalShelf_RemoveAndFind(t *testing.T) {
	// arrange
	shelf := lending.NewDigitalShelf()
	_, err := shelf.Add(lending.DigitalItemInput{Title: "Keep", Author: "A", MaxAccessors: 1})
	require.NoError(t, err)
	_, err = shelf.Add(lending.DigitalItemInput{Title: "Drop", Author: "A", MaxAccessors: 1})
	require.NoError(t, err)

	// act
	removed := shelf.Remove(" drop ")

	// assert
	assert.True(t, removed)
	assert.False(t, shelf.Remove("drop"))

	_, found := shelf.FindByTitle("DROP")
	assert.False(t, found)

	kept, found := shelf.FindByTitle("keep")
	require.True(t, found)
	assert.Equal(t, "Keep", kept.Title)
	assert.Len(t, shelf.All(), 1)
}
