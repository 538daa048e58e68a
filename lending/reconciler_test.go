package lending_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-lending-go/lending"
	"github.com/AntonStoeckl/library-lending-go/testutil/testdoubles"
)

func fastRetries() lending.Option {
	return lending.WithRetryOptions(lending.WithBaseDelay(time.Millisecond), lending.WithMaxAttempts(3))
}

func Test_Reconciler_SaveLoadMerge_RoundTrip(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := testdoubles.NewSnapshotStoreFake()
	reconciler, err := lending.NewReconciler(store)
	require.NoError(t, err)

	work := newTestWork(t)
	a := lending.NewCopy("A", work)
	b := lending.NewCopy("B", work)
	require.True(t, b.TryAcquire())

	// act
	require.NoError(t, reconciler.Save(ctx, []*lending.Work{work}, nil, []*lending.Copy{a, b}))

	fresh := lending.NewLedger()
	for i := 0; i < 2; i++ {
		snapshot, loadErr := reconciler.Load(ctx)
		require.NoError(t, loadErr)

		for _, record := range snapshot.Copies {
			fresh.Adopt(record)
		}
	}

	// assert
	require.Equal(t, 2, fresh.Len(), "loading twice never duplicates copies")

	reloadedA, ok := fresh.Get("A")
	require.True(t, ok)
	assert.False(t, reloadedA.Held())

	reloadedB, ok := fresh.Get("B")
	require.True(t, ok)
	assert.True(t, reloadedB.Held())
}

func Test_Reconciler_Save_IsAppendOnly(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := testdoubles.NewSnapshotStoreFake()
	reconciler, err := lending.NewReconciler(store)
	require.NoError(t, err)

	work := newTestWork(t)
	c := lending.NewCopy("A", work)
	require.NoError(t, reconciler.Save(ctx, []*lending.Work{work}, nil, []*lending.Copy{c}))

	// act
	require.True(t, c.TryAcquire())
	require.NoError(t, reconciler.Save(ctx, []*lending.Work{work}, nil, []*lending.Copy{c}))

	// assert
	persisted := store.Persisted()
	require.Len(t, persisted.Copies, 1)
	assert.False(t, persisted.Copies[0].Held, "persisted records are never rewritten")
	assert.Len(t, persisted.Works, 1)
}

func Test_Reconciler_Save_RetriesTransientFailures(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := testdoubles.NewSnapshotStoreFake()
	store.FailAppends(lending.ErrTransientPersistence, fmt.Errorf("deadlock: %w", lending.ErrTransientPersistence))

	logger := testdoubles.NewLoggerSpy()
	reconciler, err := lending.NewReconciler(store, lending.WithLogger(logger), fastRetries())
	require.NoError(t, err)

	// act
	err = reconciler.Save(ctx, []*lending.Work{newTestWork(t)}, nil, nil)

	// assert
	require.NoError(t, err)
	assert.Equal(t, 3, store.AppendCalls())
	assert.Len(t, store.Persisted().Works, 1)
	assert.Len(t, logger.Records("warn"), 2)
}

func Test_Reconciler_Save_ReturnsPermanentFailure(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := testdoubles.NewSnapshotStoreFake()
	permanent := errors.New("permission denied")
	store.FailAppends(permanent)

	metrics := testdoubles.NewMetricsCollectorSpy()
	tracing := testdoubles.NewTracingCollectorSpy()
	reconciler, err := lending.NewReconciler(store, lending.WithMetrics(metrics), lending.WithTracing(tracing), fastRetries())
	require.NoError(t, err)

	// act
	err = reconciler.Save(ctx, []*lending.Work{newTestWork(t)}, nil, nil)

	// assert
	assert.ErrorIs(t, err, lending.ErrSavingSnapshotFailed)
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, store.AppendCalls())
	assert.Equal(t, 1, metrics.CountWithLabel(lending.SnapshotSaveDurationMetric, "status", lending.StatusError))

	spans := tracing.Spans(lending.SpanNameSnapshotSave)
	require.Len(t, spans, 1)
	assert.Equal(t, lending.StatusError, spans[0].Status)
}

func Test_Reconciler_Load_DropsInvalidAndDuplicateRecords(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := testdoubles.NewSnapshotStoreFake()
	store.Seed(lending.Snapshot{
		Works: []lending.WorkRecord{
			{Title: "T", Author: "A", Genre: "G", Pages: 1},
			{Title: "t", Author: "a", Genre: "other", Pages: 2},
			{Title: "", Author: "A"},
		},
		Borrowers: []lending.BorrowerRecord{
			{ID: 1, Role: lending.RoleStudent, Name: "Sam"},
			{ID: 2, Role: "janitor", Name: "Jo"},
		},
		Copies: []lending.CopyRecord{
			{CopyID: "C1", Title: "T", Author: "A"},
			{CopyID: "C1", Title: "T", Author: "A", Held: true},
			{CopyID: "", Title: "T", Author: "A"},
		},
	})

	logger := testdoubles.NewContextualLoggerSpy()
	reconciler, err := lending.NewReconciler(store, lending.WithContextualLogger(logger))
	require.NoError(t, err)

	// act
	snapshot, err := reconciler.Load(ctx)

	// assert
	require.NoError(t, err)
	require.Len(t, snapshot.Works, 1)
	assert.Equal(t, "G", snapshot.Works[0].Genre, "the first record per key wins")
	assert.Len(t, snapshot.Borrowers, 1)
	require.Len(t, snapshot.Copies, 1)
	assert.False(t, snapshot.Copies[0].Held)
	assert.Len(t, logger.Records("warn"), 3)
}

func Test_Reconciler_Load_StoreFailureYieldsEmptySnapshot(t *testing.T) {
	// arrange
	store := testdoubles.NewSnapshotStoreFake()
	store.FailLoads(errors.New("io error"))

	logger := testdoubles.NewLoggerSpy()
	reconciler, err := lending.NewReconciler(store, lending.WithLogger(logger))
	require.NoError(t, err)

	// act
	snapshot, err := reconciler.Load(context.Background())

	// assert
	assert.ErrorIs(t, err, lending.ErrLoadingSnapshotFailed)
	assert.True(t, snapshot.IsEmpty())
	assert.Len(t, logger.Records("error"), 1)
}

func Test_Reconciler_MergeCopiesForTitle_MemoryWins(t *testing.T) {
	// arrange
	ctx := context.Background()
	store := testdoubles.NewSnapshotStoreFake()
	store.Seed(lending.Snapshot{Copies: []lending.CopyRecord{
		{CopyID: "C1", Title: "Go in Action", Author: "William Kennedy", Held: true},
		{CopyID: "C9", Title: "go in action", Author: "William Kennedy"},
		{CopyID: "X", Title: "Other", Author: "Someone"},
	}})

	reconciler, err := lending.NewReconciler(store)
	require.NoError(t, err)

	inMemory := []*lending.Copy{lending.NewCopy("C1", newTestWork(t))}

	// act
	merged := reconciler.MergeCopiesForTitle(ctx, "Go in Action", inMemory)

	// assert
	require.Len(t, merged, 2)
	assert.Equal(t, "C1", merged[0].CopyID)
	assert.False(t, merged[0].Held, "the in-memory copy wins")
	assert.Equal(t, "C9", merged[1].CopyID)
}

func Test_NewReconciler_Validation(t *testing.T) {
	_, err := lending.NewReconciler(nil)
	assert.ErrorIs(t, err, lending.ErrNilSnapshotStore)

	_, err = lending.NewReconciler(testdoubles.NewSnapshotStoreFake(), lending.WithLogger(nil))
	assert.ErrorIs(t, err, lending.ErrNilLogger)

	_, err = lending.NewReconciler(testdoubles.NewSnapshotStoreFake(), lending.WithMetrics(nil))
	assert.ErrorIs(t, err, lending.ErrNilMetricsCollector)
}

func Test_NewReconciler_And_NewLibrary_RejectInvalidRetryOptions(t *testing.T) {
	testCases := []struct {
		name     string
		option   lending.RetryOption
		expected error
	}{
		{name: "zero max attempts", option: lending.WithMaxAttempts(0), expected: lending.ErrInvalidMaxAttempts},
		{name: "negative base delay", option: lending.WithBaseDelay(-time.Millisecond), expected: lending.ErrNegativeBaseDelay},
		{name: "jitter factor above one", option: lending.WithJitterFactor(1.5), expected: lending.ErrInvalidJitterFactor},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// arrange
			store := testdoubles.NewSnapshotStoreFake()

			// act
			reconciler, reconcilerErr := lending.NewReconciler(store, lending.WithRetryOptions(tc.option))
			library, libraryErr := lending.NewLibrary(store, lending.WithRetryOptions(tc.option))

			// assert
			assert.ErrorIs(t, reconcilerErr, tc.expected)
			assert.Nil(t, reconciler)
			assert.ErrorIs(t, libraryErr, tc.expected)
			assert.Nil(t, library)
			assert.Zero(t, store.AppendCalls())
		})
	}
}
