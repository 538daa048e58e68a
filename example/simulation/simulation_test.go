package simulation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/library-lending-go/example/simulation"
	"github.com/AntonStoeckl/library-lending-go/lending"
	"github.com/AntonStoeckl/library-lending-go/lending/fileengine"
	"github.com/AntonStoeckl/library-lending-go/testutil/testdoubles"
)

func smallSettings() simulation.Settings {
	return simulation.Settings{
		Students:      8,
		Works:         4,
		CopiesPerWork: 2,
		Workers:       8,
		Operations:    400,
		Seed:          42,
	}
}

func Test_New_RejectsInvalidSettings(t *testing.T) {
	library, err := lending.NewLibrary(testdoubles.NewSnapshotStoreFake())
	require.NoError(t, err)

	_, err = simulation.New(library, simulation.Settings{Workers: 1})
	assert.ErrorIs(t, err, simulation.ErrInvalidSettings)

	_, err = simulation.New(nil, smallSettings())
	assert.ErrorIs(t, err, simulation.ErrInvalidSettings)
}

func Test_Seed_IsIdempotent(t *testing.T) {
	// arrange
	ctx := context.Background()
	library, err := lending.NewLibrary(testdoubles.NewSnapshotStoreFake())
	require.NoError(t, err)

	sim, err := simulation.New(library, smallSettings())
	require.NoError(t, err)

	// act
	require.NoError(t, sim.Seed(ctx))
	require.NoError(t, sim.Seed(ctx))

	// assert
	works := library.Works()
	require.Len(t, works, 4)

	for _, work := range works {
		assert.Equal(t, 2, work.TotalCopies)
	}

	assert.Len(t, library.Borrowers(), 9)
	assert.Len(t, library.ListAvailableDigital(), 1)
}

func Test_Run_KeepsLendingInvariants(t *testing.T) {
	for _, strict := range []bool{false, true} {
		name := "relaxed"
		if strict {
			name = "strict"
		}

		t.Run(name, func(t *testing.T) {
			// arrange
			ctx := context.Background()

			var options []lending.Option
			if strict {
				options = append(options, lending.WithStrictBorrowLimit())
			}

			library, err := lending.NewLibrary(testdoubles.NewSnapshotStoreFake(), options...)
			require.NoError(t, err)

			sim, err := simulation.New(library, smallSettings())
			require.NoError(t, err)
			require.NoError(t, sim.Seed(ctx))

			// act
			summary, err := sim.Run(ctx)

			// assert
			require.NoError(t, err)
			assert.Equal(t, 400, summary.Operations)
			assert.Positive(t, summary.Borrows[lending.Success])
			assert.Zero(t, summary.Borrows[lending.Invalid])
			assert.NoError(t, simulation.Verify(ctx, library, strict))
		})
	}
}

func Test_Run_CanceledContext_StopsEarly(t *testing.T) {
	// arrange
	ctx, cancel := context.WithCancel(context.Background())
	library, err := lending.NewLibrary(testdoubles.NewSnapshotStoreFake())
	require.NoError(t, err)

	sim, err := simulation.New(library, smallSettings())
	require.NoError(t, err)
	require.NoError(t, sim.Seed(ctx))

	cancel()

	// act
	summary, err := sim.Run(ctx)

	// assert
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, summary.Operations, 400)
}

func Test_Run_WithFileStore_SurvivesRestart(t *testing.T) {
	// arrange
	ctx := context.Background()
	dir := t.TempDir()

	store, err := fileengine.NewStore(dir)
	require.NoError(t, err)

	library, err := lending.NewLibrary(store)
	require.NoError(t, err)

	sim, err := simulation.New(library, smallSettings())
	require.NoError(t, err)
	require.NoError(t, sim.Seed(ctx))

	_, err = sim.Run(ctx)
	require.NoError(t, err)
	require.NoError(t, library.Close(ctx))

	// act
	reopened, err := fileengine.NewStore(dir)
	require.NoError(t, err)

	restarted, err := lending.NewLibrary(reopened)
	require.NoError(t, err)
	require.NoError(t, restarted.Reload(ctx))

	restartedSim, err := simulation.New(restarted, smallSettings())
	require.NoError(t, err)
	require.NoError(t, restartedSim.Seed(ctx))

	// assert
	assert.Len(t, restarted.Works(), 4)
	for _, work := range restarted.Works() {
		assert.Equal(t, 2, work.TotalCopies)
	}
	assert.Len(t, restarted.Borrowers(), 9)
}

func Test_Verify_FreshLibraryIsConsistent(t *testing.T) {
	// arrange
	ctx := context.Background()
	library, err := lending.NewLibrary(testdoubles.NewSnapshotStoreFake())
	require.NoError(t, err)

	sim, err := simulation.New(library, smallSettings())
	require.NoError(t, err)
	require.NoError(t, sim.Seed(ctx))

	// act
	err = simulation.Verify(ctx, library, true)

	// assert
	assert.NoError(t, err)
}
