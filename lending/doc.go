// Package lending provides the concurrent inventory-and-lending engine
// of a public library: physical copies, digital items and borrowers.
//
// The package owns the in-memory working set of a library and the protocols
// that keep it consistent under concurrent borrow and return requests:
//
//   - Copy Ledger: the single source of truth for whether a physical copy is held.
//     Every Copy carries its own mutex, TryAcquire and Release are O(1) and never do I/O.
//   - Catalog Index: Works (title + author) grouping their Copies, with case-insensitive
//     lookups and live availability counts.
//   - Lending Policy: role-aware borrow/return rules (Student limit, Librarian unbounded)
//     returning first-class Outcome values instead of errors.
//   - Digital Access Gate: a bounded counter per DigitalItem capping simultaneous accessors.
//   - Snapshot Reconciler: append-only persistence through a SnapshotStore and merging of
//     persisted copies back into the live Ledger by copy ID.
//
// Library is the explicitly constructed service object wiring all of the above.
//
// Common usage pattern:
//
//	store, err := fileengine.NewStore(dataDir)
//	if err != nil {
//		// handle error
//	}
//
//	library, err := lending.NewLibrary(store, lending.WithLogger(slog.Default()))
//	if err != nil {
//		// handle error
//	}
//
//	if err := library.Reload(ctx); err != nil {
//		// persisted state unavailable, continue with an empty working set
//	}
//
//	_ = library.StartBackups(ctx, time.Minute)
//	defer library.Close(ctx)
//
//	outcome := library.Borrow(ctx, studentID, copyID)
//	if outcome != lending.Success {
//		// branch on lending.AlreadyHeld, lending.LimitReached, lending.Invalid
//	}
package lending
