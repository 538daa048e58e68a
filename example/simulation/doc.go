// Package simulation runs the reference workload against a lending.Library:
// students concurrently borrowing and returning random available copies and probing
// digital items, through a bounded worker pool, while the Library saves snapshots
// in the background.
//
// The command in the cmd subdirectory wires the workload to a configured snapshot store.
package simulation
