// Package main implements the lending-simulation command.
//
// The command seeds a library with works, copies, students and one librarian, reloads
// whatever an earlier run persisted, and then issues concurrent borrow, return and digital
// access requests through a bounded worker pool while the Library saves snapshots on a timer.
//
// ## Snapshot stores
//   - file: JSON Lines files in a directory (default)
//   - postgres: one of the pgx, sql or sqlx adapters, tables created on start
//
// ## Observability
// With --observability the Library reports borrow, return and snapshot metrics and
// snapshot spans through the OpenTelemetry adapters.
//
// At the end the command prints a colored summary per outcome and checks that no copy
// has two holders. A run interrupted with Ctrl+C still flushes a final snapshot.
package main
