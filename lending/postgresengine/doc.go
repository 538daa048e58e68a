// Package postgresengine provides a lending.SnapshotStore on PostgreSQL.
//
// The snapshot lives in three tables (default names lending_works, lending_borrowers, lending_copies),
// each with its record key as primary key. Appends are INSERT ... ON CONFLICT DO NOTHING,
// so a persisted row is never rewritten and a retried append is harmless.
//
// The store runs on a pgxpool.Pool, a database/sql DB (lib/pq) or a sqlx.DB.
// Serialization failures and deadlocks reported by PostgreSQL are returned wrapped in
// lending.ErrTransientPersistence, which the Reconciler retries.
//
// Create the tables with EnsureSchema or with the statements returned by SchemaStatements.
package postgresengine
