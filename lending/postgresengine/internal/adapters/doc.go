// Package adapters provides database adapter implementations for the PostgreSQL snapshot store.
//
// It supports pgxpool.Pool, sql.DB and sqlx.DB behind one DBAdapter interface,
// so the store builds its SQL once and runs it on whichever connection type the caller has.
package adapters
