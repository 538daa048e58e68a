package postgresengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // dialect registration
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/AntonStoeckl/library-lending-go/lending"
	"github.com/AntonStoeckl/library-lending-go/lending/postgresengine/internal/adapters"
)

const (
	dialectPostgres = "postgres"

	defaultTablePrefix = "lending_"
	defaultBatchSize   = 500

	tableWorks     = "works"
	tableBorrowers = "borrowers"
	tableCopies    = "copies"

	colSeq     = "seq"
	colWorkKey = "work_key"
	colTitle   = "title"
	colAuthor  = "author"
	colGenre   = "genre"
	colPages   = "pages"
	colID      = "id"
	colRole    = "role"
	colName    = "name"
	colCopyID  = "copy_id"
	colHeld    = "held"

	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"

	logMsgBuildQueryFailed = "failed to build query"
	logMsgDBQueryFailed    = "database query execution failed"
	logMsgDBExecFailed     = "database execution failed during snapshot append"
	logMsgScanRowFailed    = "failed to scan database row"
	logMsgInvalidRecord    = "skipping invalid snapshot record"
	logMsgCloseRowsFailed  = "failed to close database rows"
	logMsgSQLExecuted      = "executed sql for: "
	logMsgRecordsAppended  = "snapshot records appended"
	logAttrError           = "error"
	logAttrQuery           = "query"
	logAttrTable           = "table"
	logAttrDurationMS      = "duration_ms"
	logAttrRowsAffected    = "rows_affected"
)

var (
	// ErrNilDatabaseConnection is returned when a nil database connection is provided.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyTablePrefix is returned when an empty table prefix is provided to WithTablePrefix.
	ErrEmptyTablePrefix = errors.New("table prefix must not be empty")

	// ErrInvalidBatchSize is returned when a non-positive batch size is provided to WithBatchSize.
	ErrInvalidBatchSize = errors.New("batch size must be positive")

	// ErrNilLogger is returned when a nil logger is provided to WithLogger.
	ErrNilLogger = errors.New("logger must not be nil")

	// ErrBuildingQueryFailed is returned when the query builder fails.
	ErrBuildingQueryFailed = errors.New("building query failed")

	// ErrQueryingFailed is returned when a query against the database fails.
	ErrQueryingFailed = errors.New("querying snapshot tables failed")

	// ErrAppendingFailed is returned when appending snapshot rows fails.
	ErrAppendingFailed = errors.New("appending snapshot rows failed")
)

// Store is a PostgreSQL backed, append-only lending.SnapshotStore.
type Store struct {
	db          adapters.DBAdapter
	tablePrefix string
	batchSize   int
	logger      lending.Logger
}

// Option defines a functional option for configuring a Store.
type Option func(*Store) error

// WithTablePrefix sets the prefix of the three snapshot tables.
func WithTablePrefix(prefix string) Option {
	return func(s *Store) error {
		if strings.TrimSpace(prefix) == "" {
			return ErrEmptyTablePrefix
		}

		s.tablePrefix = prefix

		return nil
	}
}

// WithBatchSize sets how many rows are inserted per statement.
func WithBatchSize(size int) Option {
	return func(s *Store) error {
		if size <= 0 {
			return ErrInvalidBatchSize
		}

		s.batchSize = size

		return nil
	}
}

// WithLogger sets the logger for the Store.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL statements with execution timing (development use)
// Info level: appended row counts
// Warn level: skipped rows
// Error level: failed statements.
func WithLogger(logger lending.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			return ErrNilLogger
		}

		s.logger = logger

		return nil
	}
}

// NewStoreFromPGXPool creates a new Store using a pgx Pool with optional configuration.
func NewStoreFromPGXPool(db *pgxpool.Pool, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewPGXAdapter(db), options)
}

// NewStoreFromSQLDB creates a new Store using a sql.DB with optional configuration.
func NewStoreFromSQLDB(db *sql.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLAdapter(db), options)
}

// NewStoreFromSQLX creates a new Store using a sqlx.DB with optional configuration.
func NewStoreFromSQLX(db *sqlx.DB, options ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDatabaseConnection
	}

	return newStore(adapters.NewSQLXAdapter(db), options)
}

func newStore(db adapters.DBAdapter, options []Option) (*Store, error) {
	s := &Store{
		db:          db,
		tablePrefix: defaultTablePrefix,
		batchSize:   defaultBatchSize,
	}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// EnsureSchema creates the snapshot tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range s.SchemaStatements() {
		if _, err := s.exec(ctx, stmt, "ensure schema"); err != nil {
			return err
		}
	}

	return nil
}

// SchemaStatements returns the DDL for the snapshot tables.
func (s *Store) SchemaStatements() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s BIGSERIAL NOT NULL,
	%s TEXT PRIMARY KEY,
	%s TEXT NOT NULL,
	%s TEXT NOT NULL,
	%s TEXT NOT NULL DEFAULT '',
	%s INTEGER NOT NULL DEFAULT 0
)`, s.table(tableWorks), colSeq, colWorkKey, colTitle, colAuthor, colGenre, colPages),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s BIGSERIAL NOT NULL,
	%s BIGINT PRIMARY KEY,
	%s TEXT NOT NULL,
	%s TEXT NOT NULL DEFAULT ''
)`, s.table(tableBorrowers), colSeq, colID, colRole, colName),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	%s BIGSERIAL NOT NULL,
	%s TEXT PRIMARY KEY,
	%s TEXT NOT NULL,
	%s TEXT NOT NULL,
	%s TEXT NOT NULL DEFAULT '',
	%s INTEGER NOT NULL DEFAULT 0,
	%s BOOLEAN NOT NULL DEFAULT FALSE
)`, s.table(tableCopies), colSeq, colCopyID, colTitle, colAuthor, colGenre, colPages, colHeld),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_title_idx ON %s (LOWER(%s))`,
			s.table(tableCopies), s.table(tableCopies), colTitle),
	}
}

// LoadSnapshot implements lending.SnapshotStore. It returns nil, nil if all tables are empty.
func (s *Store) LoadSnapshot(ctx context.Context) (*lending.Snapshot, error) {
	works, err := s.loadWorks(ctx)
	if err != nil {
		return nil, err
	}

	borrowers, err := s.loadBorrowers(ctx)
	if err != nil {
		return nil, err
	}

	copies, err := s.loadCopies(ctx, "")
	if err != nil {
		return nil, err
	}

	snapshot := &lending.Snapshot{Works: works, Borrowers: borrowers, Copies: copies}
	if snapshot.IsEmpty() {
		return nil, nil //nolint:nilnil
	}

	return snapshot, nil
}

// AppendSnapshot implements lending.SnapshotStore.
// Each table is appended with its own idempotent statements, so a retry after a partial failure
// only inserts what is still missing.
func (s *Store) AppendSnapshot(
	ctx context.Context,
	works []lending.WorkRecord,
	borrowers []lending.BorrowerRecord,
	copies []lending.CopyRecord,
) error {
	statements, err := s.buildAppendQueries(works, borrowers, copies)
	if err != nil {
		s.logError(logMsgBuildQueryFailed, err)
		return errors.Join(ErrBuildingQueryFailed, err)
	}

	var appended int64
	for _, stmt := range statements {
		rowsAffected, execErr := s.exec(ctx, stmt, "append snapshot")
		if execErr != nil {
			return execErr
		}

		appended += rowsAffected
	}

	if s.logger != nil && len(statements) > 0 {
		s.logger.Info(logMsgRecordsAppended, logAttrRowsAffected, appended)
	}

	return nil
}

// LoadCopiesForTitle implements lending.SnapshotStore.
func (s *Store) LoadCopiesForTitle(ctx context.Context, title string) ([]lending.CopyRecord, error) {
	return s.loadCopies(ctx, title)
}

func (s *Store) buildAppendQueries(
	works []lending.WorkRecord,
	borrowers []lending.BorrowerRecord,
	copies []lending.CopyRecord,
) ([]string, error) {
	var statements []string

	workRows := make([]any, 0, len(works))
	for _, w := range works {
		workRows = append(workRows, goqu.Record{
			colWorkKey: w.Key(),
			colTitle:   w.Title,
			colAuthor:  w.Author,
			colGenre:   w.Genre,
			colPages:   w.Pages,
		})
	}

	borrowerRows := make([]any, 0, len(borrowers))
	for _, b := range borrowers {
		borrowerRows = append(borrowerRows, goqu.Record{
			colID:   b.ID,
			colRole: b.Role,
			colName: b.Name,
		})
	}

	copyRows := make([]any, 0, len(copies))
	for _, c := range copies {
		copyRows = append(copyRows, goqu.Record{
			colCopyID: c.CopyID,
			colTitle:  c.Title,
			colAuthor: c.Author,
			colGenre:  c.Genre,
			colPages:  c.Pages,
			colHeld:   c.Held,
		})
	}

	for _, batch := range []struct {
		table string
		rows  []any
	}{
		{table: s.table(tableWorks), rows: workRows},
		{table: s.table(tableBorrowers), rows: borrowerRows},
		{table: s.table(tableCopies), rows: copyRows},
	} {
		for start := 0; start < len(batch.rows); start += s.batchSize {
			end := min(start+s.batchSize, len(batch.rows))

			sqlQuery, _, err := goqu.Dialect(dialectPostgres).
				Insert(batch.table).
				Rows(batch.rows[start:end]...).
				OnConflict(goqu.DoNothing()).
				ToSQL()
			if err != nil {
				return nil, err
			}

			statements = append(statements, sqlQuery)
		}
	}

	return statements, nil
}

func (s *Store) buildSelectWorksQuery() (string, error) {
	sqlQuery, _, err := goqu.Dialect(dialectPostgres).
		From(s.table(tableWorks)).
		Select(colTitle, colAuthor, colGenre, colPages).
		Order(goqu.I(colSeq).Asc()).
		ToSQL()

	return sqlQuery, err
}

func (s *Store) buildSelectBorrowersQuery() (string, error) {
	sqlQuery, _, err := goqu.Dialect(dialectPostgres).
		From(s.table(tableBorrowers)).
		Select(colID, colRole, colName).
		Order(goqu.I(colSeq).Asc()).
		ToSQL()

	return sqlQuery, err
}

// buildSelectCopiesQuery selects all copies, or only those with the given title if it is not empty.
func (s *Store) buildSelectCopiesQuery(title string) (string, error) {
	selectStmt := goqu.Dialect(dialectPostgres).
		From(s.table(tableCopies)).
		Select(colCopyID, colTitle, colAuthor, colGenre, colPages, colHeld).
		Order(goqu.I(colSeq).Asc())

	if title = strings.TrimSpace(title); title != "" {
		selectStmt = selectStmt.Where(
			goqu.Func("LOWER", goqu.C(colTitle)).Eq(strings.ToLower(title)),
		)
	}

	sqlQuery, _, err := selectStmt.ToSQL()

	return sqlQuery, err
}

func (s *Store) loadWorks(ctx context.Context) ([]lending.WorkRecord, error) {
	sqlQuery, err := s.buildSelectWorksQuery()
	if err != nil {
		s.logError(logMsgBuildQueryFailed, err)
		return nil, errors.Join(ErrBuildingQueryFailed, err)
	}

	return queryRecords(ctx, s, sqlQuery, tableWorks, func(rows adapters.DBRows) (lending.WorkRecord, error) {
		var r lending.WorkRecord
		err := rows.Scan(&r.Title, &r.Author, &r.Genre, &r.Pages)

		return r, err
	})
}

func (s *Store) loadBorrowers(ctx context.Context) ([]lending.BorrowerRecord, error) {
	sqlQuery, err := s.buildSelectBorrowersQuery()
	if err != nil {
		s.logError(logMsgBuildQueryFailed, err)
		return nil, errors.Join(ErrBuildingQueryFailed, err)
	}

	return queryRecords(ctx, s, sqlQuery, tableBorrowers, func(rows adapters.DBRows) (lending.BorrowerRecord, error) {
		var r lending.BorrowerRecord
		err := rows.Scan(&r.ID, &r.Role, &r.Name)

		return r, err
	})
}

func (s *Store) loadCopies(ctx context.Context, title string) ([]lending.CopyRecord, error) {
	sqlQuery, err := s.buildSelectCopiesQuery(title)
	if err != nil {
		s.logError(logMsgBuildQueryFailed, err)
		return nil, errors.Join(ErrBuildingQueryFailed, err)
	}

	return queryRecords(ctx, s, sqlQuery, tableCopies, func(rows adapters.DBRows) (lending.CopyRecord, error) {
		var r lending.CopyRecord
		err := rows.Scan(&r.CopyID, &r.Title, &r.Author, &r.Genre, &r.Pages, &r.Held)

		return r, err
	})
}

type record interface {
	Validate() error
}

// queryRecords runs the query and scans every row. Rows that fail to scan or validate are skipped and logged.
func queryRecords[T record](
	ctx context.Context,
	s *Store,
	sqlQuery string,
	table string,
	scan func(adapters.DBRows) (T, error),
) ([]T, error) {
	start := time.Now()

	rows, err := s.db.Query(ctx, sqlQuery)
	if err != nil {
		s.logError(logMsgDBQueryFailed, err, logAttrQuery, sqlQuery)
		return nil, errors.Join(ErrQueryingFailed, mapError(err))
	}
	defer s.closeRows(rows)

	var records []T
	for rows.Next() {
		r, scanErr := scan(rows)
		if scanErr != nil {
			s.logWarn(logMsgScanRowFailed, logAttrTable, table, logAttrError, scanErr.Error())
			continue
		}

		if validateErr := r.Validate(); validateErr != nil {
			s.logWarn(logMsgInvalidRecord, logAttrTable, table, logAttrError, validateErr.Error())
			continue
		}

		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		s.logError(logMsgDBQueryFailed, err, logAttrQuery, sqlQuery)
		return nil, errors.Join(ErrQueryingFailed, mapError(err))
	}

	s.logQueryWithDuration(sqlQuery, "load "+table, time.Since(start))

	return records, nil
}

func (s *Store) exec(ctx context.Context, sqlQuery, action string) (int64, error) {
	start := time.Now()

	result, err := s.db.Exec(ctx, sqlQuery)
	if err != nil {
		s.logError(logMsgDBExecFailed, err, logAttrQuery, sqlQuery)
		return 0, errors.Join(ErrAppendingFailed, mapError(err))
	}

	s.logQueryWithDuration(sqlQuery, action, time.Since(start))

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, nil //nolint:nilerr
	}

	return rowsAffected, nil
}

func (s *Store) closeRows(rows adapters.DBRows) {
	if err := rows.Close(); err != nil {
		s.logError(logMsgCloseRowsFailed, err)
	}
}

func (s *Store) table(name string) string {
	return s.tablePrefix + name
}

// mapError marks serialization failures and deadlocks as transient.
func mapError(err error) error {
	if isTransient(err) {
		return fmt.Errorf("%w: %w", lending.ErrTransientPersistence, err)
	}

	return err
}

func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == sqlStateSerializationFailure || string(pqErr.Code) == sqlStateDeadlockDetected
	}

	return false
}

func (s *Store) logQueryWithDuration(sqlQuery, action string, duration time.Duration) {
	if s.logger != nil {
		s.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

func (s *Store) logWarn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

func (s *Store) logError(msg string, err error, args ...any) {
	if s.logger != nil {
		allArgs := []any{logAttrError, err.Error()}
		allArgs = append(allArgs, args...)
		s.logger.Error(msg, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return float64(d.Microseconds()) / 1000
}

var _ lending.SnapshotStore = (*Store)(nil)
