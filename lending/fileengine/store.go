package fileengine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/AntonStoeckl/library-lending-go/lending"
)

const (
	worksFileName     = "works.jsonl"
	borrowersFileName = "borrowers.jsonl"
	copiesFileName    = "copies.jsonl"

	defaultDirMode  os.FileMode = 0o755
	defaultFileMode os.FileMode = 0o644
	maxLineBytes                = 1 << 20

	logMsgMalformedLine = "skipping malformed snapshot line"
	logMsgInvalidRecord = "skipping invalid snapshot record"
	logMsgAppended      = "snapshot records appended"
	logAttrFile         = "file"
	logAttrLine         = "line"
	logAttrError        = "error"
	logAttrAppended     = "appended"
)

var (
	// ErrEmptyDirectory is returned when NewStore is called without a directory.
	ErrEmptyDirectory = errors.New("snapshot directory must not be empty")

	// ErrNilLogger is returned when a nil logger is provided to WithLogger.
	ErrNilLogger = errors.New("logger must not be nil")
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is a file based, append-only lending.SnapshotStore.
// All appends are serialized by the Store's mutex; reads take the same lock so they never see a half-written batch.
type Store struct {
	dir      string
	fileMode os.FileMode
	logger   lending.Logger
	mu       sync.Mutex
}

// Option defines a functional option for configuring a Store.
type Option func(*Store) error

// WithLogger sets the logger receiving skipped-line warnings and append summaries.
func WithLogger(logger lending.Logger) Option {
	return func(s *Store) error {
		if logger == nil {
			return ErrNilLogger
		}

		s.logger = logger

		return nil
	}
}

// WithFileMode sets the permissions used when creating the snapshot files.
func WithFileMode(mode os.FileMode) Option {
	return func(s *Store) error {
		s.fileMode = mode
		return nil
	}
}

// NewStore creates a Store in dir, creating the directory if needed.
func NewStore(dir string, options ...Option) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, ErrEmptyDirectory
	}

	s := &Store{dir: dir, fileMode: defaultFileMode}

	for _, option := range options {
		if err := option(s); err != nil {
			return nil, err
		}
	}

	if err := os.MkdirAll(dir, defaultDirMode); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	return s, nil
}

// Dir returns the directory holding the snapshot files.
func (s *Store) Dir() string {
	return s.dir
}

// LoadSnapshot implements lending.SnapshotStore. It returns nil, nil if no snapshot file exists yet.
func (s *Store) LoadSnapshot(ctx context.Context) (*lending.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.anyFileExists() {
		return nil, nil //nolint:nilnil
	}

	works, err := readRecords[lending.WorkRecord](ctx, s, worksFileName)
	if err != nil {
		return nil, err
	}

	borrowers, err := readRecords[lending.BorrowerRecord](ctx, s, borrowersFileName)
	if err != nil {
		return nil, err
	}

	copies, err := readRecords[lending.CopyRecord](ctx, s, copiesFileName)
	if err != nil {
		return nil, err
	}

	return &lending.Snapshot{Works: works, Borrowers: borrowers, Copies: copies}, nil
}

// AppendSnapshot implements lending.SnapshotStore. Records whose key is already persisted are skipped.
func (s *Store) AppendSnapshot(
	ctx context.Context,
	works []lending.WorkRecord,
	borrowers []lending.BorrowerRecord,
	copies []lending.CopyRecord,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	appendedWorks, err := appendRecords(ctx, s, worksFileName, works)
	if err != nil {
		return err
	}

	appendedBorrowers, err := appendRecords(ctx, s, borrowersFileName, borrowers)
	if err != nil {
		return err
	}

	appendedCopies, err := appendRecords(ctx, s, copiesFileName, copies)
	if err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Debug(logMsgAppended, logAttrAppended, appendedWorks+appendedBorrowers+appendedCopies)
	}

	return nil
}

// LoadCopiesForTitle implements lending.SnapshotStore.
func (s *Store) LoadCopiesForTitle(ctx context.Context, title string) ([]lending.CopyRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copies, err := readRecords[lending.CopyRecord](ctx, s, copiesFileName)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(strings.TrimSpace(title))

	var matching []lending.CopyRecord
	for _, c := range copies {
		if strings.ToLower(strings.TrimSpace(c.Title)) == q {
			matching = append(matching, c)
		}
	}

	return matching, nil
}

type record interface {
	Key() string
	Validate() error
}

// readRecords must be called with s.mu held. Malformed or invalid lines are skipped and logged,
// and only the first record per key is returned.
func readRecords[T record](ctx context.Context, s *Store, fileName string) ([]T, error) {
	path := filepath.Join(s.dir, fileName)

	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", fileName, err)
	}
	defer func() { _ = f.Close() }()

	var records []T
	seen := make(map[string]struct{})

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var r T
		if !jsoniter.ConfigFastest.Valid(line) {
			s.warn(logMsgMalformedLine, logAttrFile, fileName, logAttrLine, lineNo)
			continue
		}

		if err := json.Unmarshal(line, &r); err != nil {
			s.warn(logMsgMalformedLine, logAttrFile, fileName, logAttrLine, lineNo, logAttrError, err.Error())
			continue
		}

		if err := r.Validate(); err != nil {
			s.warn(logMsgInvalidRecord, logAttrFile, fileName, logAttrLine, lineNo, logAttrError, err.Error())
			continue
		}

		if _, dup := seen[r.Key()]; dup {
			continue
		}

		seen[r.Key()] = struct{}{}
		records = append(records, r)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", fileName, err)
	}

	return records, nil
}

// appendRecords must be called with s.mu held.
func appendRecords[T record](ctx context.Context, s *Store, fileName string, records []T) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	existing, err := readRecords[T](ctx, s, fileName)
	if err != nil {
		return 0, err
	}

	persisted := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		persisted[r.Key()] = struct{}{}
	}

	var buf bytes.Buffer
	appended := 0

	for _, r := range records {
		if _, ok := persisted[r.Key()]; ok {
			continue
		}

		line, err := json.Marshal(r)
		if err != nil {
			return 0, fmt.Errorf("encode %s record: %w", fileName, err)
		}

		persisted[r.Key()] = struct{}{}
		buf.Write(line)
		buf.WriteByte('\n')
		appended++
	}

	if appended == 0 {
		return 0, nil
	}

	path := filepath.Join(s.dir, fileName)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, s.fileMode)
	if err != nil {
		return 0, fmt.Errorf("open %s for append: %w", fileName, err)
	}
	defer func() { _ = f.Close() }()

	torn, err := endsWithoutNewline(f)
	if err != nil {
		return 0, fmt.Errorf("inspect %s: %w", fileName, err)
	}

	if torn {
		if _, err := f.Write([]byte{'\n'}); err != nil {
			return 0, fmt.Errorf("terminate torn line in %s: %w", fileName, err)
		}
	}

	if _, err := f.Write(buf.Bytes()); err != nil {
		return 0, fmt.Errorf("append to %s: %w", fileName, err)
	}

	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("sync %s: %w", fileName, err)
	}

	return appended, nil
}

// endsWithoutNewline reports whether a non-empty file's last byte is not a newline,
// which means the previous write was interrupted.
func endsWithoutNewline(f *os.File) (bool, error) {
	info, err := f.Stat()
	if err != nil {
		return false, err
	}

	if info.Size() == 0 {
		return false, nil
	}

	last := make([]byte, 1)
	if _, err := f.ReadAt(last, info.Size()-1); err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}

	return last[0] != '\n', nil
}

func (s *Store) anyFileExists() bool {
	for _, name := range []string{worksFileName, borrowersFileName, copiesFileName} {
		if _, err := os.Stat(filepath.Join(s.dir, name)); err == nil {
			return true
		}
	}

	return false
}

func (s *Store) warn(msg string, args ...any) {
	if s.logger != nil {
		s.logger.Warn(msg, args...)
	}
}

var _ lending.SnapshotStore = (*Store)(nil)
