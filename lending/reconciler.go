package lending

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"
)

const (
	logMsgSnapshotSaved        = "snapshot saved"
	logMsgSnapshotSaveRetried  = "transient failure while saving snapshot, retried"
	logMsgSnapshotSaveFailed   = "saving snapshot failed"
	logMsgSnapshotLoaded       = "snapshot loaded"
	logMsgSnapshotLoadFailed   = "loading snapshot failed"
	logMsgSnapshotRecordDrop   = "skipping invalid snapshot record"
	logMsgDiskCopiesLoadFailed = "loading persisted copies for title failed"

	logAttrError        = "error"
	logAttrDurationMS   = "duration_ms"
	logAttrWorkCount    = "work_count"
	logAttrBorrowerCnt  = "borrower_count"
	logAttrCopyCount    = "copy_count"
	logAttrAttempts     = "attempts"
	logAttrRecordType   = "record_type"
	logAttrRecordKey    = "record_key"
	logAttrTitle        = "title"
	logAttrDiskOnlyCnt  = "disk_only_count"
	recordTypeWork      = "work"
	recordTypeBorrower  = "borrower"
	recordTypeCopy      = "copy"
	spanAttrRecordCount = "record_count"
	spanAttrAttempts    = "attempts"
	spanAttrErrorType   = "error_type"
)

// ErrLoadingSnapshotFailed is returned when the store could not provide the persisted snapshot.
var ErrLoadingSnapshotFailed = errors.New("loading snapshot failed")

// Reconciler moves the working set to and from a SnapshotStore.
type Reconciler struct {
	store        SnapshotStore
	retryOptions []RetryOption
	observer
}

// NewReconciler creates a Reconciler on top of the given store.
func NewReconciler(store SnapshotStore, options ...Option) (*Reconciler, error) {
	if store == nil {
		return nil, ErrNilSnapshotStore
	}

	s, err := applyOptions(options)
	if err != nil {
		return nil, err
	}

	return newReconciler(store, s), nil
}

func newReconciler(store SnapshotStore, s settings) *Reconciler {
	return &Reconciler{
		store:        store,
		retryOptions: s.retryOptions,
		observer:     s.observer,
	}
}

// Save flattens the working set and appends it to the store.
// Transient store failures are retried with exponential backoff.
// Each copy's held flag is read under its own lock, no lock is held during I/O.
func (r *Reconciler) Save(ctx context.Context, works []*Work, borrowers []*Borrower, copies []*Copy) error {
	snapshot := BuildSnapshot(works, borrowers, copies)
	recordCount := len(snapshot.Works) + len(snapshot.Borrowers) + len(snapshot.Copies)

	ctx, span := r.startSpan(ctx, SpanNameSnapshotSave, map[string]string{
		spanAttrRecordCount: strconv.Itoa(recordCount),
	})

	start := time.Now()

	meta, err := RetryWithExponentialBackoff(
		ctx,
		func(ctx context.Context) error {
			appendErr := r.store.AppendSnapshot(ctx, snapshot.Works, snapshot.Borrowers, snapshot.Copies)
			if isRetryableError(appendErr) {
				r.warn(ctx, logMsgSnapshotSaveRetried, logAttrError, appendErr.Error())
			}

			return appendErr
		},
		r.retryOptions...,
	)

	duration := time.Since(start)

	if err != nil {
		r.error(ctx, logMsgSnapshotSaveFailed, logAttrError, err.Error(), logAttrAttempts, meta.Attempts)
		r.duration(ctx, SnapshotSaveDurationMetric, duration, map[string]string{"status": StatusError})
		r.finishSpan(span, StatusError, map[string]string{
			spanAttrAttempts:  strconv.Itoa(meta.Attempts),
			spanAttrErrorType: meta.LastErrorType,
		})

		return errors.Join(ErrSavingSnapshotFailed, err)
	}

	r.info(ctx, logMsgSnapshotSaved,
		logAttrWorkCount, len(snapshot.Works),
		logAttrBorrowerCnt, len(snapshot.Borrowers),
		logAttrCopyCount, len(snapshot.Copies),
		logAttrDurationMS, toMilliseconds(duration),
		logAttrAttempts, meta.Attempts,
	)
	r.duration(ctx, SnapshotSaveDurationMetric, duration, map[string]string{"status": StatusSuccess})
	r.value(ctx, SnapshotRecordsMetric, float64(recordCount), nil)
	r.finishSpan(span, StatusSuccess, map[string]string{spanAttrAttempts: strconv.Itoa(meta.Attempts)})

	return nil
}

// Load reads the persisted snapshot.
// Invalid and duplicate records are dropped. A store failure is logged and returned together
// with an empty Snapshot, so callers can continue with what they have in memory.
func (r *Reconciler) Load(ctx context.Context) (Snapshot, error) {
	ctx, span := r.startSpan(ctx, SpanNameSnapshotReload, nil)
	start := time.Now()

	persisted, err := r.store.LoadSnapshot(ctx)
	duration := time.Since(start)

	if err != nil {
		r.error(ctx, logMsgSnapshotLoadFailed, logAttrError, err.Error())
		r.duration(ctx, SnapshotLoadDurationMetric, duration, map[string]string{"status": StatusError})
		r.finishSpan(span, StatusError, map[string]string{spanAttrErrorType: errorType(err)})

		return Snapshot{}, errors.Join(ErrLoadingSnapshotFailed, err)
	}

	snapshot := r.sanitize(ctx, persisted)

	r.info(ctx, logMsgSnapshotLoaded,
		logAttrWorkCount, len(snapshot.Works),
		logAttrBorrowerCnt, len(snapshot.Borrowers),
		logAttrCopyCount, len(snapshot.Copies),
		logAttrDurationMS, toMilliseconds(duration),
	)
	r.duration(ctx, SnapshotLoadDurationMetric, duration, map[string]string{"status": StatusSuccess})
	r.finishSpan(span, StatusSuccess, map[string]string{
		spanAttrRecordCount: strconv.Itoa(len(snapshot.Works) + len(snapshot.Borrowers) + len(snapshot.Copies)),
	})

	return snapshot, nil
}

// MergeCopiesForTitle returns the union of the in-memory copies and the persisted copies with the
// given title, keyed by copy ID. In-memory copies come first and win; a persisted copy is only
// included when no in-memory copy has its ID. A store failure is logged and yields the in-memory copies.
func (r *Reconciler) MergeCopiesForTitle(ctx context.Context, title string, inMemory []*Copy) []CopyRecord {
	merged := make([]CopyRecord, 0, len(inMemory))
	seen := make(map[string]struct{}, len(inMemory))

	for _, c := range inMemory {
		merged = append(merged, c.Record())
		seen[c.ID] = struct{}{}
	}

	persisted, err := r.store.LoadCopiesForTitle(ctx, title)
	if err != nil {
		r.error(ctx, logMsgDiskCopiesLoadFailed, logAttrError, err.Error(), logAttrTitle, title)
		return merged
	}

	diskOnly := 0
	for _, record := range persisted {
		if _, ok := seen[record.CopyID]; ok {
			continue
		}

		if err := record.Validate(); err != nil {
			r.warn(ctx, logMsgSnapshotRecordDrop, logAttrRecordType, recordTypeCopy, logAttrError, err.Error())
			continue
		}

		seen[record.CopyID] = struct{}{}
		merged = append(merged, record)
		diskOnly++
	}

	if diskOnly > 0 {
		r.debug(ctx, logMsgSnapshotLoaded, logAttrTitle, title, logAttrDiskOnlyCnt, diskOnly)
	}

	return merged
}

func (r *Reconciler) sanitize(ctx context.Context, persisted *Snapshot) Snapshot {
	var snapshot Snapshot
	if persisted.IsEmpty() {
		return snapshot
	}

	snapshot.Works = keepValid(ctx, r.observer, recordTypeWork, persisted.Works)
	snapshot.Borrowers = keepValid(ctx, r.observer, recordTypeBorrower, persisted.Borrowers)
	snapshot.Copies = keepValid(ctx, r.observer, recordTypeCopy, persisted.Copies)

	return snapshot
}

type snapshotRecord interface {
	Key() string
	Validate() error
}

// keepValid drops invalid records and all but the first record per key.
func keepValid[T snapshotRecord](ctx context.Context, o observer, recordType string, records []T) []T {
	kept := make([]T, 0, len(records))
	seen := make(map[string]struct{}, len(records))

	for _, record := range records {
		if err := record.Validate(); err != nil {
			o.warn(ctx, logMsgSnapshotRecordDrop, logAttrRecordType, recordType, logAttrError, err.Error())
			continue
		}

		key := record.Key()
		if _, ok := seen[key]; ok {
			o.debug(ctx, logMsgSnapshotRecordDrop, logAttrRecordType, recordType, logAttrRecordKey, key)
			continue
		}

		seen[key] = struct{}{}
		kept = append(kept, record)
	}

	return kept
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
