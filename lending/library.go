package lending

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	logMsgBorrowRejected     = "borrow rejected"
	logMsgReturnRejected     = "return rejected"
	logMsgDigitalDenied      = "digital access denied"
	logMsgDigitalNoopRelease = "digital release without active access"
	logMsgCopyAdopted        = "persisted copy adopted into ledger"
	logMsgCopyAdded          = "copy added"
	logMsgCopyRemoved        = "copy removed"
	logMsgWorkAdded          = "work added"
	logMsgBorrowerRegistered = "borrower registered"
	logMsgBackupsStarted     = "periodic backups started"
	logMsgBackupsStopped     = "periodic backups stopped"
	logMsgBackupFailed       = "periodic backup failed"
	logMsgReloaded           = "working set reloaded"

	logAttrBorrowerID = "borrower_id"
	logAttrCopyID     = "copy_id"
	logAttrOutcome    = "outcome"
	logAttrRole       = "role"
	logAttrInterval   = "interval"
	logAttrAdopted    = "adopted"

	digitalGranted = "granted"
	digitalDenied  = "denied"
	digitalUnknown = "unknown"
)

// ErrBackupsAlreadyStarted is returned when StartBackups is called on a Library whose backup timer is running.
var ErrBackupsAlreadyStarted = errors.New("periodic backups already started")

// ErrInvalidBackupInterval is returned when StartBackups is called with a non-positive interval.
var ErrInvalidBackupInterval = errors.New("backup interval must be positive")

// WorkView is a read-only report of a Work and its copies.
type WorkView struct {
	Title           string
	Author          string
	Genre           string
	Pages           int
	TotalCopies     int
	AvailableCopies int
	CopyIDs         []string
}

// BorrowerView is a read-only report of a Borrower and the copies they hold.
type BorrowerView struct {
	ID          int64
	Name        string
	Role        string
	HeldCopyIDs []string
}

// DigitalItemView is a read-only report of a DigitalItem.
type DigitalItemView struct {
	Title           string
	Author          string
	Format          string
	DRMProtected    bool
	MaxAccessors    int
	ActiveAccessors int
}

// Library is the service object wiring the Copy Ledger, the Catalog, the borrower Registry,
// the Lending Policy, the Digital Shelf and the Snapshot Reconciler.
// It is constructed once and shared by all goroutines serving requests.
type Library struct {
	ledger     *Ledger
	catalog    *Catalog
	registry   *Registry
	shelf      *DigitalShelf
	policy     *Policy
	reconciler *Reconciler
	observer

	backupMu     sync.Mutex
	backupCancel context.CancelFunc
	backupDone   chan struct{}
}

// NewLibrary creates an empty Library persisting its snapshots through the given store.
func NewLibrary(store SnapshotStore, options ...Option) (*Library, error) {
	if store == nil {
		return nil, ErrNilSnapshotStore
	}

	s, err := applyOptions(options)
	if err != nil {
		return nil, err
	}

	ledger := NewLedger()

	return &Library{
		ledger:     ledger,
		catalog:    NewCatalog(),
		registry:   NewRegistry(),
		shelf:      NewDigitalShelf(),
		policy:     NewPolicy(ledger, s.strictBorrowLimit),
		reconciler: newReconciler(store, s),
		observer:   s.observer,
	}, nil
}

// Borrow lets the borrower take the copy. Unknown borrowers or copies yield Invalid.
func (l *Library) Borrow(ctx context.Context, borrowerID int64, copyID string) Outcome {
	borrower, _ := l.registry.Get(borrowerID)
	c, _ := l.ledger.Get(copyID)

	outcome := l.policy.Borrow(borrower, c)

	role := ""
	if borrower != nil {
		role = borrower.Role.Name()
	}

	if outcome != Success {
		l.debug(ctx, logMsgBorrowRejected,
			logAttrBorrowerID, borrowerID, logAttrCopyID, copyID, logAttrOutcome, outcome.String())
	}

	l.count(ctx, BorrowMetric, map[string]string{labelOutcome: outcome.String(), labelRole: role})

	return outcome
}

// Return gives the copy back. Unknown borrowers or copies yield Invalid.
func (l *Library) Return(ctx context.Context, borrowerID int64, copyID string) Outcome {
	borrower, _ := l.registry.Get(borrowerID)
	c, _ := l.ledger.Get(copyID)

	outcome := l.policy.Return(borrower, c)

	if outcome != Success {
		l.debug(ctx, logMsgReturnRejected,
			logAttrBorrowerID, borrowerID, logAttrCopyID, copyID, logAttrOutcome, outcome.String())
	}

	l.count(ctx, ReturnMetric, map[string]string{labelOutcome: outcome.String()})

	return outcome
}

// AccessDigital opens one access to the digital item with the given title.
// It returns false if no such item exists or all access slots are taken.
func (l *Library) AccessDigital(ctx context.Context, title string) bool {
	item, ok := l.shelf.FindByTitle(title)
	if !ok {
		l.count(ctx, DigitalAccessMetric, map[string]string{labelOutcome: digitalUnknown})
		return false
	}

	if !item.Access() {
		l.debug(ctx, logMsgDigitalDenied, logAttrTitle, item.Title)
		l.count(ctx, DigitalAccessMetric, map[string]string{labelOutcome: digitalDenied})

		return false
	}

	l.count(ctx, DigitalAccessMetric, map[string]string{labelOutcome: digitalGranted})

	return true
}

// ReleaseDigital ends one access to the digital item with the given title.
// It returns false if no such item exists.
func (l *Library) ReleaseDigital(ctx context.Context, title string) bool {
	item, ok := l.shelf.FindByTitle(title)
	if !ok {
		return false
	}

	if item.Accessors() == 0 {
		l.debug(ctx, logMsgDigitalNoopRelease, logAttrTitle, item.Title)
	}

	item.Release()

	return true
}

// FindWorksByTitle returns the Works with the given title, ignoring case and surrounding whitespace.
func (l *Library) FindWorksByTitle(title string) []WorkView {
	return l.views(l.catalog.FindByTitle(title))
}

// FindWorksByAuthor returns the Works by the given author, ignoring case and surrounding whitespace.
func (l *Library) FindWorksByAuthor(author string) []WorkView {
	return l.views(l.catalog.FindByAuthor(author))
}

// AvailableCopies returns the IDs of all copies with the given title that are not held right now.
// Persisted copies unknown to the working set are adopted into the Ledger first, so every listed
// copy can be borrowed.
func (l *Library) AvailableCopies(ctx context.Context, title string) []string {
	var inMemory []*Copy
	known := make(map[string]*Copy)
	for _, w := range l.catalog.FindByTitle(title) {
		for _, c := range w.Copies() {
			inMemory = append(inMemory, c)
			known[c.ID] = c
		}
	}

	var available []string
	for _, record := range l.reconciler.MergeCopiesForTitle(ctx, title, inMemory) {
		c, ok := known[record.CopyID]
		if !ok {
			if c, ok = l.adoptCopy(ctx, record); !ok {
				continue
			}
		}

		if !c.Held() && !c.Retired() {
			available = append(available, c.ID)
		}
	}

	return available
}

// BackupNow saves a snapshot of the working set.
func (l *Library) BackupNow(ctx context.Context) error {
	return l.reconciler.Save(ctx, l.catalog.Works(), l.registry.All(), l.ledger.All())
}

// Reload merges the persisted snapshot into the working set.
// Records whose key is already present in memory are ignored; in-memory state always wins.
// On a store failure the working set stays unchanged and the error is returned.
func (l *Library) Reload(ctx context.Context) error {
	snapshot, err := l.reconciler.Load(ctx)
	if err != nil {
		return err
	}

	adopted := 0

	for _, record := range snapshot.Works {
		if _, created := l.catalog.adoptWork(record); created {
			adopted++
		}
	}

	for _, record := range snapshot.Borrowers {
		if _, created := l.registry.adopt(record); created {
			adopted++
		}
	}

	for _, record := range snapshot.Copies {
		if _, exists := l.ledger.Get(record.CopyID); exists {
			continue
		}

		if _, ok := l.adoptCopy(ctx, record); ok {
			adopted++
		}
	}

	l.info(ctx, logMsgReloaded, logAttrAdopted, adopted)

	return nil
}

// AddWork registers a new Work.
func (l *Library) AddWork(ctx context.Context, in WorkInput) (WorkView, error) {
	w, err := l.catalog.AddWork(in)
	if err != nil {
		return WorkView{}, err
	}

	l.info(ctx, logMsgWorkAdded, logAttrTitle, w.Title)

	return l.view(w), nil
}

// AddCopy adds a new Copy to the Work with the given title and author.
// An empty copyID gets a generated UUID. The ID of the new Copy is returned.
func (l *Library) AddCopy(ctx context.Context, title, author, copyID string) (string, error) {
	w, ok := l.catalog.WorkByKey(title, author)
	if !ok {
		return "", fmt.Errorf("%w: %q by %q", ErrWorkNotFound, title, author)
	}

	copyID = strings.TrimSpace(copyID)
	if copyID == "" {
		copyID = uuid.NewString()
	}

	c := NewCopy(copyID, w)

	if err := l.ledger.Add(c); err != nil {
		return "", fmt.Errorf("%w: %s", err, copyID)
	}

	if err := l.catalog.AddCopy(w, c); err != nil {
		l.ledger.Remove(copyID)
		return "", err
	}

	l.info(ctx, logMsgCopyAdded, logAttrTitle, w.Title, logAttrCopyID, copyID)

	return copyID, nil
}

// RemoveCopy takes a Copy out of circulation. Held copies cannot be removed.
func (l *Library) RemoveCopy(ctx context.Context, title, author, copyID string) error {
	w, ok := l.catalog.WorkByKey(title, author)
	if !ok {
		return fmt.Errorf("%w: %q by %q", ErrWorkNotFound, title, author)
	}

	if _, err := l.catalog.RemoveCopy(w, copyID); err != nil {
		return err
	}

	l.ledger.Retire(copyID)

	l.info(ctx, logMsgCopyRemoved, logAttrTitle, w.Title, logAttrCopyID, copyID)

	return nil
}

// RegisterBorrower adds a new Borrower.
func (l *Library) RegisterBorrower(ctx context.Context, in BorrowerInput) (BorrowerView, error) {
	b, err := l.registry.Register(in)
	if err != nil {
		return BorrowerView{}, err
	}

	l.info(ctx, logMsgBorrowerRegistered, logAttrBorrowerID, b.ID, logAttrRole, b.Role.Name())

	return borrowerView(b), nil
}

// AddDigitalItem places a new DigitalItem on the shelf.
func (l *Library) AddDigitalItem(_ context.Context, in DigitalItemInput) (DigitalItemView, error) {
	item, err := l.shelf.Add(in)
	if err != nil {
		return DigitalItemView{}, err
	}

	return digitalItemView(item), nil
}

// RemoveDigitalItem takes the DigitalItems with the given title off the shelf.
func (l *Library) RemoveDigitalItem(_ context.Context, title string) bool {
	return l.shelf.Remove(title)
}

// ListAvailableDigital reports the DigitalItems with a free access slot without consuming any slot.
func (l *Library) ListAvailableDigital() []DigitalItemView {
	items := l.shelf.ListAvailable()
	views := make([]DigitalItemView, 0, len(items))

	for _, item := range items {
		views = append(views, digitalItemView(item))
	}

	return views
}

// Works reports all Works in the order they were added.
func (l *Library) Works() []WorkView {
	return l.views(l.catalog.Works())
}

// Borrowers reports all Borrowers ordered by ID.
func (l *Library) Borrowers() []BorrowerView {
	borrowers := l.registry.All()
	views := make([]BorrowerView, 0, len(borrowers))

	for _, b := range borrowers {
		views = append(views, borrowerView(b))
	}

	return views
}

// Borrower reports a single Borrower.
func (l *Library) Borrower(id int64) (BorrowerView, bool) {
	b, ok := l.registry.Get(id)
	if !ok {
		return BorrowerView{}, false
	}

	return borrowerView(b), true
}

// StartBackups saves a snapshot every interval until ctx is done or Close is called.
// Failed backups are logged and retried at the next tick.
func (l *Library) StartBackups(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidBackupInterval
	}

	l.backupMu.Lock()
	defer l.backupMu.Unlock()

	if l.backupCancel != nil {
		return ErrBackupsAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	l.backupCancel = cancel
	l.backupDone = done

	go func() {
		defer close(done)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.BackupNow(ctx); err != nil {
					l.error(ctx, logMsgBackupFailed, logAttrError, err.Error())
				}
			}
		}
	}()

	l.info(ctx, logMsgBackupsStarted, logAttrInterval, interval.String())

	return nil
}

// Close stops the backup timer, waits for a running backup to finish and saves a final snapshot.
func (l *Library) Close(ctx context.Context) error {
	l.backupMu.Lock()
	cancel, done := l.backupCancel, l.backupDone
	l.backupCancel, l.backupDone = nil, nil
	l.backupMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
		l.info(ctx, logMsgBackupsStopped)
	}

	return l.BackupNow(ctx)
}

// adoptCopy makes sure the record's copy is in the Ledger and attached to its Work.
// Copies removed by a librarian are not adopted again unless their ID was added anew.
func (l *Library) adoptCopy(ctx context.Context, record CopyRecord) (*Copy, bool) {
	c, created := l.ledger.Adopt(record)
	if c == nil {
		return nil, false
	}

	if !created {
		return c, true
	}

	w, _ := l.catalog.adoptWork(WorkRecord{
		Title:  record.Title,
		Author: record.Author,
		Genre:  record.Genre,
		Pages:  record.Pages,
	})

	if err := l.catalog.AddCopy(w, c); err != nil {
		l.ledger.Remove(c.ID)
		l.warn(ctx, logMsgSnapshotRecordDrop, logAttrRecordType, recordTypeCopy, logAttrCopyID, c.ID, logAttrError, err.Error())

		return nil, false
	}

	l.debug(ctx, logMsgCopyAdopted, logAttrCopyID, c.ID, logAttrTitle, c.Title)

	return c, true
}

func (l *Library) views(works []*Work) []WorkView {
	views := make([]WorkView, 0, len(works))

	for _, w := range works {
		views = append(views, l.view(w))
	}

	return views
}

func (l *Library) view(w *Work) WorkView {
	copies := w.Copies()
	ids := make([]string, 0, len(copies))

	for _, c := range copies {
		ids = append(ids, c.ID)
	}

	return WorkView{
		Title:           w.Title,
		Author:          w.Author,
		Genre:           w.Genre,
		Pages:           w.Pages,
		TotalCopies:     len(copies),
		AvailableCopies: l.catalog.AvailableCopies(w),
		CopyIDs:         ids,
	}
}

func borrowerView(b *Borrower) BorrowerView {
	return BorrowerView{
		ID:          b.ID,
		Name:        b.Name,
		Role:        b.Role.Name(),
		HeldCopyIDs: b.HeldCopyIDs(),
	}
}

func digitalItemView(item *DigitalItem) DigitalItemView {
	return DigitalItemView{
		Title:           item.Title,
		Author:          item.Author,
		Format:          item.Format,
		DRMProtected:    item.DRMProtected,
		MaxAccessors:    item.MaxAccessors,
		ActiveAccessors: item.Accessors(),
	}
}
