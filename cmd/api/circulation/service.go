package circulation

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/circulation-service/cmd/api/lock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

//go:generate mockgen -destination=mocks/mock_circulation.go -package=mocks github.com/circulation-service/cmd/api/circulation Repository,Notifier,Locker

type Repository interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (User, error)
	GetBookByID(ctx context.Context, id uuid.UUID) (Book, error)
	ReserveCopy(ctx context.Context, bookID uuid.UUID) error
	ReleaseCopy(ctx context.Context, bookID uuid.UUID) error
	ListActiveRecords(ctx context.Context, userID uuid.UUID) ([]BorrowRecord, error)
	CreateRecord(ctx context.Context, record BorrowRecord) (BorrowRecord, error)
	GetRecordByID(ctx context.Context, id uuid.UUID) (BorrowRecord, error)
	UpdateRecord(ctx context.Context, record BorrowRecord) (BorrowRecord, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]BorrowRecord, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Repository, driver.Tx, error)
}

type Notifier interface {
	BookBorrowed(ctx context.Context, record BorrowRecord) error
	BookReturned(ctx context.Context, record BorrowRecord) error
}

// Locker serializes units of work touching the same keys. Keys are locked in
// the order given; the returned func releases all of them.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (func(), error)
}

type MetricsRecorder interface {
	ObserveBorrow(outcome string)
	ObserveReturn(outcome string, fine decimal.Decimal)
	ObserveRetry(operation string)
}

type Service struct {
	repo                 Repository
	settings             Settings
	locker               Locker
	notifier             Notifier
	notificationsTimeout time.Duration
	metrics              MetricsRecorder
	logger               *zap.Logger
	now                  func() time.Time
	retry                retryConfig
	lockTimeout          time.Duration
	txTimeout            time.Duration
}

type Option func(*Service)

func WithLocker(l Locker, timeout time.Duration) Option {
	return func(s *Service) {
		s.locker = l
		s.lockTimeout = timeout
	}
}

func WithNotifier(n Notifier, timeout time.Duration) Option {
	return func(s *Service) {
		s.notifier = n
		s.notificationsTimeout = timeout
	}
}

func WithMetrics(m MetricsRecorder) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithClock replaces time.Now, mostly for tests that need records to age.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(s *Service) {
		if maxAttempts > 0 {
			s.retry.maxAttempts = maxAttempts
		}
		if baseDelay >= 0 {
			s.retry.baseDelay = baseDelay
		}
	}
}

func WithTxTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.txTimeout = d
	}
}

func NewService(repo Repository, settings Settings, opts ...Option) *Service {
	s := &Service{
		repo:                 repo,
		settings:             settings,
		notificationsTimeout: 2 * time.Second,
		logger:               zap.NewNop(),
		now:                  time.Now,
		retry: retryConfig{
			maxAttempts:  defaultMaxAttempts,
			baseDelay:    defaultBaseDelay,
			jitterFactor: defaultJitterFactor,
		},
		lockTimeout: 2 * time.Second,
		txTimeout:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Settings() Settings {
	return s.settings
}

// ResolveActor turns the id a request claims to act as into an Actor.
func (s *Service) ResolveActor(ctx context.Context, id uuid.UUID) (Actor, error) {
	if id == uuid.Nil {
		return Actor{}, ErrResponseActorMissing
	}
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrResponseUserNotFound) {
			return Actor{}, fmt.Errorf("resolving actor %s: %w", id, ErrResponseActorMissing)
		}
		return Actor{}, repositoryError("resolving actor", err)
	}
	if !user.Active {
		return Actor{}, ErrResponseActorInactive
	}
	return Actor{ID: user.ID, Role: user.Role, FullName: user.FullName}, nil
}

type BorrowRequest struct {
	UserID uuid.UUID
	BookID uuid.UUID
	Notes  string
}

// Borrow lends one copy of a book to a student. The student and book checks,
// the reservation of the copy and the new record commit together.
func (s *Service) Borrow(ctx context.Context, actor Actor, req BorrowRequest) (BorrowRecord, error) {
	record, err := s.borrow(ctx, actor, req)
	if s.metrics != nil {
		s.metrics.ObserveBorrow(OutcomeOf(err))
	}
	if err != nil {
		s.logFailure("borrow rejected", err, zap.Stringer("user_id", req.UserID), zap.Stringer("book_id", req.BookID))
		return BorrowRecord{}, err
	}

	s.logger.Info("book borrowed",
		zap.Stringer("record_id", record.ID),
		zap.Stringer("user_id", record.UserID),
		zap.Stringer("book_id", record.BookID),
		zap.Stringer("librarian_id", actor.ID),
		zap.Time("due_date", record.DueDate),
	)
	s.notify("BookBorrowed", func(ctx context.Context) error { return s.notifier.BookBorrowed(ctx, record) })
	return record, nil
}

func (s *Service) borrow(ctx context.Context, actor Actor, req BorrowRequest) (BorrowRecord, error) {
	if err := authorize(actor, OpBorrow, uuid.Nil); err != nil {
		return BorrowRecord{}, err
	}
	if req.UserID == uuid.Nil || req.BookID == uuid.Nil {
		return BorrowRecord{}, ErrResponseBorrowEntryBlankFields
	}

	ctx, cancel := s.unitOfWork(ctx)
	defer cancel()

	unlock, err := s.lock(ctx, userLockKey(req.UserID), bookLockKey(req.BookID))
	if err != nil {
		return BorrowRecord{}, err
	}
	defer unlock()

	var record BorrowRecord
	err = retryOnBusy(ctx, s.retry, s.onRetry("borrow"), func(ctx context.Context) error {
		var txErr error
		record, txErr = s.borrowTx(ctx, actor, req)
		return txErr
	})
	if err != nil {
		return BorrowRecord{}, err
	}
	return record.Present(s.now(), s.settings.FinePerDay), nil
}

func (s *Service) borrowTx(ctx context.Context, actor Actor, req BorrowRequest) (BorrowRecord, error) {
	repoTx, tx, err := s.repo.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return BorrowRecord{}, repositoryError("beginning borrow transaction", err)
	}
	defer tx.Rollback()

	student, err := repoTx.GetUserByID(ctx, req.UserID)
	if err != nil {
		return BorrowRecord{}, repositoryError("borrowing, resolving student", err)
	}
	if !student.Active || student.Role != RoleStudent {
		return BorrowRecord{}, ErrResponseUserNotStudent
	}

	book, err := repoTx.GetBookByID(ctx, req.BookID)
	if err != nil {
		return BorrowRecord{}, repositoryError("borrowing, resolving book", err)
	}

	active, err := repoTx.ListActiveRecords(ctx, req.UserID)
	if err != nil {
		return BorrowRecord{}, repositoryError("borrowing, listing active records", err)
	}
	for _, r := range active {
		if r.BookID == req.BookID {
			return BorrowRecord{}, ErrResponseDuplicateActiveBorrow
		}
	}
	if len(active) >= s.settings.MaxBooksPerStudent {
		return BorrowRecord{}, ErrResponseLimitExceeded
	}

	if err := repoTx.ReserveCopy(ctx, req.BookID); err != nil {
		return BorrowRecord{}, repositoryError("borrowing, reserving copy", err)
	}

	borrowedAt := s.now().UTC().Round(time.Millisecond)
	newRecord := BorrowRecord{
		ID:          uuid.New(),
		UserID:      req.UserID,
		BookID:      req.BookID,
		LibrarianID: uuid.NullUUID{UUID: actor.ID, Valid: true},
		BorrowDate:  borrowedAt,
		DueDate:     borrowedAt.AddDate(0, 0, s.settings.BorrowPeriodDays),
		Status:      StatusBorrowed,
		FineAmount:  decimal.Zero,
		Notes:       req.Notes,
	}
	created, err := repoTx.CreateRecord(ctx, newRecord)
	if err != nil {
		return BorrowRecord{}, repositoryError("borrowing, creating record", err)
	}

	if err := tx.Commit(); err != nil {
		return BorrowRecord{}, repositoryError("committing borrow", err)
	}
	created.Details = RecordDetails{
		BookTitle:         book.Title,
		UserFullName:      student.FullName,
		LibrarianFullName: actor.FullName,
	}
	return created, nil
}

type ReturnRequest struct {
	RecordID uuid.UUID
	Notes    string
}

// Return closes an active borrow record, fixes its fine and gives the copy
// back to the catalog in the same transaction.
func (s *Service) Return(ctx context.Context, actor Actor, req ReturnRequest) (BorrowRecord, error) {
	record, err := s.returnBook(ctx, actor, req)
	if s.metrics != nil {
		s.metrics.ObserveReturn(OutcomeOf(err), record.FineAmount)
	}
	if err != nil {
		s.logFailure("return rejected", err, zap.Stringer("record_id", req.RecordID))
		return BorrowRecord{}, err
	}

	s.logger.Info("book returned",
		zap.Stringer("record_id", record.ID),
		zap.Stringer("user_id", record.UserID),
		zap.Stringer("book_id", record.BookID),
		zap.Stringer("librarian_id", actor.ID),
		zap.String("fine_amount", record.FineAmount.StringFixed(2)),
	)
	s.notify("BookReturned", func(ctx context.Context) error { return s.notifier.BookReturned(ctx, record) })
	return record, nil
}

func (s *Service) returnBook(ctx context.Context, actor Actor, req ReturnRequest) (BorrowRecord, error) {
	if err := authorize(actor, OpReturn, uuid.Nil); err != nil {
		return BorrowRecord{}, err
	}
	if req.RecordID == uuid.Nil {
		return BorrowRecord{}, ErrResponseReturnEntryBlankFields
	}

	ctx, cancel := s.unitOfWork(ctx)
	defer cancel()

	unlock, err := s.lock(ctx, recordLockKey(req.RecordID))
	if err != nil {
		return BorrowRecord{}, err
	}
	defer unlock()

	var record BorrowRecord
	err = retryOnBusy(ctx, s.retry, s.onRetry("return"), func(ctx context.Context) error {
		var txErr error
		record, txErr = s.returnTx(ctx, actor, req)
		return txErr
	})
	if err != nil {
		return BorrowRecord{}, err
	}

	// The return is committed; missing details only leave names blank.
	record.Details.LibrarianFullName = actor.FullName
	details := []BorrowRecord{record}
	if err := s.describe(ctx, details); err != nil {
		s.logger.Warn("describing returned record", zap.Stringer("record_id", record.ID), zap.Error(err))
	}
	return details[0].Present(s.now(), s.settings.FinePerDay), nil
}

func (s *Service) returnTx(ctx context.Context, actor Actor, req ReturnRequest) (BorrowRecord, error) {
	repoTx, tx, err := s.repo.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return BorrowRecord{}, repositoryError("beginning return transaction", err)
	}
	defer tx.Rollback()

	record, err := repoTx.GetRecordByID(ctx, req.RecordID)
	if err != nil {
		return BorrowRecord{}, repositoryError("returning, fetching record", err)
	}
	if !record.Active() {
		return BorrowRecord{}, ErrResponseAlreadyReturned
	}

	returnedAt := s.now().UTC().Round(time.Millisecond)
	record.ReturnDate = &returnedAt
	record.Status = StatusReturned
	record.FineAmount = Fine(record.DueDate, returnedAt, s.settings.FinePerDay)
	record.LibrarianID = uuid.NullUUID{UUID: actor.ID, Valid: true}
	record.Notes = appendReturnNotes(record.Notes, req.Notes)

	updated, err := repoTx.UpdateRecord(ctx, record)
	if err != nil {
		return BorrowRecord{}, repositoryError("returning, updating record", err)
	}
	if err := repoTx.ReleaseCopy(ctx, record.BookID); err != nil {
		return BorrowRecord{}, repositoryError("returning, releasing copy", err)
	}

	if err := tx.Commit(); err != nil {
		return BorrowRecord{}, repositoryError("committing return", err)
	}
	return updated, nil
}

func appendReturnNotes(existing, notes string) string {
	if notes == "" {
		return existing
	}
	return existing + "\nReturn notes: " + notes
}

// unitOfWork detaches a borrow or return from the caller's cancellation so
// that it either commits or rolls back on its own deadline.
func (s *Service) unitOfWork(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), s.txTimeout)
}

func (s *Service) lock(ctx context.Context, keys ...string) (func(), error) {
	if s.locker == nil {
		return func() {}, nil
	}
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	unlock, err := s.locker.Lock(lockCtx, keys...)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("locking %v: %w", keys, ErrResponseBusy)
		}
		return nil, fmt.Errorf("locking %v: %w", keys, err)
	}
	return unlock, nil
}

func (s *Service) onRetry(operation string) func(int, error) {
	return func(attempt int, err error) {
		s.logger.Warn("retrying busy operation",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		if s.metrics != nil {
			s.metrics.ObserveRetry(operation)
		}
	}
}

func (s *Service) notify(event string, send func(ctx context.Context) error) {
	if s.notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.notificationsTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			s.logger.Warn("notification failed", zap.String("event", event), zap.Error(err))
		}
	}()
}

func (s *Service) logFailure(msg string, err error, fields ...zap.Field) {
	fields = append(fields, zap.Error(err))
	if KindOf(err) == KindInternal {
		s.logger.Error(msg, fields...)
		return
	}
	s.logger.Info(msg, fields...)
}

func userLockKey(id uuid.UUID) string   { return "user:" + id.String() }
func bookLockKey(id uuid.UUID) string   { return "book:" + id.String() }
func recordLockKey(id uuid.UUID) string { return "record:" + id.String() }

// OutcomeOf labels the result of an operation for metrics.
func OutcomeOf(err error) string {
	if err == nil {
		return "success"
	}
	switch KindOf(err) {
	case KindValidation:
		return "validation"
	case KindUnauthenticated:
		return "unauthenticated"
	case KindForbidden:
		return "forbidden"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindBusy:
		return "busy"
	default:
		return "error"
	}
}
