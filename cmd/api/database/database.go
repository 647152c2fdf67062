package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"time"

	"github.com/circulation-service/cmd/api/circulation"
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	_ "github.com/golang-migrate/migrate/v4/source/file"
)

const activeRecordIndex = "borrow_records_one_active_per_user_book"

// Postgres error codes that mean "try the unit of work again".
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
)

var dialect = goqu.Dialect("postgres")

type DBTX interface {
	sqlx.ExtContext
}

type Store struct {
	db          *sqlx.DB
	exc         *Executor
	lockTimeout time.Duration
}

type Executor struct {
	DBTX
}

type Option func(*Store)

// WithLockTimeout bounds how long a transaction waits on a row lock before
// Postgres gives up with lock_not_available.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.lockTimeout = d
	}
}

func NewStore(db *sqlx.DB, opts ...Option) *Store {
	store := &Store{
		db:  db,
		exc: NewExc(db),
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func NewExc(dbtx DBTX) *Executor {
	return &Executor{DBTX: dbtx}
}

func (store *Store) BeginTx(ctx context.Context, opts *sql.TxOptions) (circulation.Repository, driver.Tx, error) {
	tx, err := store.db.BeginTxx(ctx, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", classify(err))
	}

	if store.lockTimeout > 0 {
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", store.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return nil, nil, fmt.Errorf("setting lock timeout: %w", classify(err))
		}
	}

	txRepo := &Store{db: store.db, exc: NewExc(tx), lockTimeout: store.lockTimeout}
	return txRepo, &Tx{tx: tx}, nil
}

// Tx classifies commit failures so a serialization failure reported at
// commit time is retried like any other.
type Tx struct {
	tx *sqlx.Tx
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", classify(err))
	}
	return nil
}

func (t *Tx) Rollback() error {
	err := t.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// classify maps Postgres errors onto circulation errors, keeping the
// pq error in the chain.
func classify(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return fmt.Errorf("%w: %w", circulation.ErrResponseBusy, err)
	case codeUniqueViolation:
		if pqErr.Constraint == activeRecordIndex {
			return fmt.Errorf("%w: %w", circulation.ErrResponseDuplicateActiveBorrow, err)
		}
	}
	return err
}

/* Connects to the database through a connection string and returns a ready sqlx handle. */
func ConnectDb(connStr string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("connecting to db, opening: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connecting to db, pinging: %w", err)
	}
	return db, nil
}

func MigrationUp(store *Store, path string) error {
	driver, err := postgres.WithInstance(store.db.DB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		fmt.Sprintf("file://%s", path),
		"postgres", driver)
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}

	err = m.Up()
	if err != nil {
		return fmt.Errorf("migrating up: %w", err)
	}
	return nil
}

// -- Users --

var userCols = []any{"id", "full_name", "role", "is_active", "created_at"}

type userRow struct {
	ID        uuid.UUID `db:"id"`
	FullName  string    `db:"full_name"`
	Role      string    `db:"role"`
	Active    bool      `db:"is_active"`
	CreatedAt time.Time `db:"created_at"`
}

func (r userRow) toUser() circulation.User {
	return circulation.User{
		ID:        r.ID,
		FullName:  r.FullName,
		Role:      circulation.Role(r.Role),
		Active:    r.Active,
		CreatedAt: r.CreatedAt,
	}
}

func (store *Store) CreateUser(ctx context.Context, u circulation.User) (circulation.User, error) {
	query, args, err := dialect.Insert("users").
		Rows(goqu.Record{
			"id":         u.ID.String(),
			"full_name":  u.FullName,
			"role":       string(u.Role),
			"is_active":  u.Active,
			"created_at": u.CreatedAt,
		}).
		Returning(userCols...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return circulation.User{}, fmt.Errorf("building user insert: %w", err)
	}

	var row userRow
	if err := sqlx.GetContext(ctx, store.exc, &row, query, args...); err != nil {
		return circulation.User{}, fmt.Errorf("storing user on db: %w", classify(err))
	}
	return row.toUser(), nil
}

func (store *Store) GetUserByID(ctx context.Context, id uuid.UUID) (circulation.User, error) {
	query, args, err := dialect.From("users").
		Select(userCols...).
		Where(goqu.C("id").Eq(id.String())).
		Prepared(true).
		ToSQL()
	if err != nil {
		return circulation.User{}, fmt.Errorf("building user query: %w", err)
	}

	var row userRow
	if err := sqlx.GetContext(ctx, store.exc, &row, query, args...); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return circulation.User{}, fmt.Errorf("searching user by ID: %w", circulation.ErrResponseUserNotFound)
		default:
			return circulation.User{}, fmt.Errorf("searching user by ID: %w", classify(err))
		}
	}
	return row.toUser(), nil
}

// -- Books --

var bookCols = []any{"id", "title", "total_copies", "available_copies", "created_at", "updated_at"}

type bookRow struct {
	ID              uuid.UUID `db:"id"`
	Title           string    `db:"title"`
	TotalCopies     int       `db:"total_copies"`
	AvailableCopies int       `db:"available_copies"`
	CreatedAt       time.Time `db:"created_at"`
	UpdatedAt       time.Time `db:"updated_at"`
}

func (r bookRow) toBook() circulation.Book {
	return circulation.Book{
		ID:              r.ID,
		Title:           r.Title,
		TotalCopies:     r.TotalCopies,
		AvailableCopies: r.AvailableCopies,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

func (store *Store) CreateBook(ctx context.Context, b circulation.Book) (circulation.Book, error) {
	query, args, err := dialect.Insert("books").
		Rows(goqu.Record{
			"id":               b.ID.String(),
			"title":            b.Title,
			"total_copies":     b.TotalCopies,
			"available_copies": b.AvailableCopies,
			"created_at":       b.CreatedAt,
			"updated_at":       b.UpdatedAt,
		}).
		Returning(bookCols...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return circulation.Book{}, fmt.Errorf("building book insert: %w", err)
	}

	var row bookRow
	if err := sqlx.GetContext(ctx, store.exc, &row, query, args...); err != nil {
		return circulation.Book{}, fmt.Errorf("storing book on db: %w", classify(err))
	}
	return row.toBook(), nil
}

func (store *Store) GetBookByID(ctx context.Context, id uuid.UUID) (circulation.Book, error) {
	query, args, err := dialect.From("books").
		Select(bookCols...).
		Where(goqu.C("id").Eq(id.String())).
		Prepared(true).
		ToSQL()
	if err != nil {
		return circulation.Book{}, fmt.Errorf("building book query: %w", err)
	}

	var row bookRow
	if err := sqlx.GetContext(ctx, store.exc, &row, query, args...); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return circulation.Book{}, fmt.Errorf("searching book by ID: %w", circulation.ErrResponseBookNotFound)
		default:
			return circulation.Book{}, fmt.Errorf("searching book by ID: %w", classify(err))
		}
	}
	return row.toBook(), nil
}

/* Takes one copy off the shelf in a single conditional statement. */
func (store *Store) ReserveCopy(ctx context.Context, bookID uuid.UUID) error {
	query, args, err := reserveCopyQuery(bookID)
	if err != nil {
		return fmt.Errorf("building reserve statement: %w", err)
	}

	result, err := store.exc.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("reserving copy on db: %w", classify(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserving copy on db: %w", err)
	}
	if affected == 0 {
		if _, err := store.GetBookByID(ctx, bookID); err != nil {
			return fmt.Errorf("reserving copy on db: %w", err)
		}
		return fmt.Errorf("reserving copy on db: %w", circulation.ErrResponseUnavailable)
	}
	return nil
}

func reserveCopyQuery(bookID uuid.UUID) (string, []any, error) {
	return dialect.Update("books").
		Set(goqu.Record{
			"available_copies": goqu.L("available_copies - 1"),
			"updated_at":       goqu.L("NOW()"),
		}).
		Where(
			goqu.C("id").Eq(bookID.String()),
			goqu.C("available_copies").Gt(0),
		).
		Prepared(true).
		ToSQL()
}

/* Puts one copy back, never above the catalog total. */
func (store *Store) ReleaseCopy(ctx context.Context, bookID uuid.UUID) error {
	query, args, err := dialect.Update("books").
		Set(goqu.Record{
			"available_copies": goqu.L("LEAST(available_copies + 1, total_copies)"),
			"updated_at":       goqu.L("NOW()"),
		}).
		Where(goqu.C("id").Eq(bookID.String())).
		Prepared(true).
		ToSQL()
	if err != nil {
		return fmt.Errorf("building release statement: %w", err)
	}

	result, err := store.exc.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("releasing copy on db: %w", classify(err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("releasing copy on db: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("releasing copy on db: %w", circulation.ErrResponseBookNotFound)
	}
	return nil
}
