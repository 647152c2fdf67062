package inmemory

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sort"
	"time"

	"github.com/circulation-service/cmd/api/circulation"
	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/shopspring/decimal"
)

// InMemoryStore keeps users, books and borrow records in go-memdb. memdb
// allows a single write transaction at a time, which makes every unit of
// work opened with BeginTx serializable.
type InMemoryStore struct {
	db *memdb.MemDB
	// exc is set only on the store handed out by BeginTx.
	exc *memdb.Txn
}

func NewInMemoryStore() (*InMemoryStore, error) {
	schema := &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			"user": {
				Name: "user",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
			"book": {
				Name: "book",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
				},
			},
			"borrow_record": {
				Name: "borrow_record",
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"user_id": {
						Name:    "user_id",
						Unique:  false,
						Indexer: &memdb.StringFieldIndex{Field: "UserID"},
					},
					"book_id": {
						Name:    "book_id",
						Unique:  false,
						Indexer: &memdb.StringFieldIndex{Field: "BookID"},
					},
					// Only active records carry an ActiveKey, so this behaves
					// like a partial unique index on (user_id, book_id).
					"active": {
						Name:         "active",
						Unique:       true,
						AllowMissing: true,
						Indexer:      &memdb.StringFieldIndex{Field: "ActiveKey"},
					},
				},
			},
		},
	}

	if err := schema.Validate(); err != nil {
		return nil, fmt.Errorf("validating in-memory schema: %w", err)
	}

	db, err := memdb.NewMemDB(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize in-memory database: %w", err)
	}
	return &InMemoryStore{db: db}, nil
}

type AdaptedUser struct {
	ID        string
	FullName  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

func adaptUserIdToString(u circulation.User) AdaptedUser {
	return AdaptedUser{
		ID:        u.ID.String(),
		FullName:  u.FullName,
		Role:      string(u.Role),
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

func adaptUserIdToUUID(u AdaptedUser) circulation.User {
	return circulation.User{
		ID:        uuid.MustParse(u.ID),
		FullName:  u.FullName,
		Role:      circulation.Role(u.Role),
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

type AdaptedBook struct {
	ID              string
	Title           string
	TotalCopies     int
	AvailableCopies int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func adaptBookIdToString(b circulation.Book) AdaptedBook {
	return AdaptedBook{
		ID:              b.ID.String(),
		Title:           b.Title,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func adaptBookIdToUUID(b AdaptedBook) circulation.Book {
	return circulation.Book{
		ID:              uuid.MustParse(b.ID),
		Title:           b.Title,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

type AdaptedRecord struct {
	ID          string
	UserID      string
	BookID      string
	LibrarianID string
	ActiveKey   string
	BorrowDate  time.Time
	DueDate     time.Time
	ReturnDate  *time.Time
	Status      string
	FineAmount  decimal.Decimal
	Notes       string
}

func activeKey(userID, bookID uuid.UUID) string {
	return userID.String() + "/" + bookID.String()
}

func adaptRecordIdToString(r circulation.BorrowRecord) AdaptedRecord {
	adapted := AdaptedRecord{
		ID:         r.ID.String(),
		UserID:     r.UserID.String(),
		BookID:     r.BookID.String(),
		BorrowDate: r.BorrowDate,
		DueDate:    r.DueDate,
		ReturnDate: r.ReturnDate,
		Status:     string(r.Status),
		FineAmount: r.FineAmount,
		Notes:      r.Notes,
	}
	if r.LibrarianID.Valid {
		adapted.LibrarianID = r.LibrarianID.UUID.String()
	}
	if r.Active() {
		adapted.ActiveKey = activeKey(r.UserID, r.BookID)
	}
	return adapted
}

func adaptRecordIdToUUID(r AdaptedRecord) circulation.BorrowRecord {
	record := circulation.BorrowRecord{
		ID:         uuid.MustParse(r.ID),
		UserID:     uuid.MustParse(r.UserID),
		BookID:     uuid.MustParse(r.BookID),
		BorrowDate: r.BorrowDate,
		DueDate:    r.DueDate,
		ReturnDate: r.ReturnDate,
		Status:     circulation.Status(r.Status),
		FineAmount: r.FineAmount,
		Notes:      r.Notes,
	}
	if r.LibrarianID != "" {
		record.LibrarianID = uuid.NullUUID{UUID: uuid.MustParse(r.LibrarianID), Valid: true}
	}
	return record
}

// begin returns the store's transaction when called through BeginTx, or a
// fresh one owned by the caller otherwise.
func (store *InMemoryStore) begin(write bool) (*memdb.Txn, bool) {
	if store.exc != nil {
		return store.exc, true
	}
	return store.db.Txn(write), false
}

// -- Users --

func (store *InMemoryStore) CreateUser(ctx context.Context, u circulation.User) (circulation.User, error) {
	txn, insideTx := store.begin(true)
	if !insideTx {
		defer txn.Abort()
	}

	if err := txn.Insert("user", adaptUserIdToString(u)); err != nil {
		return circulation.User{}, fmt.Errorf("storing user on db: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return u, nil
}

func (store *InMemoryStore) GetUserByID(ctx context.Context, id uuid.UUID) (circulation.User, error) {
	txn, insideTx := store.begin(false)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First("user", "id", id.String())
	if err != nil {
		return circulation.User{}, fmt.Errorf("searching user by ID: %w", err)
	}
	if raw == nil {
		return circulation.User{}, fmt.Errorf("searching user by ID: %w", circulation.ErrResponseUserNotFound)
	}
	return adaptUserIdToUUID(raw.(AdaptedUser)), nil
}

// -- Books --

func (store *InMemoryStore) CreateBook(ctx context.Context, b circulation.Book) (circulation.Book, error) {
	if b.TotalCopies < 1 || b.AvailableCopies < 0 || b.AvailableCopies > b.TotalCopies {
		return circulation.Book{}, fmt.Errorf("storing book on db: copies out of range (%d of %d)", b.AvailableCopies, b.TotalCopies)
	}

	txn, insideTx := store.begin(true)
	if !insideTx {
		defer txn.Abort()
	}

	if err := txn.Insert("book", adaptBookIdToString(b)); err != nil {
		return circulation.Book{}, fmt.Errorf("storing book on db: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return b, nil
}

func (store *InMemoryStore) GetBookByID(ctx context.Context, id uuid.UUID) (circulation.Book, error) {
	txn, insideTx := store.begin(false)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First("book", "id", id.String())
	if err != nil {
		return circulation.Book{}, fmt.Errorf("searching book by ID: %w", err)
	}
	if raw == nil {
		return circulation.Book{}, fmt.Errorf("searching book by ID: %w", circulation.ErrResponseBookNotFound)
	}
	return adaptBookIdToUUID(raw.(AdaptedBook)), nil
}

func (store *InMemoryStore) ReserveCopy(ctx context.Context, bookID uuid.UUID) error {
	return store.adjustCopies(bookID, -1)
}

func (store *InMemoryStore) ReleaseCopy(ctx context.Context, bookID uuid.UUID) error {
	return store.adjustCopies(bookID, 1)
}

func (store *InMemoryStore) adjustCopies(bookID uuid.UUID, delta int) error {
	txn, insideTx := store.begin(true)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First("book", "id", bookID.String())
	if err != nil {
		return fmt.Errorf("adjusting copies on db: %w", err)
	}
	if raw == nil {
		return fmt.Errorf("adjusting copies on db: %w", circulation.ErrResponseBookNotFound)
	}

	b := raw.(AdaptedBook)
	switch {
	case delta < 0 && b.AvailableCopies <= 0:
		return fmt.Errorf("reserving copy on db: %w", circulation.ErrResponseUnavailable)
	case delta > 0 && b.AvailableCopies >= b.TotalCopies:
		// Nothing to release, the count is already at the catalog total.
		if !insideTx {
			txn.Commit()
		}
		return nil
	}
	b.AvailableCopies += delta
	b.UpdatedAt = time.Now().UTC().Round(time.Millisecond)

	if err := txn.Insert("book", b); err != nil {
		return fmt.Errorf("adjusting copies on db: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return nil
}

// -- Borrow records --

func (store *InMemoryStore) CreateRecord(ctx context.Context, r circulation.BorrowRecord) (circulation.BorrowRecord, error) {
	txn, insideTx := store.begin(true)
	if !insideTx {
		defer txn.Abort()
	}

	adapted := adaptRecordIdToString(r)
	if adapted.ActiveKey != "" {
		existing, err := txn.First("borrow_record", "active", adapted.ActiveKey)
		if err != nil {
			return circulation.BorrowRecord{}, fmt.Errorf("storing borrow record on db: %w", err)
		}
		if existing != nil {
			return circulation.BorrowRecord{}, fmt.Errorf("storing borrow record on db: %w", circulation.ErrResponseDuplicateActiveBorrow)
		}
	}

	if err := txn.Insert("borrow_record", adapted); err != nil {
		return circulation.BorrowRecord{}, fmt.Errorf("storing borrow record on db: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return r, nil
}

func (store *InMemoryStore) GetRecordByID(ctx context.Context, id uuid.UUID) (circulation.BorrowRecord, error) {
	txn, insideTx := store.begin(false)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First("borrow_record", "id", id.String())
	if err != nil {
		return circulation.BorrowRecord{}, fmt.Errorf("searching borrow record by ID: %w", err)
	}
	if raw == nil {
		return circulation.BorrowRecord{}, fmt.Errorf("searching borrow record by ID: %w", circulation.ErrResponseNoActiveRecord)
	}
	return adaptRecordIdToUUID(raw.(AdaptedRecord)), nil
}

func (store *InMemoryStore) UpdateRecord(ctx context.Context, r circulation.BorrowRecord) (circulation.BorrowRecord, error) {
	txn, insideTx := store.begin(true)
	if !insideTx {
		defer txn.Abort()
	}

	raw, err := txn.First("borrow_record", "id", r.ID.String())
	if err != nil {
		return circulation.BorrowRecord{}, fmt.Errorf("updating borrow record on db: %w", err)
	}
	if raw == nil {
		return circulation.BorrowRecord{}, fmt.Errorf("updating borrow record on db: %w", circulation.ErrResponseNoActiveRecord)
	}

	updated := raw.(AdaptedRecord)
	//BorrowDate, DueDate, UserID and BookID will not change
	updated.LibrarianID = ""
	if r.LibrarianID.Valid {
		updated.LibrarianID = r.LibrarianID.UUID.String()
	}
	updated.ReturnDate = r.ReturnDate
	updated.Status = string(r.Status)
	updated.FineAmount = r.FineAmount
	updated.Notes = r.Notes
	updated.ActiveKey = ""
	if r.ReturnDate == nil {
		updated.ActiveKey = activeKey(r.UserID, r.BookID)
	}

	// Delete first so the old active key leaves the partial index.
	if err := txn.Delete("borrow_record", raw); err != nil {
		return circulation.BorrowRecord{}, fmt.Errorf("updating borrow record on db: %w", err)
	}
	if err := txn.Insert("borrow_record", updated); err != nil {
		return circulation.BorrowRecord{}, fmt.Errorf("updating borrow record on db: %w", err)
	}

	if !insideTx {
		txn.Commit()
	}
	return adaptRecordIdToUUID(updated), nil
}

func (store *InMemoryStore) ListActiveRecords(ctx context.Context, userID uuid.UUID) ([]circulation.BorrowRecord, error) {
	return store.ListRecords(ctx, circulation.RecordFilter{UserID: userID, ActiveOnly: true})
}

func (store *InMemoryStore) ListRecords(ctx context.Context, filter circulation.RecordFilter) ([]circulation.BorrowRecord, error) {
	txn, insideTx := store.begin(false)
	if !insideTx {
		defer txn.Abort()
	}

	var it memdb.ResultIterator
	var err error
	switch {
	case filter.UserID != uuid.Nil:
		it, err = txn.Get("borrow_record", "user_id", filter.UserID.String())
	case filter.BookID != uuid.Nil:
		it, err = txn.Get("borrow_record", "book_id", filter.BookID.String())
	default:
		it, err = txn.Get("borrow_record", "id")
	}
	if err != nil {
		return nil, fmt.Errorf("listing borrow records from db: %w", err)
	}

	records := []circulation.BorrowRecord{}
	for obj := it.Next(); obj != nil; obj = it.Next() {
		r := adaptRecordIdToUUID(obj.(AdaptedRecord))
		if !filter.Matches(r) {
			continue
		}
		records = append(records, r)
	}

	sortRecords(filter.OrderBy, records)
	return records, nil
}

func sortRecords(order circulation.RecordOrder, records []circulation.BorrowRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		switch order {
		case circulation.OrderDueDateAsc:
			return records[i].DueDate.Before(records[j].DueDate)
		default:
			return records[i].BorrowDate.After(records[j].BorrowDate)
		}
	})
}

// -- Transactions --

func (store *InMemoryStore) BeginTx(ctx context.Context, opts *sql.TxOptions) (circulation.Repository, driver.Tx, error) {
	txn := store.db.Txn(true)
	if txn == nil {
		return nil, nil, fmt.Errorf("failed to create transaction")
	}

	txWrapper := &TxWrapper{txn: txn}
	txStore := &InMemoryStore{
		db:  store.db,
		exc: txWrapper.txn,
	}

	return txStore, txWrapper, nil
}

// TxWrapper adapts a memdb transaction to driver.Tx. Rollback after Commit
// is a no-op, so callers can always defer it.
type TxWrapper struct {
	txn *memdb.Txn
}

func (tx *TxWrapper) Commit() error {
	tx.txn.Commit()
	return nil
}

func (tx *TxWrapper) Rollback() error {
	tx.txn.Abort()
	return nil
}
