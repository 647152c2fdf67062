package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/circulation-service/cmd/api/circulation"
	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

var recordCols = []any{
	"id", "user_id", "book_id", "librarian_id", "borrow_date", "due_date",
	"return_date", "status", "fine_amount", "notes",
}

type recordRow struct {
	ID          uuid.UUID       `db:"id"`
	UserID      uuid.UUID       `db:"user_id"`
	BookID      uuid.UUID       `db:"book_id"`
	LibrarianID uuid.NullUUID   `db:"librarian_id"`
	BorrowDate  time.Time       `db:"borrow_date"`
	DueDate     time.Time       `db:"due_date"`
	ReturnDate  sql.NullTime    `db:"return_date"`
	Status      string          `db:"status"`
	FineAmount  decimal.Decimal `db:"fine_amount"`
	Notes       string          `db:"notes"`
}

func (r recordRow) toRecord() circulation.BorrowRecord {
	record := circulation.BorrowRecord{
		ID:          r.ID,
		UserID:      r.UserID,
		BookID:      r.BookID,
		LibrarianID: r.LibrarianID,
		BorrowDate:  r.BorrowDate.UTC(),
		DueDate:     r.DueDate.UTC(),
		Status:      circulation.Status(r.Status),
		FineAmount:  r.FineAmount,
		Notes:       r.Notes,
	}
	if r.ReturnDate.Valid {
		returned := r.ReturnDate.Time.UTC()
		record.ReturnDate = &returned
	}
	return record
}

func nullableID(id uuid.NullUUID) any {
	if !id.Valid {
		return nil
	}
	return id.UUID.String()
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

func (store *Store) CreateRecord(ctx context.Context, r circulation.BorrowRecord) (circulation.BorrowRecord, error) {
	query, args, err := dialect.Insert("borrow_records").
		Rows(goqu.Record{
			"id":           r.ID.String(),
			"user_id":      r.UserID.String(),
			"book_id":      r.BookID.String(),
			"librarian_id": nullableID(r.LibrarianID),
			"borrow_date":  r.BorrowDate,
			"due_date":     r.DueDate,
			"return_date":  nullableTime(r.ReturnDate),
			"status":       string(r.Status),
			"fine_amount":  r.FineAmount.StringFixed(2),
			"notes":        r.Notes,
		}).
		Returning(recordCols...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return circulation.BorrowRecord{}, fmt.Errorf("building borrow record insert: %w", err)
	}

	var row recordRow
	if err := sqlx.GetContext(ctx, store.exc, &row, query, args...); err != nil {
		return circulation.BorrowRecord{}, fmt.Errorf("storing borrow record on db: %w", classify(err))
	}
	return row.toRecord(), nil
}

func (store *Store) GetRecordByID(ctx context.Context, id uuid.UUID) (circulation.BorrowRecord, error) {
	query, args, err := dialect.From("borrow_records").
		Select(recordCols...).
		Where(goqu.C("id").Eq(id.String())).
		Prepared(true).
		ToSQL()
	if err != nil {
		return circulation.BorrowRecord{}, fmt.Errorf("building borrow record query: %w", err)
	}

	var row recordRow
	if err := sqlx.GetContext(ctx, store.exc, &row, query, args...); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return circulation.BorrowRecord{}, fmt.Errorf("searching borrow record by ID: %w", circulation.ErrResponseNoActiveRecord)
		default:
			return circulation.BorrowRecord{}, fmt.Errorf("searching borrow record by ID: %w", classify(err))
		}
	}
	return row.toRecord(), nil
}

/* Writes the mutable part of a record: who handled it, its return and fine, and notes. */
func (store *Store) UpdateRecord(ctx context.Context, r circulation.BorrowRecord) (circulation.BorrowRecord, error) {
	query, args, err := dialect.Update("borrow_records").
		Set(goqu.Record{
			"librarian_id": nullableID(r.LibrarianID),
			"return_date":  nullableTime(r.ReturnDate),
			"status":       string(r.Status),
			"fine_amount":  r.FineAmount.StringFixed(2),
			"notes":        r.Notes,
			"updated_at":   goqu.L("NOW()"),
		}).
		Where(goqu.C("id").Eq(r.ID.String())).
		Returning(recordCols...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return circulation.BorrowRecord{}, fmt.Errorf("building borrow record update: %w", err)
	}

	var row recordRow
	if err := sqlx.GetContext(ctx, store.exc, &row, query, args...); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return circulation.BorrowRecord{}, fmt.Errorf("updating borrow record on db: %w", circulation.ErrResponseNoActiveRecord)
		default:
			return circulation.BorrowRecord{}, fmt.Errorf("updating borrow record on db: %w", classify(err))
		}
	}
	return row.toRecord(), nil
}

func (store *Store) ListActiveRecords(ctx context.Context, userID uuid.UUID) ([]circulation.BorrowRecord, error) {
	return store.ListRecords(ctx, circulation.RecordFilter{UserID: userID, ActiveOnly: true})
}

func (store *Store) ListRecords(ctx context.Context, filter circulation.RecordFilter) ([]circulation.BorrowRecord, error) {
	query, args, err := listRecordsQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("building borrow records query: %w", err)
	}

	var rows []recordRow
	if err := sqlx.SelectContext(ctx, store.exc, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("listing borrow records from db: %w", classify(err))
	}

	records := make([]circulation.BorrowRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, nil
}

// listRecordsQuery turns a filter into SQL. Derived statuses become date
// predicates against OverdueCutoff; the stored status is only trusted for
// returned records.
func listRecordsQuery(filter circulation.RecordFilter) (string, []any, error) {
	where := []goqu.Expression{}

	if filter.UserID != uuid.Nil {
		where = append(where, goqu.C("user_id").Eq(filter.UserID.String()))
	}
	if filter.BookID != uuid.Nil {
		where = append(where, goqu.C("book_id").Eq(filter.BookID.String()))
	}
	if !filter.BorrowedFrom.IsZero() {
		where = append(where, goqu.C("borrow_date").Gte(filter.BorrowedFrom))
	}
	if !filter.BorrowedTo.IsZero() {
		where = append(where, goqu.C("borrow_date").Lt(filter.BorrowedTo))
	}
	if filter.ActiveOnly {
		where = append(where, goqu.C("return_date").IsNull())
	}

	switch filter.Status {
	case circulation.StatusReturned:
		where = append(where, goqu.C("return_date").IsNotNull())
	case circulation.StatusOverdue:
		where = append(where,
			goqu.C("return_date").IsNull(),
			goqu.C("due_date").Lt(filter.OverdueCutoff),
		)
	case circulation.StatusBorrowed:
		where = append(where,
			goqu.C("return_date").IsNull(),
			goqu.C("due_date").Gte(filter.OverdueCutoff),
		)
	}

	ds := dialect.From("borrow_records").Select(recordCols...)
	if len(where) > 0 {
		ds = ds.Where(where...)
	}

	switch filter.OrderBy {
	case circulation.OrderDueDateAsc:
		ds = ds.Order(goqu.I("due_date").Asc(), goqu.I("id").Asc())
	default:
		ds = ds.Order(goqu.I("borrow_date").Desc(), goqu.I("id").Asc())
	}

	return ds.Prepared(true).ToSQL()
}
