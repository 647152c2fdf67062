package inmemory_test

import (
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/circulation-service/cmd/api/circulation"
	"github.com/circulation-service/cmd/api/inmemory"
	"github.com/google/uuid"
	"github.com/matryer/is"
	"github.com/shopspring/decimal"
)

var ctx context.Context = context.Background()

func TestUsers(t *testing.T) {
	store, err := inmemory.NewInMemoryStore()
	if err != nil {
		log.Fatalln(err)
	}

	t.Run("creates and fetches a user without errors", func(t *testing.T) {
		is := is.New(t)

		u := circulation.User{
			ID:        uuid.New(),
			FullName:  "Ada Student",
			Role:      circulation.RoleStudent,
			Active:    true,
			CreatedAt: time.Now().UTC().Round(time.Millisecond),
		}
		_, err := store.CreateUser(ctx, u)
		is.NoErr(err)

		fetched, err := store.GetUserByID(ctx, u.ID)
		is.NoErr(err)
		is.Equal(fetched, u)
	})

	t.Run("fetching an unknown user returns a not found error", func(t *testing.T) {
		is := is.New(t)

		_, err := store.GetUserByID(ctx, uuid.New())
		is.True(errors.Is(err, circulation.ErrResponseUserNotFound))
	})
}

func TestCopies(t *testing.T) {
	store, err := inmemory.NewInMemoryStore()
	if err != nil {
		log.Fatalln(err)
	}

	t.Run("reserving past the last copy returns unavailable", func(t *testing.T) {
		is := is.New(t)

		b := newBook(is, store, 2)

		is.NoErr(store.ReserveCopy(ctx, b.ID))
		is.NoErr(store.ReserveCopy(ctx, b.ID))
		err := store.ReserveCopy(ctx, b.ID)
		is.True(errors.Is(err, circulation.ErrResponseUnavailable))

		fetched, err := store.GetBookByID(ctx, b.ID)
		is.NoErr(err)
		is.Equal(fetched.AvailableCopies, 0)
	})

	t.Run("releasing is clamped at the total copies", func(t *testing.T) {
		is := is.New(t)

		b := newBook(is, store, 1)

		is.NoErr(store.ReleaseCopy(ctx, b.ID))

		fetched, err := store.GetBookByID(ctx, b.ID)
		is.NoErr(err)
		is.Equal(fetched.AvailableCopies, 1)
	})

	t.Run("reserving a copy of an unknown book returns not found", func(t *testing.T) {
		is := is.New(t)

		err := store.ReserveCopy(ctx, uuid.New())
		is.True(errors.Is(err, circulation.ErrResponseBookNotFound))
	})

	t.Run("concurrent reservations of the last copy let exactly one through", func(t *testing.T) {
		is := is.New(t)

		b := newBook(is, store, 1)

		const workers = 8
		var wg sync.WaitGroup
		results := make(chan error, workers)
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				repo, tx, err := store.BeginTx(ctx, nil)
				if err != nil {
					results <- err
					return
				}
				defer tx.Rollback()
				if err := repo.ReserveCopy(ctx, b.ID); err != nil {
					results <- err
					return
				}
				results <- tx.Commit()
			}()
		}
		wg.Wait()
		close(results)

		var succeeded, unavailable int
		for err := range results {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, circulation.ErrResponseUnavailable):
				unavailable++
			}
		}
		is.Equal(succeeded, 1)
		is.Equal(unavailable, workers-1)
	})
}

func TestRecords(t *testing.T) {
	store, err := inmemory.NewInMemoryStore()
	if err != nil {
		log.Fatalln(err)
	}

	t.Run("a second active record for the same user and book is rejected", func(t *testing.T) {
		is := is.New(t)

		r := newRecord(uuid.New(), uuid.New(), time.Now())
		_, err := store.CreateRecord(ctx, r)
		is.NoErr(err)

		dup := newRecord(r.UserID, r.BookID, time.Now())
		_, err = store.CreateRecord(ctx, dup)
		is.True(errors.Is(err, circulation.ErrResponseDuplicateActiveBorrow))
	})

	t.Run("a returned record frees the pair for a new borrow", func(t *testing.T) {
		is := is.New(t)

		r := newRecord(uuid.New(), uuid.New(), time.Now())
		_, err := store.CreateRecord(ctx, r)
		is.NoErr(err)

		returnedAt := time.Now().UTC().Round(time.Millisecond)
		r.ReturnDate = &returnedAt
		r.Status = circulation.StatusReturned
		r.FineAmount = decimal.NewFromInt(2)
		r.Notes = "\nReturn notes: cover scratched"
		updated, err := store.UpdateRecord(ctx, r)
		is.NoErr(err)
		is.True(updated.ReturnDate.Equal(returnedAt))
		is.Equal(updated.Status, circulation.StatusReturned)
		is.True(updated.FineAmount.Equal(decimal.NewFromInt(2)))
		is.Equal(updated.Notes, "\nReturn notes: cover scratched")

		again := newRecord(r.UserID, r.BookID, time.Now())
		_, err = store.CreateRecord(ctx, again)
		is.NoErr(err)

		active, err := store.ListActiveRecords(ctx, r.UserID)
		is.NoErr(err)
		is.Equal(len(active), 1)
		is.Equal(active[0].ID, again.ID)
	})

	t.Run("fetching an unknown record returns not found", func(t *testing.T) {
		is := is.New(t)

		_, err := store.GetRecordByID(ctx, uuid.New())
		is.True(errors.Is(err, circulation.ErrResponseNoActiveRecord))
	})
}

func TestListRecords(t *testing.T) {
	store, err := inmemory.NewInMemoryStore()
	if err != nil {
		log.Fatalln(err)
	}

	now := time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)
	student := uuid.New()

	onTime := newRecord(student, uuid.New(), now.AddDate(0, 0, -2))
	late := newRecord(student, uuid.New(), now.AddDate(0, 0, -20))
	lateStill := newRecord(uuid.New(), uuid.New(), now.AddDate(0, 0, -30))
	returned := newRecord(student, uuid.New(), now.AddDate(0, 0, -40))
	returnedAt := now.AddDate(0, 0, -35)
	returned.ReturnDate = &returnedAt
	returned.Status = circulation.StatusReturned

	for _, r := range []circulation.BorrowRecord{onTime, late, lateStill, returned} {
		if _, err := store.CreateRecord(ctx, r); err != nil {
			log.Fatalln(err)
		}
	}
	cutoff := circulation.OverdueCutoff(now)

	t.Run("lists a user's records newest first", func(t *testing.T) {
		is := is.New(t)

		records, err := store.ListRecords(ctx, circulation.RecordFilter{UserID: student, OverdueCutoff: cutoff})
		is.NoErr(err)
		is.Equal(len(records), 3)
		is.Equal(records[0].ID, onTime.ID)
		is.Equal(records[1].ID, late.ID)
		is.Equal(records[2].ID, returned.ID)
	})

	t.Run("overdue is derived from the due date, not the stored status", func(t *testing.T) {
		is := is.New(t)

		records, err := store.ListRecords(ctx, circulation.RecordFilter{
			Status:        circulation.StatusOverdue,
			OverdueCutoff: cutoff,
			OrderBy:       circulation.OrderDueDateAsc,
		})
		is.NoErr(err)
		is.Equal(len(records), 2)
		is.Equal(records[0].ID, lateStill.ID)
		is.Equal(records[1].ID, late.ID)
		is.Equal(records[0].Status, circulation.StatusBorrowed) // stored status is left alone
	})

	t.Run("borrowed excludes overdue and returned records", func(t *testing.T) {
		is := is.New(t)

		records, err := store.ListRecords(ctx, circulation.RecordFilter{Status: circulation.StatusBorrowed, OverdueCutoff: cutoff})
		is.NoErr(err)
		is.Equal(len(records), 1)
		is.Equal(records[0].ID, onTime.ID)
	})

	t.Run("filters by borrow date range", func(t *testing.T) {
		is := is.New(t)

		records, err := store.ListRecords(ctx, circulation.RecordFilter{
			BorrowedFrom:  now.AddDate(0, 0, -25),
			BorrowedTo:    now,
			OverdueCutoff: cutoff,
		})
		is.NoErr(err)
		is.Equal(len(records), 2)
	})
}

func TestTransactions(t *testing.T) {
	store, err := inmemory.NewInMemoryStore()
	if err != nil {
		log.Fatalln(err)
	}

	t.Run("a rolled back reservation leaves the copies untouched", func(t *testing.T) {
		is := is.New(t)

		b := newBook(is, store, 3)

		repo, tx, err := store.BeginTx(ctx, nil)
		is.NoErr(err)
		is.NoErr(repo.ReserveCopy(ctx, b.ID))
		_, err = repo.CreateRecord(ctx, newRecord(uuid.New(), b.ID, time.Now()))
		is.NoErr(err)
		is.NoErr(tx.Rollback())

		fetched, err := store.GetBookByID(ctx, b.ID)
		is.NoErr(err)
		is.Equal(fetched.AvailableCopies, 3)

		records, err := store.ListRecords(ctx, circulation.RecordFilter{BookID: b.ID})
		is.NoErr(err)
		is.Equal(len(records), 0)
	})

	t.Run("rollback after commit is harmless", func(t *testing.T) {
		is := is.New(t)

		b := newBook(is, store, 3)

		repo, tx, err := store.BeginTx(ctx, nil)
		is.NoErr(err)
		is.NoErr(repo.ReserveCopy(ctx, b.ID))
		is.NoErr(tx.Commit())
		is.NoErr(tx.Rollback())

		fetched, err := store.GetBookByID(ctx, b.ID)
		is.NoErr(err)
		is.Equal(fetched.AvailableCopies, 2)
	})
}

func newBook(is *is.I, store *inmemory.InMemoryStore, copies int) circulation.Book {
	is.Helper()

	b := circulation.Book{
		ID:              uuid.New(),
		Title:           "A book with copies",
		TotalCopies:     copies,
		AvailableCopies: copies,
		CreatedAt:       time.Now().UTC().Round(time.Millisecond),
		UpdatedAt:       time.Now().UTC().Round(time.Millisecond),
	}
	_, err := store.CreateBook(ctx, b)
	is.NoErr(err)
	return b
}

func newRecord(userID, bookID uuid.UUID, borrowedAt time.Time) circulation.BorrowRecord {
	borrowedAt = borrowedAt.UTC().Round(time.Millisecond)
	return circulation.BorrowRecord{
		ID:          uuid.New(),
		UserID:      userID,
		BookID:      bookID,
		LibrarianID: uuid.NullUUID{UUID: uuid.New(), Valid: true},
		BorrowDate:  borrowedAt,
		DueDate:     borrowedAt.AddDate(0, 0, 14),
		Status:      circulation.StatusBorrowed,
		FineAmount:  decimal.Zero,
	}
}
