package seed_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/circulation-service/cmd/api/circulation"
	"github.com/circulation-service/cmd/api/inmemory"
	"github.com/circulation-service/cmd/api/seed"
	"github.com/google/uuid"
	"github.com/matryer/is"
)

const document = `{
	"users": [
		{"id": "0b9c9c43-7d5b-4b0a-9f55-6b7d3f1f1a01", "full_name": "Lena Librarian", "role": "librarian"},
		{"id": "0b9c9c43-7d5b-4b0a-9f55-6b7d3f1f1a02", "full_name": "Sam Student", "role": "student"},
		{"id": "0b9c9c43-7d5b-4b0a-9f55-6b7d3f1f1a03", "full_name": "Gone Student", "role": "student", "is_active": false}
	],
	"books": [
		{"id": "5f2a8c1e-2f3d-4c57-8a61-0d3e4b5c6d01", "title": "The Go Programming Language", "total_copies": 2}
	]
}`

func TestLoad(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

	t.Run("stores users and books", func(t *testing.T) {
		is := is.New(t)

		store, err := inmemory.NewInMemoryStore()
		is.NoErr(err)

		summary, err := seed.Load(ctx, store, strings.NewReader(document), now)
		is.NoErr(err)
		is.Equal(summary, seed.Summary{Users: 3, Books: 1})

		student, err := store.GetUserByID(ctx, uuid.MustParse("0b9c9c43-7d5b-4b0a-9f55-6b7d3f1f1a02"))
		is.NoErr(err)
		is.Equal(student.Role, circulation.RoleStudent)
		is.True(student.Active)

		gone, err := store.GetUserByID(ctx, uuid.MustParse("0b9c9c43-7d5b-4b0a-9f55-6b7d3f1f1a03"))
		is.NoErr(err)
		is.True(!gone.Active)

		book, err := store.GetBookByID(ctx, uuid.MustParse("5f2a8c1e-2f3d-4c57-8a61-0d3e4b5c6d01"))
		is.NoErr(err)
		is.Equal(book.TotalCopies, 2)
		is.Equal(book.AvailableCopies, 2)
	})

	t.Run("loading again skips what is already stored", func(t *testing.T) {
		is := is.New(t)

		store, err := inmemory.NewInMemoryStore()
		is.NoErr(err)

		_, err = seed.Load(ctx, store, strings.NewReader(document), now)
		is.NoErr(err)

		book, err := store.GetBookByID(ctx, uuid.MustParse("5f2a8c1e-2f3d-4c57-8a61-0d3e4b5c6d01"))
		is.NoErr(err)
		is.NoErr(store.ReserveCopy(ctx, book.ID))

		summary, err := seed.Load(ctx, store, strings.NewReader(document), now.Add(time.Hour))
		is.NoErr(err)
		is.Equal(summary, seed.Summary{Skipped: 4})

		book, err = store.GetBookByID(ctx, book.ID)
		is.NoErr(err)
		is.Equal(book.AvailableCopies, 1) // a reload does not reset copies already lent
	})

	t.Run("rejects an unknown role", func(t *testing.T) {
		is := is.New(t)

		store, err := inmemory.NewInMemoryStore()
		is.NoErr(err)

		doc := `{"users": [{"id": "0b9c9c43-7d5b-4b0a-9f55-6b7d3f1f1a09", "role": "janitor"}]}`
		summary, err := seed.Load(ctx, store, strings.NewReader(doc), now)
		is.True(err != nil)
		is.Equal(summary.Users, 0)
	})

	t.Run("rejects a book without copies", func(t *testing.T) {
		is := is.New(t)

		store, err := inmemory.NewInMemoryStore()
		is.NoErr(err)

		doc := `{"books": [{"id": "5f2a8c1e-2f3d-4c57-8a61-0d3e4b5c6d09", "title": "Empty", "total_copies": 0}]}`
		_, err = seed.Load(ctx, store, strings.NewReader(doc), now)
		is.True(err != nil)

		_, err = store.GetBookByID(ctx, uuid.MustParse("5f2a8c1e-2f3d-4c57-8a61-0d3e4b5c6d09"))
		is.True(errors.Is(err, circulation.ErrResponseBookNotFound))
	})

	t.Run("invalid json", func(t *testing.T) {
		is := is.New(t)

		store, err := inmemory.NewInMemoryStore()
		is.NoErr(err)

		_, err = seed.Load(ctx, store, strings.NewReader(`{"users": [`), now)
		is.True(err != nil)
	})
}
