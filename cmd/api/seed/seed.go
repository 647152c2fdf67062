// Package seed loads users and books from a JSON document into a store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/circulation-service/cmd/api/circulation"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Store is the user directory and the catalog.
type Store interface {
	GetUserByID(ctx context.Context, id uuid.UUID) (circulation.User, error)
	CreateUser(ctx context.Context, u circulation.User) (circulation.User, error)
	GetBookByID(ctx context.Context, id uuid.UUID) (circulation.Book, error)
	CreateBook(ctx context.Context, b circulation.Book) (circulation.Book, error)
}

type UserEntry struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Role     string    `json:"role"`
	Active   *bool     `json:"is_active"`
}

type BookEntry struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	TotalCopies int       `json:"total_copies"`
}

type Document struct {
	Users []UserEntry `json:"users"`
	Books []BookEntry `json:"books"`
}

type Summary struct {
	Users   int
	Books   int
	Skipped int
}

// Load decodes the document and stores every entry. Books start with all of
// their copies available and users are active unless stated otherwise.
// Entries whose id is already stored are left untouched, so a seed can be
// loaded again on every start.
func Load(ctx context.Context, store Store, r io.Reader, now time.Time) (Summary, error) {
	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return Summary{}, fmt.Errorf("decoding seed: %w", err)
	}

	var summary Summary
	now = now.UTC().Round(time.Millisecond)

	for i, entry := range doc.Users {
		user, err := entry.toUser(now)
		if err != nil {
			return summary, fmt.Errorf("seeding user %d: %w", i, err)
		}
		_, err = store.GetUserByID(ctx, user.ID)
		switch {
		case err == nil:
			summary.Skipped++
			continue
		case !errors.Is(err, circulation.ErrResponseUserNotFound):
			return summary, fmt.Errorf("seeding user %s: %w", user.ID, err)
		}
		if _, err := store.CreateUser(ctx, user); err != nil {
			return summary, fmt.Errorf("seeding user %s: %w", user.ID, err)
		}
		summary.Users++
	}

	for i, entry := range doc.Books {
		book, err := entry.toBook(now)
		if err != nil {
			return summary, fmt.Errorf("seeding book %d: %w", i, err)
		}
		_, err = store.GetBookByID(ctx, book.ID)
		switch {
		case err == nil:
			summary.Skipped++
			continue
		case !errors.Is(err, circulation.ErrResponseBookNotFound):
			return summary, fmt.Errorf("seeding book %s: %w", book.ID, err)
		}
		if _, err := store.CreateBook(ctx, book); err != nil {
			return summary, fmt.Errorf("seeding book %s: %w", book.ID, err)
		}
		summary.Books++
	}

	return summary, nil
}

func (e UserEntry) toUser(now time.Time) (circulation.User, error) {
	role := circulation.Role(e.Role)
	if e.ID == uuid.Nil || !role.Valid() {
		return circulation.User{}, fmt.Errorf("user needs an id and one of the roles admin, librarian or student, got %q", e.Role)
	}
	active := true
	if e.Active != nil {
		active = *e.Active
	}
	return circulation.User{ID: e.ID, FullName: e.FullName, Role: role, Active: active, CreatedAt: now}, nil
}

func (e BookEntry) toBook(now time.Time) (circulation.Book, error) {
	if e.ID == uuid.Nil || e.Title == "" || e.TotalCopies < 1 {
		return circulation.Book{}, fmt.Errorf("book needs an id, a title and at least one copy")
	}
	return circulation.Book{
		ID:              e.ID,
		Title:           e.Title,
		TotalCopies:     e.TotalCopies,
		AvailableCopies: e.TotalCopies,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}
