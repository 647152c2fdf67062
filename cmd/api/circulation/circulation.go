// Package circulation lends book copies to students and takes them back,
// keeping the catalog's copy counts consistent with the borrow records.
package circulation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleLibrarian Role = "librarian"
	RoleStudent   Role = "student"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleLibrarian, RoleStudent:
		return true
	}
	return false
}

type User struct {
	ID        uuid.UUID
	FullName  string
	Role      Role
	Active    bool
	CreatedAt time.Time
}

// Actor is the user performing a request.
type Actor struct {
	ID       uuid.UUID
	Role     Role
	FullName string
}

type Book struct {
	ID              uuid.UUID
	Title           string
	TotalCopies     int
	AvailableCopies int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Status string

const (
	StatusBorrowed Status = "borrowed"
	StatusOverdue  Status = "overdue"
	StatusReturned Status = "returned"
)

func ParseStatus(s string) (Status, bool) {
	switch Status(s) {
	case StatusBorrowed, StatusOverdue, StatusReturned:
		return Status(s), true
	}
	return "", false
}

type BorrowRecord struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	BookID      uuid.UUID
	LibrarianID uuid.NullUUID
	BorrowDate  time.Time
	DueDate     time.Time
	ReturnDate  *time.Time
	Status      Status
	FineAmount  decimal.Decimal
	Notes       string
	// OverdueDays is set by Present together with Status.
	OverdueDays int
	Details     RecordDetails
}

// RecordDetails names the book and the people a record refers to. Stores
// never persist it; the Engine fills it on the way out.
type RecordDetails struct {
	BookTitle         string
	UserFullName      string
	LibrarianFullName string
}

// Active reports whether the record still holds a copy of the book.
func (r BorrowRecord) Active() bool {
	return r.ReturnDate == nil
}

// IsOverdue reports whether an active record is past its due date as of asOf.
func (r BorrowRecord) IsOverdue(asOf time.Time) bool {
	return r.Active() && DaysBetween(r.DueDate, asOf) > 0
}

func (r BorrowRecord) DaysOverdue(asOf time.Time) int {
	if !r.IsOverdue(asOf) {
		return 0
	}
	return DaysBetween(r.DueDate, asOf)
}

// Present overlays the status and advisory fine derived from asOf on an
// active record. Returned records are presented as stored.
func (r BorrowRecord) Present(asOf time.Time, finePerDay decimal.Decimal) BorrowRecord {
	r.OverdueDays = 0
	if !r.Active() {
		r.Status = StatusReturned
		return r
	}
	if r.IsOverdue(asOf) {
		r.Status = StatusOverdue
		r.OverdueDays = r.DaysOverdue(asOf)
		r.FineAmount = Fine(r.DueDate, asOf, finePerDay)
		return r
	}
	r.Status = StatusBorrowed
	r.FineAmount = decimal.Zero
	return r
}

// Settings are the lending rules a library runs with.
type Settings struct {
	BorrowPeriodDays   int
	FinePerDay         decimal.Decimal
	MaxBooksPerStudent int
}

func DefaultSettings() Settings {
	return Settings{
		BorrowPeriodDays:   14,
		FinePerDay:         decimal.NewFromInt(1),
		MaxBooksPerStudent: 3,
	}
}

type RecordOrder int

const (
	OrderBorrowDateDesc RecordOrder = iota
	OrderDueDateAsc
)

// RecordFilter selects borrow records. Zero values match everything.
// Status is matched on the derived status as of OverdueCutoff.
type RecordFilter struct {
	Status        Status
	ActiveOnly    bool
	UserID        uuid.UUID
	BookID        uuid.UUID
	BorrowedFrom  time.Time
	BorrowedTo    time.Time
	OverdueCutoff time.Time
	OrderBy       RecordOrder
}

// Matches applies the filter to a single record, for stores that cannot push
// the predicates down to a query.
func (f RecordFilter) Matches(r BorrowRecord) bool {
	if f.UserID != uuid.Nil && r.UserID != f.UserID {
		return false
	}
	if f.BookID != uuid.Nil && r.BookID != f.BookID {
		return false
	}
	if !f.BorrowedFrom.IsZero() && r.BorrowDate.Before(f.BorrowedFrom) {
		return false
	}
	if !f.BorrowedTo.IsZero() && !r.BorrowDate.Before(f.BorrowedTo) {
		return false
	}
	if f.ActiveOnly && !r.Active() {
		return false
	}
	switch f.Status {
	case StatusReturned:
		return !r.Active()
	case StatusOverdue:
		return r.Active() && r.DueDate.Before(f.OverdueCutoff)
	case StatusBorrowed:
		return r.Active() && !r.DueDate.Before(f.OverdueCutoff)
	}
	return true
}
