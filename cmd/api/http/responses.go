package http

import (
	"time"

	"github.com/circulation-service/cmd/api/circulation"
	"github.com/google/uuid"
)

type BorrowRecordResponse struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	BookID      uuid.UUID  `json:"book_id"`
	LibrarianID *uuid.UUID `json:"librarian_id"`
	BorrowDate  time.Time  `json:"borrow_date"`
	DueDate     time.Time  `json:"due_date"`
	ReturnDate  *time.Time `json:"return_date"`
	Status      string     `json:"status"`
	FineAmount  string     `json:"fine_amount"`
	Notes       string     `json:"notes"`
	IsOverdue   bool       `json:"is_overdue"`
	DaysOverdue int        `json:"days_overdue"`

	BookTitle         string `json:"book_title"`
	UserFullName      string `json:"user_full_name"`
	LibrarianFullName string `json:"librarian_full_name"`
}

/*Copy the fields of a presented borrow record to an http layer struct with json tags*/
func (h *BorrowHandler) recordToResponse(r circulation.BorrowRecord) BorrowRecordResponse {
	resp := BorrowRecordResponse{
		ID:          r.ID,
		UserID:      r.UserID,
		BookID:      r.BookID,
		BorrowDate:  r.BorrowDate,
		DueDate:     r.DueDate,
		ReturnDate:  r.ReturnDate,
		Status:      string(r.Status),
		FineAmount:  r.FineAmount.StringFixed(2),
		Notes:       r.Notes,
		IsOverdue:   r.Status == circulation.StatusOverdue,
		DaysOverdue: r.OverdueDays,

		BookTitle:         r.Details.BookTitle,
		UserFullName:      r.Details.UserFullName,
		LibrarianFullName: r.Details.LibrarianFullName,
	}
	if r.LibrarianID.Valid {
		librarianID := r.LibrarianID.UUID
		resp.LibrarianID = &librarianID
	}
	return resp
}

func (h *BorrowHandler) recordsToResponse(records []circulation.BorrowRecord) []BorrowRecordResponse {
	results := []BorrowRecordResponse{}
	for _, r := range records {
		results = append(results, h.recordToResponse(r))
	}
	return results
}

type StudentActivityResponse struct {
	UserID      uuid.UUID `json:"user_id"`
	FullName    string    `json:"full_name"`
	BorrowCount int       `json:"borrow_count"`
}

type StatisticsResponse struct {
	TotalBorrows   int                       `json:"total_borrows"`
	ActiveBorrows  int                       `json:"active_borrows"`
	OverdueBorrows int                       `json:"overdue_borrows"`
	RecentBorrows  int                       `json:"recent_borrows"`
	ActiveStudents []StudentActivityResponse `json:"active_students"`
}

func statisticsToResponse(s circulation.Statistics) StatisticsResponse {
	students := []StudentActivityResponse{}
	for _, a := range s.ActiveStudents {
		students = append(students, StudentActivityResponse{
			UserID:      a.UserID,
			FullName:    a.FullName,
			BorrowCount: a.BorrowCount,
		})
	}
	return StatisticsResponse{
		TotalBorrows:   s.TotalBorrows,
		ActiveBorrows:  s.ActiveBorrows,
		OverdueBorrows: s.OverdueBorrows,
		RecentBorrows:  s.RecentBorrows,
		ActiveStudents: students,
	}
}
