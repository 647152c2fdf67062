package circulation

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
)

const (
	recentBorrowsWindow = 30 * 24 * time.Hour
	topStudentsLimit    = 10
)

func (s *Service) MyCurrentBorrows(ctx context.Context, actor Actor) ([]BorrowRecord, error) {
	if err := authorize(actor, OpMyCurrentBorrows, actor.ID); err != nil {
		return nil, err
	}
	return s.listRecords(ctx, "listing current borrows", RecordFilter{
		UserID:     actor.ID,
		ActiveOnly: true,
		OrderBy:    OrderBorrowDateDesc,
	})
}

func (s *Service) MyBorrows(ctx context.Context, actor Actor) ([]BorrowRecord, error) {
	if err := authorize(actor, OpMyBorrows, actor.ID); err != nil {
		return nil, err
	}
	return s.listRecords(ctx, "listing own borrows", RecordFilter{
		UserID:  actor.ID,
		OrderBy: OrderBorrowDateDesc,
	})
}

func (s *Service) ListRecords(ctx context.Context, actor Actor, filter RecordFilter) ([]BorrowRecord, error) {
	if err := authorize(actor, OpListRecords, uuid.Nil); err != nil {
		return nil, err
	}
	filter.OrderBy = OrderBorrowDateDesc
	return s.listRecords(ctx, "listing records", filter)
}

func (s *Service) ListOverdue(ctx context.Context, actor Actor) ([]BorrowRecord, error) {
	if err := authorize(actor, OpListOverdue, uuid.Nil); err != nil {
		return nil, err
	}
	return s.listRecords(ctx, "listing overdue records", RecordFilter{
		Status:  StatusOverdue,
		OrderBy: OrderDueDateAsc,
	})
}

func (s *Service) UserHistory(ctx context.Context, actor Actor, userID uuid.UUID) ([]BorrowRecord, error) {
	if err := authorize(actor, OpUserHistory, userID); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetUserByID(ctx, userID); err != nil {
		return nil, repositoryError("fetching user for history", err)
	}
	return s.listRecords(ctx, "listing user history", RecordFilter{
		UserID:  userID,
		OrderBy: OrderBorrowDateDesc,
	})
}

func (s *Service) GetRecord(ctx context.Context, actor Actor, id uuid.UUID) (BorrowRecord, error) {
	if !IsAllowed(actor.Role, OpViewRecord) {
		return BorrowRecord{}, ErrResponseForbidden
	}
	record, err := s.repo.GetRecordByID(ctx, id)
	if err != nil {
		return BorrowRecord{}, repositoryError("fetching record", err)
	}
	if err := authorize(actor, OpViewRecord, record.UserID); err != nil {
		return BorrowRecord{}, err
	}
	described := []BorrowRecord{record}
	if err := s.describe(ctx, described); err != nil {
		return BorrowRecord{}, repositoryError("describing record", err)
	}
	return described[0].Present(s.now(), s.settings.FinePerDay), nil
}

type StudentActivity struct {
	UserID      uuid.UUID
	FullName    string
	BorrowCount int
}

type Statistics struct {
	TotalBorrows   int
	ActiveBorrows  int
	OverdueBorrows int
	RecentBorrows  int
	ActiveStudents []StudentActivity
}

func (s *Service) Statistics(ctx context.Context, actor Actor) (Statistics, error) {
	if err := authorize(actor, OpStatistics, uuid.Nil); err != nil {
		return Statistics{}, err
	}
	records, err := s.repo.ListRecords(ctx, RecordFilter{})
	if err != nil {
		return Statistics{}, repositoryError("computing statistics", err)
	}

	now := s.now()
	recentSince := now.Add(-recentBorrowsWindow)
	counts := make(map[uuid.UUID]int)
	var stats Statistics
	for _, r := range records {
		stats.TotalBorrows++
		if r.Active() {
			stats.ActiveBorrows++
		}
		if r.IsOverdue(now) {
			stats.OverdueBorrows++
		}
		if !r.BorrowDate.Before(recentSince) {
			stats.RecentBorrows++
		}
		counts[r.UserID]++
	}

	students := make([]StudentActivity, 0, len(counts))
	for id, n := range counts {
		students = append(students, StudentActivity{UserID: id, BorrowCount: n})
	}
	sort.Slice(students, func(i, j int) bool {
		if students[i].BorrowCount != students[j].BorrowCount {
			return students[i].BorrowCount > students[j].BorrowCount
		}
		return students[i].UserID.String() < students[j].UserID.String()
	})
	if len(students) > topStudentsLimit {
		students = students[:topStudentsLimit]
	}
	for i := range students {
		user, err := s.repo.GetUserByID(ctx, students[i].UserID)
		if err != nil {
			return Statistics{}, repositoryError("computing statistics, resolving student", err)
		}
		students[i].FullName = user.FullName
	}
	stats.ActiveStudents = students

	return stats, nil
}

func (s *Service) listRecords(ctx context.Context, op string, filter RecordFilter) ([]BorrowRecord, error) {
	now := s.now()
	filter.OverdueCutoff = OverdueCutoff(now)
	records, err := s.repo.ListRecords(ctx, filter)
	if err != nil {
		return nil, repositoryError(op, err)
	}
	if err := s.describe(ctx, records); err != nil {
		return nil, repositoryError(op, err)
	}
	presented := make([]BorrowRecord, 0, len(records))
	for _, r := range records {
		presented = append(presented, r.Present(now, s.settings.FinePerDay))
	}
	return presented, nil
}

// describe fills the blank details of records in place, looking each user
// and book up once. Ids that no longer resolve leave their name blank.
func (s *Service) describe(ctx context.Context, records []BorrowRecord) error {
	users := make(map[uuid.UUID]string)
	books := make(map[uuid.UUID]string)

	userName := func(id uuid.UUID) (string, error) {
		if name, ok := users[id]; ok {
			return name, nil
		}
		u, err := s.repo.GetUserByID(ctx, id)
		if err != nil && !errors.Is(err, ErrResponseUserNotFound) {
			return "", err
		}
		users[id] = u.FullName
		return u.FullName, nil
	}
	bookTitle := func(id uuid.UUID) (string, error) {
		if title, ok := books[id]; ok {
			return title, nil
		}
		b, err := s.repo.GetBookByID(ctx, id)
		if err != nil && !errors.Is(err, ErrResponseBookNotFound) {
			return "", err
		}
		books[id] = b.Title
		return b.Title, nil
	}

	var err error
	for i := range records {
		d := &records[i].Details
		if d.BookTitle == "" {
			if d.BookTitle, err = bookTitle(records[i].BookID); err != nil {
				return err
			}
		}
		if d.UserFullName == "" {
			if d.UserFullName, err = userName(records[i].UserID); err != nil {
				return err
			}
		}
		if d.LibrarianFullName == "" && records[i].LibrarianID.Valid {
			if d.LibrarianFullName, err = userName(records[i].LibrarianID.UUID); err != nil {
				return err
			}
		}
	}
	return nil
}
