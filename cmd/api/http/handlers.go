package http

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/circulation-service/cmd/api/circulation"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

//go:generate mockgen -destination=mocks/mock_http.go -package=mocks github.com/circulation-service/cmd/api/http ServiceAPI

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RequestTimeout bounds every request handled by a BorrowHandler.
var RequestTimeout = 5 * time.Second

const actorHeader = "X-User-ID"

type ServiceAPI interface {
	ResolveActor(ctx context.Context, id uuid.UUID) (circulation.Actor, error)
	Borrow(ctx context.Context, actor circulation.Actor, req circulation.BorrowRequest) (circulation.BorrowRecord, error)
	Return(ctx context.Context, actor circulation.Actor, req circulation.ReturnRequest) (circulation.BorrowRecord, error)
	MyCurrentBorrows(ctx context.Context, actor circulation.Actor) ([]circulation.BorrowRecord, error)
	MyBorrows(ctx context.Context, actor circulation.Actor) ([]circulation.BorrowRecord, error)
	ListRecords(ctx context.Context, actor circulation.Actor, filter circulation.RecordFilter) ([]circulation.BorrowRecord, error)
	ListOverdue(ctx context.Context, actor circulation.Actor) ([]circulation.BorrowRecord, error)
	UserHistory(ctx context.Context, actor circulation.Actor, userID uuid.UUID) ([]circulation.BorrowRecord, error)
	GetRecord(ctx context.Context, actor circulation.Actor, id uuid.UUID) (circulation.BorrowRecord, error)
	Statistics(ctx context.Context, actor circulation.Actor) (circulation.Statistics, error)
}

type BorrowHandler struct {
	service ServiceAPI
	logger  *zap.Logger
}

func NewBorrowHandler(service ServiceAPI, logger *zap.Logger) *BorrowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BorrowHandler{service: service, logger: logger}
}

type actorHandler func(w http.ResponseWriter, r *http.Request, actor circulation.Actor)

/* Checks the method, bounds the request in time and resolves the acting user before calling next. */
func (h *BorrowHandler) route(method string, next actorHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), RequestTimeout)
		defer cancel()
		r = r.WithContext(ctx)

		actorID, err := uuid.Parse(r.Header.Get(actorHeader))
		if err != nil {
			h.handleError(w, r, circulation.ErrResponseActorMissing)
			return
		}
		actor, err := h.service.ResolveActor(ctx, actorID)
		if err != nil {
			h.handleError(w, r, err)
			return
		}

		next(w, r, actor)
	}
}

/* Answers 403 before anything is parsed when the actor's role can never perform op. */
func (h *BorrowHandler) permitted(w http.ResponseWriter, r *http.Request, actor circulation.Actor, op circulation.Operation) bool {
	if circulation.IsAllowed(actor.Role, op) {
		return true
	}
	h.handleError(w, r, circulation.ErrResponseForbidden)
	return false
}

type BorrowEntry struct {
	UserID string `json:"user_id"`
	BookID string `json:"book_id"`
	Notes  string `json:"notes"`
}

/* Validates the entry, then lends the book to the student. */
func (h *BorrowHandler) borrow(w http.ResponseWriter, r *http.Request, actor circulation.Actor) {
	if !h.permitted(w, r, actor, circulation.OpBorrow) {
		return
	}

	var entry BorrowEntry
	err := json.NewDecoder(r.Body).Decode(&entry)
	if err != nil {
		h.logger.Info("invalid borrow entry", zap.Error(err))
		errR := circulation.ErrResponse{
			Code:    circulation.ErrResponseEntryInvalidJSON.Code,
			Message: circulation.ErrResponseEntryInvalidJSON.Message + err.Error(),
		}
		responseJSON(w, http.StatusBadRequest, errR)
		return
	}

	req, err := borrowEntryToReq(entry)
	if err != nil {
		responseJSON(w, http.StatusBadRequest, err)
		return
	}

	record, err := h.service.Borrow(r.Context(), actor, req)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	responseJSON(w, http.StatusCreated, h.recordToResponse(record))
}

/* Verifies that both ids are filled with valid uuids. */
func borrowEntryToReq(entry BorrowEntry) (circulation.BorrowRequest, error) {
	userID, errU := uuid.Parse(entry.UserID)
	bookID, errB := uuid.Parse(entry.BookID)
	if errU != nil || errB != nil || userID == uuid.Nil || bookID == uuid.Nil {
		return circulation.BorrowRequest{}, circulation.ErrResponseBorrowEntryBlankFields
	}
	return circulation.BorrowRequest{UserID: userID, BookID: bookID, Notes: entry.Notes}, nil
}

type ReturnEntry struct {
	BorrowRecordID string `json:"borrow_record_id"`
	Notes          string `json:"notes"`
}

/* Validates the entry, then closes the borrow record. */
func (h *BorrowHandler) returnBook(w http.ResponseWriter, r *http.Request, actor circulation.Actor) {
	if !h.permitted(w, r, actor, circulation.OpReturn) {
		return
	}

	var entry ReturnEntry
	err := json.NewDecoder(r.Body).Decode(&entry)
	if err != nil {
		h.logger.Info("invalid return entry", zap.Error(err))
		errR := circulation.ErrResponse{
			Code:    circulation.ErrResponseEntryInvalidJSON.Code,
			Message: circulation.ErrResponseEntryInvalidJSON.Message + err.Error(),
		}
		responseJSON(w, http.StatusBadRequest, errR)
		return
	}

	recordID, err := uuid.Parse(entry.BorrowRecordID)
	if err != nil || recordID == uuid.Nil {
		responseJSON(w, http.StatusBadRequest, circulation.ErrResponseReturnEntryBlankFields)
		return
	}

	record, err := h.service.Return(r.Context(), actor, circulation.ReturnRequest{RecordID: recordID, Notes: entry.Notes})
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	responseJSON(w, http.StatusOK, h.recordToResponse(record))
}

func (h *BorrowHandler) myCurrentBorrows(w http.ResponseWriter, r *http.Request, actor circulation.Actor) {
	records, err := h.service.MyCurrentBorrows(r.Context(), actor)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	responseJSON(w, http.StatusOK, h.recordsToResponse(records))
}

func (h *BorrowHandler) myBorrows(w http.ResponseWriter, r *http.Request, actor circulation.Actor) {
	records, err := h.service.MyBorrows(r.Context(), actor)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	responseJSON(w, http.StatusOK, h.recordsToResponse(records))
}

/* Returns the borrow records matching the query parameters. */
func (h *BorrowHandler) listRecords(w http.ResponseWriter, r *http.Request, actor circulation.Actor) {
	if !h.permitted(w, r, actor, circulation.OpListRecords) {
		return
	}

	filter, err := extractRecordFilter(r.URL.Query())
	if err != nil {
		responseJSON(w, http.StatusBadRequest, err)
		return
	}

	records, err := h.service.ListRecords(r.Context(), actor, filter)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	responseJSON(w, http.StatusOK, h.recordsToResponse(records))
}

const dateLayout = "2006-01-02"

/* Validates and prepares the filtering parameters of the query. Dates are whole UTC days, both ends included. */
func extractRecordFilter(query url.Values) (circulation.RecordFilter, error) {
	var filter circulation.RecordFilter

	if statusStr := query.Get("status"); statusStr != "" {
		status, ok := circulation.ParseStatus(statusStr)
		if !ok {
			return filter, circulation.ErrResponseQueryStatusInvalid
		}
		filter.Status = status
	}

	for param, dest := range map[string]*uuid.UUID{"user_id": &filter.UserID, "book_id": &filter.BookID} {
		idStr := query.Get(param)
		if idStr == "" {
			continue
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return filter, circulation.ErrResponseQueryIdInvalid
		}
		*dest = id
	}

	if fromStr := query.Get("from"); fromStr != "" {
		from, err := time.ParseInLocation(dateLayout, fromStr, time.UTC)
		if err != nil {
			return filter, circulation.ErrResponseQueryDateInvalid
		}
		filter.BorrowedFrom = from
	}
	if toStr := query.Get("to"); toStr != "" {
		to, err := time.ParseInLocation(dateLayout, toStr, time.UTC)
		if err != nil {
			return filter, circulation.ErrResponseQueryDateInvalid
		}
		filter.BorrowedTo = to.AddDate(0, 0, 1)
	}
	if !filter.BorrowedFrom.IsZero() && !filter.BorrowedTo.IsZero() && !filter.BorrowedFrom.Before(filter.BorrowedTo) {
		return filter, circulation.ErrResponseQueryDateInvalid
	}

	return filter, nil
}

func (h *BorrowHandler) listOverdue(w http.ResponseWriter, r *http.Request, actor circulation.Actor) {
	records, err := h.service.ListOverdue(r.Context(), actor)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	responseJSON(w, http.StatusOK, h.recordsToResponse(records))
}

/* Returns the borrow record with that specific ID. */
func (h *BorrowHandler) getRecordById(w http.ResponseWriter, r *http.Request, actor circulation.Actor) {
	justId, _ := strings.CutPrefix(r.URL.Path, "/borrowing/records/")
	id, err := isolateId(w, justId)
	if err != nil {
		return
	}

	record, err := h.service.GetRecord(r.Context(), actor, id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	responseJSON(w, http.StatusOK, h.recordToResponse(record))
}

/* Returns the full borrow history of the user in "/borrowing/user/{id}/history". */
func (h *BorrowHandler) userHistory(w http.ResponseWriter, r *http.Request, actor circulation.Actor) {
	rest, _ := strings.CutPrefix(r.URL.Path, "/borrowing/user/")
	justId, found := strings.CutSuffix(rest, "/history")
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	id, err := isolateId(w, justId)
	if err != nil {
		return
	}

	records, err := h.service.UserHistory(r.Context(), actor, id)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	responseJSON(w, http.StatusOK, h.recordsToResponse(records))
}

func (h *BorrowHandler) statistics(w http.ResponseWriter, r *http.Request, actor circulation.Actor) {
	stats, err := h.service.Statistics(r.Context(), actor)
	if err != nil {
		h.handleError(w, r, err)
		return
	}
	responseJSON(w, http.StatusOK, statisticsToResponse(stats))
}

/* Parses an ID taken from the URL. */
func isolateId(w http.ResponseWriter, justId string) (id uuid.UUID, err error) {
	id, err = uuid.Parse(justId)
	if err != nil {
		responseJSON(w, http.StatusBadRequest, circulation.ErrResponseIdInvalidFormat)
		return id, err
	}
	return id, nil
}

/* Translates an error coming from the service into a status code and an error body. */
func (h *BorrowHandler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	if ctxErr := contextError(err); ctxErr != nil {
		h.logger.Warn("request timed out", zap.String("path", r.URL.Path), zap.Error(err))
		errR := circulation.ErrResponse{
			Code:    circulation.ErrResponseRequestTimeout.Code,
			Message: circulation.ErrResponseRequestTimeout.Message + ctxErr.Error(),
		}
		responseJSON(w, http.StatusGatewayTimeout, errR)
		return
	}

	var errR circulation.ErrResponse
	if !errors.As(err, &errR) || errR.Kind == circulation.KindInternal {
		h.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	switch errR.Kind {
	case circulation.KindValidation:
		responseJSON(w, http.StatusBadRequest, errR)
	case circulation.KindUnauthenticated:
		responseJSON(w, http.StatusUnauthorized, errR)
	case circulation.KindForbidden:
		responseJSON(w, http.StatusForbidden, errR)
	case circulation.KindNotFound:
		responseJSON(w, http.StatusNotFound, errR)
	case circulation.KindConflict:
		responseJSON(w, http.StatusConflict, errR)
	case circulation.KindBusy:
		w.Header().Set("Retry-After", "1")
		responseJSON(w, http.StatusServiceUnavailable, errR)
	}
}

func contextError(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return context.DeadlineExceeded
	}
	return nil
}

/*Writes a JSON response into a http.ResponseWriter. */
func responseJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	err := json.NewEncoder(w).Encode(body)
	if err != nil {
		zap.L().Error("encoding response", zap.Error(err))
		return
	}
}
