package circulation

import (
	"context"
	"errors"
	"fmt"
)

// ErrKind groups error codes by how a caller should react to them.
type ErrKind int

const (
	KindInternal ErrKind = iota
	KindValidation
	KindUnauthenticated
	KindForbidden
	KindNotFound
	KindConflict
	KindBusy
)

type ErrResponse struct {
	Code    int     `json:"error_code"`
	Message string  `json:"error_message"`
	Kind    ErrKind `json:"-"`
}

func (e ErrResponse) Error() string {
	return e.Message
}

var ErrResponseEntryInvalidJSON = ErrResponse{100, "invalid json request.", KindValidation}
var ErrResponseBorrowEntryBlankFields = ErrResponse{101, "fields user_id and book_id must be filled with valid ids.", KindValidation}
var ErrResponseReturnEntryBlankFields = ErrResponse{102, "field borrow_record_id must be filled with a valid id.", KindValidation}
var ErrResponseIdInvalidFormat = ErrResponse{103, "the id in the endpoint is not a valid uuid.", KindValidation}
var ErrResponseQueryStatusInvalid = ErrResponse{104, "query parameter 'status' must be: borrowed, overdue or returned.", KindValidation}
var ErrResponseQueryIdInvalid = ErrResponse{105, "query parameters 'user_id' and 'book_id' must be valid uuids.", KindValidation}
var ErrResponseQueryDateInvalid = ErrResponse{106, "query parameters 'from' and 'to' must be dates formatted as YYYY-MM-DD.", KindValidation}
var ErrResponseActorMissing = ErrResponse{107, "header X-User-ID must identify an existing user.", KindUnauthenticated}
var ErrResponseRequestTimeout = ErrResponse{109, "error from context:", KindInternal}
var ErrResponseForbidden = ErrResponse{110, "the actor's role does not permit this operation.", KindForbidden}
var ErrResponseActorInactive = ErrResponse{111, "the actor's account is inactive.", KindForbidden}
var ErrResponseNotOwnData = ErrResponse{112, "students can only access their own borrow records.", KindForbidden}
var ErrResponseUserNotStudent = ErrResponse{113, "only active students can borrow books.", KindForbidden}
var ErrResponseUserNotFound = ErrResponse{114, "user not found", KindNotFound}
var ErrResponseBookNotFound = ErrResponse{115, "book not found", KindNotFound}
var ErrResponseNoActiveRecord = ErrResponse{116, "borrow record not found", KindNotFound}
var ErrResponseDuplicateActiveBorrow = ErrResponse{117, "user already has this book borrowed", KindConflict}
var ErrResponseLimitExceeded = ErrResponse{118, "user has reached the maximum number of borrowed books", KindConflict}
var ErrResponseUnavailable = ErrResponse{119, "no copies of this book are available", KindConflict}
var ErrResponseAlreadyReturned = ErrResponse{120, "borrow record was already returned", KindConflict}
var ErrResponseBusy = ErrResponse{121, "the book is busy with another operation, try again", KindBusy}
var ErrResponseFromRepository = ErrResponse{122, "error from repository: ", KindInternal}

// KindOf reports the kind of the first ErrResponse found in err's chain.
func KindOf(err error) ErrKind {
	var errR ErrResponse
	if errors.As(err, &errR) {
		return errR.Kind
	}
	return KindInternal
}

// repositoryError keeps domain errors as they are and folds anything else into
// ErrResponseFromRepository.
func repositoryError(op string, err error) error {
	var errR ErrResponse
	if errors.As(err, &errR) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("timeout on call to %s: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, ErrResponse{
		Code:    ErrResponseFromRepository.Code,
		Message: ErrResponseFromRepository.Message + err.Error(),
		Kind:    ErrResponseFromRepository.Kind,
	})
}
