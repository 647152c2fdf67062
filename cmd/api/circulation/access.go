package circulation

import "github.com/google/uuid"

type Operation string

const (
	OpBorrow           Operation = "borrow"
	OpReturn           Operation = "return"
	OpListRecords      Operation = "list_records"
	OpListOverdue      Operation = "list_overdue"
	OpStatistics       Operation = "statistics"
	OpUserHistory      Operation = "user_history"
	OpViewRecord       Operation = "view_record"
	OpMyBorrows        Operation = "my_borrows"
	OpMyCurrentBorrows Operation = "my_current_borrows"
)

type grant int

const (
	denied grant = iota
	allowed
	ownOnly
)

var permissions = map[Operation]map[Role]grant{
	OpBorrow:           {RoleAdmin: allowed, RoleLibrarian: allowed},
	OpReturn:           {RoleAdmin: allowed, RoleLibrarian: allowed},
	OpListRecords:      {RoleAdmin: allowed, RoleLibrarian: allowed},
	OpListOverdue:      {RoleAdmin: allowed, RoleLibrarian: allowed},
	OpStatistics:       {RoleAdmin: allowed, RoleLibrarian: allowed},
	OpUserHistory:      {RoleAdmin: allowed, RoleLibrarian: allowed, RoleStudent: ownOnly},
	OpViewRecord:       {RoleAdmin: allowed, RoleLibrarian: allowed, RoleStudent: ownOnly},
	OpMyBorrows:        {RoleStudent: allowed},
	OpMyCurrentBorrows: {RoleStudent: allowed},
}

// IsAllowed reports whether role may perform op on some data. Operations
// granted only on the actor's own data also return true; use authorize to
// check the owner.
func IsAllowed(role Role, op Operation) bool {
	return permissions[op][role] != denied
}

// authorize checks the actor against op. owner is the user whose data is
// touched, or uuid.Nil when the operation is not scoped to one user.
func authorize(actor Actor, op Operation, owner uuid.UUID) error {
	switch permissions[op][actor.Role] {
	case allowed:
		return nil
	case ownOnly:
		if owner != uuid.Nil && owner == actor.ID {
			return nil
		}
		return ErrResponseNotOwnData
	default:
		return ErrResponseForbidden
	}
}
