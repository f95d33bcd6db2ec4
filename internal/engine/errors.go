package engine

import "errors"

// Every precondition failure maps to one stable error so the HTTP layer can
// render an actionable message instead of a generic 500.
var (
	ErrNotFound          = errors.New("order not found")
	ErrInvalidTransition = errors.New("target status not reachable from current status")
	ErrInvalidState      = errors.New("operation not allowed in current status")
	ErrCapacityExceeded  = errors.New("fully booked for this date")
	ErrNotEligible       = errors.New("only completed orders can be archived")
	ErrNotInHistory      = errors.New("order is not archived or deleted")
	ErrAlreadyDeleted    = errors.New("order already deleted")
	ErrReasonRequired    = errors.New("rejection requires a reason")
)
