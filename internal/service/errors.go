package service

import "net/http"

// Error is a service failure that maps onto one HTTP status.
type Error struct {
	code int
	msg  string
}

func (e *Error) Error() string   { return e.msg }
func (e *Error) StatusCode() int { return e.code }

var (
	ErrForbidden     = &Error{http.StatusForbidden, "you don't have permission to do this on this board"}
	ErrNotFound      = &Error{http.StatusNotFound, "not found"}
	ErrNoChanges     = &Error{http.StatusBadRequest, "no fields to update"}
	ErrInvalidStatus = &Error{http.StatusBadRequest, "status does not name a column of the board"}
	ErrInvalidParent = &Error{http.StatusBadRequest, "parent issue must be a top-level issue of the same board"}
)
