// Package conflict implements version-stamped optimistic locking errors and
// the human-driven recovery flow for a rejected write.
package conflict

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Code is the error code carried by every conflict response body.
const Code = "version_conflict"

// StatusCode is the HTTP status used for conflict responses.
const StatusCode = http.StatusConflict

// Error is a rejected versioned write. It doubles as the client-side
// conflict record.
type Error struct {
	ResourceName   string
	YourVersion    int64
	CurrentVersion int64
	LastUpdated    time.Time
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s version conflict: have %d, current is %d", e.ResourceName, e.YourVersion, e.CurrentVersion)
}

func (e *Error) StatusCode() int { return StatusCode }

// Response is the JSON body of a 409 answer.
type Response struct {
	Error          string    `json:"error"`
	Message        string    `json:"message"`
	Resource       string    `json:"resource"`
	CurrentVersion int64     `json:"currentVersion"`
	YourVersion    int64     `json:"yourVersion"`
	LastUpdated    time.Time `json:"lastUpdated"`
}

// NewResponse builds the wire shape of err.
func NewResponse(err *Error) Response {
	return Response{
		Error:          Code,
		Message:        err.Error(),
		Resource:       err.ResourceName,
		CurrentVersion: err.CurrentVersion,
		YourVersion:    err.YourVersion,
		LastUpdated:    err.LastUpdated,
	}
}

// FromResponse turns a decoded 409 body back into an error. It returns nil
// when the body does not have the conflict shape.
func FromResponse(resp Response) *Error {
	if resp.Error != Code {
		return nil
	}
	return &Error{
		ResourceName:   resp.Resource,
		YourVersion:    resp.YourVersion,
		CurrentVersion: resp.CurrentVersion,
		LastUpdated:    resp.LastUpdated,
	}
}

// As extracts the conflict record from err.
func As(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// IsVersionConflict reports whether err is a structured version conflict.
// Mutation call sites check it before any generic error handling.
func IsVersionConflict(err error) bool {
	_, ok := As(err)
	return ok
}
