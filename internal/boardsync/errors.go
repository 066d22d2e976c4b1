package boardsync

import (
	"context"
	"errors"
	"net/http"

	"boardsync/internal/apiclient"
	"boardsync/internal/conflict"
	"boardsync/internal/ordering"
	"boardsync/internal/realtime"
)

// Kind is how a failed board mutation is surfaced to the user.
type Kind int

const (
	KindUnknown Kind = iota
	// KindInvalidIndex is dropped silently.
	KindInvalidIndex
	KindNetworkFailure
	KindVersionConflict
	KindPermissionDenied
	// KindRemoteChange announces a change by another user. Classify never
	// returns it.
	KindRemoteChange
)

func (k Kind) String() string {
	switch k {
	case KindInvalidIndex:
		return "invalid_index"
	case KindNetworkFailure:
		return "network_failure"
	case KindVersionConflict:
		return "version_conflict"
	case KindPermissionDenied:
		return "permission_denied"
	case KindRemoteChange:
		return "remote_change"
	default:
		return "unknown"
	}
}

// Classify maps err onto a Kind. Conflicts are checked first so a 409 is
// never reported as a generic failure.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if conflict.IsVersionConflict(err) {
		return KindVersionConflict
	}
	if errors.Is(err, ordering.ErrInvalidIndex) {
		return KindInvalidIndex
	}
	if errors.Is(err, apiclient.ErrPermissionDenied) {
		return KindPermissionDenied
	}

	var remote *realtime.RemoteError
	if errors.As(err, &remote) {
		switch remote.Code {
		case http.StatusConflict:
			return KindVersionConflict
		case http.StatusUnauthorized, http.StatusForbidden:
			return KindPermissionDenied
		}
		return KindUnknown
	}

	var netErr *apiclient.NetworkError
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, realtime.ErrNotConnected),
		errors.Is(err, realtime.ErrDisconnected),
		errors.Is(err, realtime.ErrClosed),
		errors.Is(err, context.DeadlineExceeded):
		return KindNetworkFailure
	}
	return KindUnknown
}
