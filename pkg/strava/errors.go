package strava

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed classification of Strava API failures. The webhook
// retry controller switches on the kind, never on error text.
type ErrorKind int

const (
	// KindGeneric covers everything without a more specific classification.
	KindGeneric ErrorKind = iota

	// KindNotYetAvailable is a 404 on a freshly created activity: the create
	// webhook routinely fires before the activity is readable, so the caller
	// may retry.
	KindNotYetAvailable

	// KindAuthExpired is a 401; the stored credentials need a refresh.
	KindAuthExpired

	// KindForbidden is a 403; the token lacks the required scope.
	KindForbidden

	// KindRateLimited is a 429 that survived the client's own backoff.
	KindRateLimited
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotYetAvailable:
		return "not_yet_available"
	case KindAuthExpired:
		return "auth_expired"
	case KindForbidden:
		return "forbidden"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "generic"
	}
}

// APIError is a classified failure from the Strava API.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("strava api error (%s, status %d): %s", e.Kind, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("strava api error (%s, status %d)", e.Kind, e.StatusCode)
}

func kindForStatus(status int) ErrorKind {
	switch status {
	case 401:
		return KindAuthExpired
	case 403:
		return KindForbidden
	case 404:
		return KindNotYetAvailable
	case 429:
		return KindRateLimited
	default:
		return KindGeneric
	}
}

// IsNotYetAvailable reports whether err is the read-after-write 404 signal.
func IsNotYetAvailable(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindNotYetAvailable
}

// IsAuthExpired reports whether err is a credential failure.
func IsAuthExpired(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == KindAuthExpired
}
