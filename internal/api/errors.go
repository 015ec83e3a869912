package api

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotModified is returned when the backend answered 304 but no prior
// success was cached for that exact key, so the response cannot be resolved
// locally. First-ever request for a key can hit this; callers treat it as
// "no data available".
var ErrNotModified = errors.New("not modified, no cached response")

// APIError is a backend-authored failure: a non-2xx response, or a 2xx
// envelope with status=false. When the body carried a message field, Error()
// surfaces that text instead of a generic transport string.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("backend error: HTTP %d", e.StatusCode)
}

// IsAuthError reports whether a failed response signals an invalidated
// session: HTTP 401, or HTTP 400 whose message contains the configured
// credential-missing marker. The backend reports missing credentials as a
// 400, not a 401, hence the marker check.
func IsAuthError(statusCode int, message, marker string) bool {
	if statusCode == 401 {
		return true
	}
	return statusCode == 400 && marker != "" && strings.Contains(message, marker)
}
