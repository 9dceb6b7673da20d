package route

import (
	"errors"
	"fmt"
)

// ErrMalformedDocument is matched by every DataError.
var ErrMalformedDocument = errors.New("malformed route document")

// DataError reports a route document that cannot be turned into a Route.
// Construction fails as a whole; no partially built route is returned.
type DataError struct {
	Maneuver int    // index of the offending maneuver, -1 when not maneuver specific
	Field    string // offending key, if any
	Reason   string
	Err      error
}

func (e *DataError) Error() string {
	msg := "route data error"
	if e.Maneuver >= 0 {
		msg += fmt.Sprintf(": maneuver %d", e.Maneuver)
	}
	if e.Field != "" {
		msg += fmt.Sprintf(": %s", e.Field)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DataError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrMalformedDocument, e.Err}
	}
	return []error{ErrMalformedDocument}
}
