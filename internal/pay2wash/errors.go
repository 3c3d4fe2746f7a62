package pay2wash

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrBadSession means the status endpoint redirected instead of answering:
// the session expired and the caller should log in again.
var ErrBadSession = errors.New("session is no longer authenticated")

// ErrAuthenticationFailed means the login form was posted but the returned
// page was not an authenticated one.
var ErrAuthenticationFailed = errors.New("failed to achieve an authenticated session")

// TransportError covers network failures and unexpected HTTP status codes.
type TransportError struct {
	Op         string
	URL        string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s %s: server responded with status %d", e.Op, e.URL, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

const maxExcerpt = 2048

// DocumentError attaches an excerpt of the page or JSON body that could not
// be used.
type DocumentError struct {
	Op       string
	Document string
	Err      error
}

func newDocumentError(op string, body []byte, err error) *DocumentError {
	excerpt := string(body)
	if len(excerpt) > maxExcerpt {
		cut := maxExcerpt
		for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
			cut--
		}
		excerpt = excerpt[:cut] + "...(truncated)"
	}
	return &DocumentError{Op: op, Document: excerpt, Err: err}
}

func (e *DocumentError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *DocumentError) Unwrap() error { return e.Err }

// UnknownMachineIDError means the status feed named a machine the session's
// page did not list.
type UnknownMachineIDError struct {
	ID       string
	Location string
}

func (e *UnknownMachineIDError) Error() string {
	return fmt.Sprintf("machine id %s is not in the machine mappings of location %s", e.ID, e.Location)
}
