package reasoning

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrNoCredentials means the gateway has nothing to try. It is a
// configuration problem, not an upstream failure.
var ErrNoCredentials = errors.New("no reasoning credentials configured")

// FailureKind separates transport problems from broken model output
type FailureKind string

const (
	// KindTransport covers timeouts, network errors and non-2xx answers
	KindTransport FailureKind = "transport"
	// KindContract covers 2xx answers whose content is not a usable report
	KindContract FailureKind = "contract"
)

// AttemptError is the failure of one credential
type AttemptError struct {
	Attempt  int
	Provider string
	Kind     FailureKind
	Err      error
}

func (e *AttemptError) Error() string {
	return e.Err.Error()
}

func (e *AttemptError) Unwrap() error {
	return e.Err
}

// ExhaustedError is returned when every credential failed. Only the last
// attempt is carried; earlier ones are logged.
type ExhaustedError struct {
	Attempts int
	Last     *AttemptError
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("reasoning failed after %d attempt(s): %s", e.Attempts, e.Last.Error())
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Kind returns the failure kind of the last attempt
func (e *ExhaustedError) Kind() FailureKind {
	return e.Last.Kind
}
