package separation

import (
	"errors"
	"fmt"

	"demixer/model"
)

// ErrUnauthenticated is returned when no identity is bound to the session.
var ErrUnauthenticated = errors.New("not authenticated")

// QuotaExhaustedError carries the deficit so callers can route the user to
// a remediation action (plan upgrade) instead of a dead end.
type QuotaExhaustedError struct {
	Remaining int
	Needed    int
}

func (e *QuotaExhaustedError) Error() string {
	return fmt.Sprintf("quota exhausted: %d credits remaining, %d needed", e.Remaining, e.Needed)
}

// InvalidStateError reports an operation invoked from a state that does not
// permit it.
type InvalidStateError struct {
	Op    string
	State model.JobState
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("operation %s not valid in state %s", e.Op, e.State)
}

// BackendError wraps a separation backend failure with its reason.
type BackendError struct {
	Reason string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("separation backend failed: %s", e.Reason)
}
