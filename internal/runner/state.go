// File: internal/runner/state.go
package runner

// State is the position of the run in its lifecycle. The loop is a small
// state machine so the transitions stay auditable in logs.
type State string

const (
	// StateInit: the run has been configured but no attempt has started.
	StateInit State = "init"
	// StateAttempting: a registration attempt is in flight.
	StateAttempting State = "attempting"
	// StateRetrying: the decision step asked for another attempt and the
	// loop is waiting out the retry delay.
	StateRetrying State = "retrying"
	// StateSuccess: an attempt passed the dashboard verification.
	StateSuccess State = "success"
	// StateExhausted: every allowed attempt ran and failed.
	StateExhausted State = "exhausted"
	// StateFailed: the run stopped on an unrecoverable condition before the
	// budget was spent, such as the overall deadline, a cancellation, or a
	// decision step that declined to retry.
	StateFailed State = "failed"
)

// Terminal reports whether the run is over in this state.
func (s State) Terminal() bool {
	switch s {
	case StateSuccess, StateExhausted, StateFailed:
		return true
	}
	return false
}
