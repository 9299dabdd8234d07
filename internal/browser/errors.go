// File: internal/browser/errors.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind partitions attempt failures for the retry decision.
type Kind string

const (
	// KindNavigation: a page or element was not reached in time.
	KindNavigation Kind = "navigation"
	// KindAssertion: the page was reached but an expected element or state
	// was absent.
	KindAssertion Kind = "assertion"
	// KindUnhandled: anything the flow did not anticipate.
	KindUnhandled Kind = "unhandled"
)

// FlowError wraps a step failure with its classification and the reason
// string that ends up in the report.
type FlowError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *FlowError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *FlowError) Unwrap() error { return e.Err }

// NavigationError builds a navigation-class failure.
func NavigationError(reason string, err error) *FlowError {
	return &FlowError{Kind: KindNavigation, Reason: reason, Err: err}
}

// AssertionError builds an assertion-class failure.
func AssertionError(reason string) *FlowError {
	return &FlowError{Kind: KindAssertion, Reason: reason}
}

// ClassifyReason turns an arbitrary step error into the reason string
// recorded in the report. Deadline errors read as timeouts so the decision
// step can pick the right rule.
func ClassifyReason(err error) string {
	var fe *FlowError
	if errors.As(err, &fe) {
		if errors.Is(err, context.DeadlineExceeded) {
			return "Timeout: " + fe.Reason
		}
		return fe.Reason
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(err.Error(), "deadline exceeded") {
		return "Timeout: " + err.Error()
	}
	return "Unhandled error: " + err.Error()
}

// IsRecoverable reports whether a failure should feed the retry loop.
// Navigation and assertion failures are retryable; a canceled run is not.
func IsRecoverable(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, context.Canceled)
}
