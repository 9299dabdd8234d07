// File: internal/reasoner/heuristic.go
package reasoner

import (
	"context"
	"time"
)

const maxTimeoutDelay = 30 * time.Second

// Heuristic is the static rule-based decider. It is the floor every run can
// rely on: no network, no failure modes of its own.
type Heuristic struct {
	// BaseDelay is the pause before the next attempt unless a rule says
	// otherwise.
	BaseDelay time.Duration
}

// NewHeuristic returns a heuristic decider with the given base retry delay.
func NewHeuristic(baseDelay time.Duration) *Heuristic {
	if baseDelay <= 0 {
		baseDelay = 3 * time.Second
	}
	return &Heuristic{BaseDelay: baseDelay}
}

// Decide applies the failure-category rules:
//
//	duplicate_email  -> rotate the email only, same identity
//	timeout          -> same data, doubled delay (capped)
//	server_error     -> same data after the base delay
//	captcha          -> stop; cannot be cleared without a human
//	validation       -> same flow again, collect more evidence
//	unknown          -> regenerate the full registrant
//
// Retrying is always conditional on budget remaining.
func (h *Heuristic) Decide(_ context.Context, fc FailureContext) (Decision, error) {
	budgetLeft := fc.Attempt < fc.MaxRetries

	d := Decision{
		ShouldRetry: budgetLeft,
		RetryDelay:  h.BaseDelay,
		Source:      SourceHeuristic,
	}

	switch Categorize(fc) {
	case CategoryDuplicateEmail:
		d.NextAction = "Email likely already registered; rotate to a fresh address and retry."
		d.RotateEmail = true
	case CategoryTimeout:
		d.NextAction = "Server responded slowly; retry the same data with a longer pause."
		d.RetryDelay = h.BaseDelay * 2
		if d.RetryDelay > maxTimeoutDelay {
			d.RetryDelay = maxTimeoutDelay
		}
	case CategoryServerError:
		d.NextAction = "Backend returned a server error; retry the same data after the base delay and keep the artifacts."
	case CategoryCaptcha:
		d.NextAction = "CAPTCHA detected; needs a test-environment bypass or a manual check."
		d.ShouldRetry = false
	case CategoryValidation:
		d.NextAction = "Registration succeeded but the dashboard is incomplete; rerun the flow and capture extra screenshots."
	default:
		d.NextAction = "Retry with freshly generated data and keep collecting diagnostics."
		d.RegenerateAll = true
	}

	return d, nil
}
