// File: internal/reasoner/reasoner.go

// Package reasoner decides what to do after a failed registration attempt.
// The decision step is a capability: a static heuristic always exists, and a
// remote reasoning service can be layered on top. The remote path degrades
// to the heuristic, never to an aborted run.
package reasoner

import (
	"context"
	"strings"
	"time"

	"github.com/xkilldash9x/regsmoke-cli/internal/report"
)

// Decision sources recorded in the report.
const (
	SourceHeuristic = "heuristic"
	SourceQwen      = "qwen"
)

// Failure categories derived from an attempt's reason string.
type Category string

const (
	CategoryDuplicateEmail Category = "duplicate_email"
	CategoryTimeout        Category = "timeout"
	CategoryCaptcha        Category = "captcha"
	CategoryServerError    Category = "server_error"
	CategoryValidation     Category = "post_registration_validation"
	CategoryUnknown        Category = "unknown"
)

// FailureContext is everything a decider gets to see about a failed attempt.
type FailureContext struct {
	Attempt    int                     `json:"attempt"`
	MaxRetries int                     `json:"max_retries"`
	Reason     string                  `json:"reason"`
	FinalURL   string                  `json:"final_url,omitempty"`
	Checks     *report.DashboardChecks `json:"dashboard_checks,omitempty"`
}

// Decision is the outcome of the reasoning step.
type Decision struct {
	NextAction  string
	ShouldRetry bool
	RetryDelay  time.Duration
	// RotateEmail keeps the registrant but swaps the email address.
	RotateEmail bool
	// RegenerateAll replaces the whole registrant before the next attempt.
	RegenerateAll bool
	Source        string
	// FrameworkError carries the remote failure when the heuristic had to
	// step in. Informational only.
	FrameworkError string
}

// Decider is the capability interface both implementations satisfy.
type Decider interface {
	Decide(ctx context.Context, fc FailureContext) (Decision, error)
}

// Categorize maps a free-text failure reason onto the retry taxonomy.
// The substrings mirror the error messages the target application and the
// browser layer actually produce, including the Russian wording of the
// duplicate-account banner.
func Categorize(fc FailureContext) Category {
	if fc.Checks != nil && !fc.Checks.OK && fc.Checks.Reason != "" && fc.Checks.ModelSelectDropdownExists {
		// Registration went through; the dashboard itself is incomplete.
		return CategoryValidation
	}

	reason := strings.ToLower(fc.Reason)
	switch {
	case strings.Contains(reason, "already") || strings.Contains(reason, "duplicate") || strings.Contains(reason, "существ"):
		return CategoryDuplicateEmail
	case strings.Contains(reason, "timeout") || strings.Contains(reason, "timed out") || strings.Contains(reason, "deadline exceeded"):
		return CategoryTimeout
	case strings.Contains(reason, "captcha"):
		return CategoryCaptcha
	case strings.Contains(reason, "500") || strings.Contains(reason, "502") || strings.Contains(reason, "503"):
		return CategoryServerError
	default:
		return CategoryUnknown
	}
}
