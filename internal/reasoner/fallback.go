// File: internal/reasoner/fallback.go
package reasoner

import (
	"context"

	"go.uber.org/zap"
)

// Fallback wraps a remote decider with the heuristic. Any remote failure is
// absorbed: the heuristic answers instead and the remote error travels along
// in the decision for the report. Fallback itself never returns an error.
type Fallback struct {
	remote    Decider
	heuristic *Heuristic
	logger    *zap.Logger
}

// NewFallback composes the remote decider (may be nil) with the heuristic.
func NewFallback(remote Decider, heuristic *Heuristic, logger *zap.Logger) *Fallback {
	return &Fallback{
		remote:    remote,
		heuristic: heuristic,
		logger:    logger.Named("reasoner"),
	}
}

// Decide asks the remote decider first when one is configured.
func (f *Fallback) Decide(ctx context.Context, fc FailureContext) (Decision, error) {
	if f.remote == nil {
		return f.heuristic.Decide(ctx, fc)
	}

	d, err := f.remote.Decide(ctx, fc)
	if err == nil {
		return d, nil
	}

	f.logger.Warn("Remote reasoning failed; falling back to the static rules", zap.Error(err))

	fallback, _ := f.heuristic.Decide(ctx, fc)
	fallback.FrameworkError = err.Error()
	return fallback, nil
}
