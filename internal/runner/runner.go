// File: internal/runner/runner.go

// Package runner owns the attempt loop: it runs registration attempts,
// feeds failures to the decision step, applies the resulting data
// adjustments, and assembles the final report.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/regsmoke-cli/internal/config"
	"github.com/xkilldash9x/regsmoke-cli/internal/reasoner"
	"github.com/xkilldash9x/regsmoke-cli/internal/report"
	"github.com/xkilldash9x/regsmoke-cli/internal/testdata"
)

// AttemptRunner executes one registration attempt. *browser.Flow is the
// production implementation; tests substitute their own.
type AttemptRunner interface {
	RunAttempt(ctx context.Context, testID string, number int, reg testdata.Registrant) report.Attempt
	RegisterURL() string
}

// Runner drives a complete run: at most MaxRetries attempts, each followed
// by a decision when it fails.
type Runner struct {
	cfg     *config.Config
	flow    AttemptRunner
	decider reasoner.Decider
	logger  *zap.Logger

	// sleep is swapped out in tests so retry delays do not slow them down.
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a runner over the given attempt executor and decision step.
func New(cfg *config.Config, flow AttemptRunner, decider reasoner.Decider, logger *zap.Logger) *Runner {
	return &Runner{
		cfg:     cfg,
		flow:    flow,
		decider: decider,
		logger:  logger.Named("runner"),
		sleep:   sleepCtx,
	}
}

// Run executes the full loop and always returns a finalized report, even on
// cancellation. The returned state says how the run ended.
func (r *Runner) Run(ctx context.Context, testID string) (*report.Report, State) {
	rep := report.New(testID, r.cfg.Flow.BaseURL, r.flow.RegisterURL(), r.cfg.Retry.MaxRetries, r.cfg.Qwen.Enabled)
	defer rep.Finalize()

	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Retry.OverallTimeout())
	defer cancel()

	state := StateInit
	reg := testdata.New()

	for number := 1; number <= r.cfg.Retry.MaxRetries; number++ {
		if runCtx.Err() != nil {
			state = StateFailed
			break
		}

		state = StateAttempting
		r.logger.Info("Starting attempt",
			zap.Int("attempt", number),
			zap.Int("max_retries", r.cfg.Retry.MaxRetries),
			zap.String("email", reg.Email))

		attempt := r.flow.RunAttempt(runCtx, testID, number, reg)
		rep.Append(attempt)

		if attempt.Success {
			rep.MarkSuccess(number)
			state = StateSuccess
			break
		}

		// The overall deadline expiring mid-attempt is a run failure, not
		// a reason to consult the decision step.
		if runCtx.Err() != nil {
			state = StateFailed
			break
		}

		if number == r.cfg.Retry.MaxRetries {
			state = StateExhausted
			break
		}

		decision := r.decide(runCtx, number, attempt)
		last := rep.Last()
		last.NextAction = decision.NextAction
		last.NextActionSource = decision.Source
		if decision.FrameworkError != "" {
			last.FrameworkError = decision.FrameworkError
		}

		// A declined retry is an unrecoverable condition (a captcha, say),
		// not a spent budget; Exhausted stays reserved for the latter.
		if !decision.ShouldRetry {
			r.logger.Info("Decision step declined to retry", zap.String("next_action", decision.NextAction))
			state = StateFailed
			break
		}

		reg = r.adjust(reg, decision)

		state = StateRetrying
		delay := decision.RetryDelay
		if delay <= 0 {
			delay = r.cfg.Retry.Delay()
		}
		r.logger.Info("Retrying",
			zap.Duration("delay", delay),
			zap.String("next_action", decision.NextAction),
			zap.String("source", decision.Source))
		if err := r.sleep(runCtx, delay); err != nil {
			state = StateFailed
			break
		}
	}

	r.logger.Info("Run finished",
		zap.String("state", string(state)),
		zap.Int("attempts", len(rep.Attempts)),
		zap.String("status", rep.Status))
	return rep, state
}

// decide consults the decision step. Decider errors are absorbed into a
// conservative retry so a broken reasoner never aborts the run.
func (r *Runner) decide(ctx context.Context, number int, attempt report.Attempt) reasoner.Decision {
	fc := reasoner.FailureContext{
		Attempt:    number,
		MaxRetries: r.cfg.Retry.MaxRetries,
		Reason:     attempt.Reason,
		FinalURL:   attempt.FinalURL,
		Checks:     attempt.DashboardChecks,
	}

	decision, err := r.decider.Decide(ctx, fc)
	if err != nil {
		r.logger.Warn("Decision step errored; retrying with fresh data", zap.Error(err))
		return reasoner.Decision{
			NextAction:     "Retry with regenerated test data.",
			ShouldRetry:    number < r.cfg.Retry.MaxRetries,
			RegenerateAll:  true,
			Source:         reasoner.SourceHeuristic,
			FrameworkError: err.Error(),
		}
	}
	return decision
}

// adjust applies the decision's data changes to the registrant.
func (r *Runner) adjust(reg testdata.Registrant, d reasoner.Decision) testdata.Registrant {
	switch {
	case d.RegenerateAll:
		next := testdata.New()
		r.logger.Debug("Regenerated registrant", zap.String("email", next.Email))
		return next
	case d.RotateEmail:
		next := reg.RotateEmail()
		r.logger.Debug("Rotated email", zap.String("email", next.Email))
		return next
	default:
		return reg
	}
}

// sleepCtx waits out d unless the context ends first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExitError converts a terminal state into the process outcome. A successful
// run returns nil; everything else carries a short explanation.
func ExitError(state State, rep *report.Report) error {
	switch state {
	case StateSuccess:
		return nil
	case StateExhausted:
		return fmt.Errorf("registration failed after %d attempt(s)", len(rep.Attempts))
	default:
		return errors.New("run aborted before completing")
	}
}
