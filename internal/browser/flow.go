// File: internal/browser/flow.go
package browser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regsmoke-cli/internal/config"
	"github.com/xkilldash9x/regsmoke-cli/internal/report"
	"github.com/xkilldash9x/regsmoke-cli/internal/testdata"
)

// Text patterns, in preference order, for the two in-page hops the flow has
// to make: landing page to the generation dashboard, dashboard to the
// registration form. Matching is case-insensitive on trimmed text.
var (
	generateEntryPatterns = []string{
		`^Generate Image$`,
		`^Generate Video$`,
		`Generate Image`,
		`Generate Video`,
	}
	registrationLinkPatterns = []string{
		`^Registration$`,
		`^Register$`,
		`^Sign Up$`,
		`Registration`,
	}
)

const settleDelay = 1500 * time.Millisecond

// Flow drives one registration attempt from the landing page through the
// dashboard verification. It is stateless across attempts; every RunAttempt
// starts a fresh browser.
type Flow struct {
	cfg         *config.Config
	logger      *zap.Logger
	dashboardRe *regexp.Regexp
}

// NewFlow validates the dashboard pattern and returns a ready flow.
func NewFlow(cfg *config.Config, logger *zap.Logger) (*Flow, error) {
	re, err := regexp.Compile(cfg.Flow.DashboardURLPattern)
	if err != nil {
		return nil, fmt.Errorf("invalid dashboard URL pattern %q: %w", cfg.Flow.DashboardURLPattern, err)
	}
	return &Flow{
		cfg:         cfg,
		logger:      logger.Named("flow"),
		dashboardRe: re,
	}, nil
}

// RegisterURL is the absolute URL of the registration form.
func (f *Flow) RegisterURL() string { return f.cfg.Flow.RegisterURL() }

// RunAttempt executes one full registration attempt and returns its record.
// All failures are captured in the record; an attempt never returns an error
// because the retry loop decides what to do with failures, not the flow.
func (f *Flow) RunAttempt(ctx context.Context, testID string, number int, reg testdata.Registrant) report.Attempt {
	attempt := report.Attempt{
		Number:     number,
		Timestamp:  time.Now().UTC(),
		Registrant: reg.Summary(),
	}
	log := f.logger.With(zap.Int("attempt", number))

	attemptDir := filepath.Join(f.cfg.Artifacts.ArtifactDir, fmt.Sprintf("%s_attempt%d", testID, number))
	if err := os.MkdirAll(attemptDir, 0o755); err != nil {
		attempt.Reason = fmt.Sprintf("Unhandled error: failed to create artifact dir: %v", err)
		return attempt
	}
	if err := os.MkdirAll(f.cfg.Artifacts.VideoDir, 0o755); err != nil {
		attempt.Reason = fmt.Sprintf("Unhandled error: failed to create video dir: %v", err)
		return attempt
	}

	session, err := NewSession(ctx, f.cfg, f.logger)
	if err != nil {
		attempt.Reason = ClassifyReason(err)
		return attempt
	}
	defer session.Close()

	recorder := NewRecorder(log)
	if err := recorder.Start(session); err != nil {
		log.Warn("Video recording unavailable", zap.Error(err))
		recorder = nil
	}

	err = f.runSteps(ctx, session, reg, attemptDir, &attempt, log)

	pmCtx, pmCancel := postMortemCtx(ctx)
	if url, locErr := session.Location(pmCtx); locErr == nil {
		attempt.FinalURL = url
	}
	pmCancel()

	if err != nil {
		attempt.Success = false
		attempt.Reason = ClassifyReason(err)
		// A canceled run gets no post-mortem artifacts; the browser is
		// already going away.
		if IsRecoverable(err) {
			f.capture(ctx, session, attemptDir, "error.png", &attempt)
		}
		log.Warn("Attempt failed", zap.String("reason", attempt.Reason))
	} else {
		attempt.Success = true
		log.Info("Attempt succeeded", zap.String("final_url", attempt.FinalURL))
	}

	if recorder != nil {
		videoPath := filepath.Join(f.cfg.Artifacts.VideoDir, fmt.Sprintf("%s_attempt%d.mjpeg", testID, number))
		log.Debug("Finalizing video", zap.Int("frames", recorder.FrameCount()))
		if err := recorder.Finalize(ctx, session, videoPath); err != nil {
			log.Warn("Video finalize failed", zap.Error(err))
		} else {
			attempt.VideoPath = videoPath
		}
	}

	return attempt
}

// runSteps walks the journey: landing page, generation dashboard,
// registration form, submit, dashboard verification.
func (f *Flow) runSteps(ctx context.Context, s *Session, reg testdata.Registrant, dir string, attempt *report.Attempt, log *zap.Logger) error {
	// Landing page.
	if err := f.navigate(ctx, s, f.cfg.Flow.BaseURL); err != nil {
		return NavigationError("landing page did not load", err)
	}

	// The generation entry point lives on the landing page; reaching the
	// registration form through it mirrors what a real visitor does.
	matched, err := f.clickFirstMatching(ctx, s, generateEntryPatterns)
	if err != nil {
		return NavigationError("landing page has no generation trigger", err)
	}
	if matched == "" {
		return AssertionError("landing page has no generation trigger")
	}
	log.Debug("Clicked generation entry", zap.String("text", matched))

	if err := f.waitForURLMatch(ctx, s, f.dashboardRe); err != nil {
		return NavigationError("generation dashboard did not load", err)
	}

	matched, err = f.clickFirstMatching(ctx, s, registrationLinkPatterns)
	if err != nil {
		return NavigationError("registration link not clickable", err)
	}
	if matched == "" {
		return AssertionError("dashboard has no registration link")
	}
	log.Debug("Clicked registration link", zap.String("text", matched))

	if err := f.waitForURLContains(ctx, s, f.cfg.Flow.RegisterPath); err != nil {
		return NavigationError("registration page did not load", err)
	}

	f.capture(ctx, s, dir, "registration_page.png", attempt)

	// Form fill.
	sel := f.cfg.Flow.Selectors
	stepCtx, cancel := f.stepCtx(ctx)
	err = s.Run(stepCtx,
		chromedp.WaitVisible(sel.Email, chromedp.ByQuery),
		chromedp.SendKeys(sel.Email, reg.Email, chromedp.ByQuery),
		chromedp.SendKeys(sel.Password, reg.Password, chromedp.ByQuery),
	)
	cancel()
	if err != nil {
		return NavigationError("registration form fields not fillable", err)
	}

	// The name field is optional; plenty of registration forms omit it.
	stepCtx, cancel = f.stepCtx(ctx)
	var hasName bool
	if err := s.Evaluate(stepCtx, fmt.Sprintf(`!!document.querySelector(%q)`, sel.Name), &hasName); err == nil && hasName {
		_ = s.Run(stepCtx, chromedp.SendKeys(sel.Name, reg.Name, chromedp.ByQuery))
	}
	cancel()

	f.capture(ctx, s, dir, "before_submit.png", attempt)

	stepCtx, cancel = f.stepCtx(ctx)
	err = s.Run(stepCtx, chromedp.Click(sel.Submit, chromedp.ByQuery))
	cancel()
	if err != nil {
		return NavigationError("submit button not clickable", err)
	}

	// Let the form round-trip and any client-side redirect land.
	select {
	case <-time.After(settleDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := f.waitForURLMatch(ctx, s, f.dashboardRe); err != nil {
		f.capture(ctx, s, dir, "after_submit.png", attempt)
		if banner := f.errorBanner(ctx, s); banner != "" {
			return AssertionError("Registration rejected: " + banner)
		}
		pmCtx, pmCancel := postMortemCtx(ctx)
		url, _ := s.Location(pmCtx)
		pmCancel()
		return AssertionError(fmt.Sprintf("Registration did not reach the dashboard (current URL: %s).", url))
	}

	f.capture(ctx, s, dir, "after_submit.png", attempt)

	// Dashboard verification.
	stepCtx, cancel = f.stepCtx(ctx)
	probe, err := probeDashboard(stepCtx, s)
	cancel()
	if err != nil {
		return NavigationError("dashboard probe failed", err)
	}
	checks := Verdict(probe)
	attempt.DashboardChecks = &checks
	if !checks.OK {
		return AssertionError(checks.Reason)
	}
	return nil
}

// clickFirstMatching clicks the first interactive element whose text matches
// one of the patterns, returning the matched text, or "" when nothing
// matched.
func (f *Flow) clickFirstMatching(ctx context.Context, s *Session, patterns []string) (string, error) {
	encoded, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(patterns)
	if err != nil {
		return "", err
	}
	js := fmt.Sprintf(`(() => {
	const patterns = %s.map(p => new RegExp(p, 'i'));
	const candidates = document.querySelectorAll('a, button, [role="button"], [role="link"]');
	for (const pattern of patterns) {
		for (const el of candidates) {
			const text = (el.textContent || '').trim();
			if (text && pattern.test(text)) {
				el.click();
				return text;
			}
		}
	}
	return '';
})()`, encoded)

	stepCtx, cancel := f.stepCtx(ctx)
	defer cancel()
	var matched string
	if err := s.Evaluate(stepCtx, js, &matched); err != nil {
		return "", err
	}
	return matched, nil
}

// waitForURLMatch polls the tab URL until it matches the pattern or the step
// budget runs out.
func (f *Flow) waitForURLMatch(ctx context.Context, s *Session, re *regexp.Regexp) error {
	return f.waitForURL(ctx, s, re.MatchString, re.String())
}

// waitForURLContains polls until the URL contains the fragment.
func (f *Flow) waitForURLContains(ctx context.Context, s *Session, fragment string) error {
	return f.waitForURL(ctx, s, func(url string) bool {
		return strings.Contains(url, fragment)
	}, fragment)
}

func (f *Flow) waitForURL(ctx context.Context, s *Session, match func(string) bool, want string) error {
	stepCtx, cancel := f.stepCtx(ctx)
	defer cancel()

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		url, err := s.Location(stepCtx)
		if err == nil && match(url) {
			return nil
		}
		select {
		case <-stepCtx.Done():
			return fmt.Errorf("URL never matched %q: %w", want, stepCtx.Err())
		case <-ticker.C:
		}
	}
}

// errorBanner harvests visible error text from the page after a rejected
// submit. Empty when nothing is displayed.
func (f *Flow) errorBanner(ctx context.Context, s *Session) string {
	js := fmt.Sprintf(`(() => {
	const nodes = document.querySelectorAll(%q);
	const parts = [];
	for (const el of nodes) {
		const text = (el.textContent || '').trim();
		if (text) parts.push(text);
	}
	return parts.join(' | ');
})()`, f.cfg.Flow.Selectors.Error)

	stepCtx, cancel := f.stepCtx(ctx)
	defer cancel()
	var banner string
	if err := s.Evaluate(stepCtx, js, &banner); err != nil {
		return ""
	}
	return strings.TrimSpace(banner)
}

// capture takes a screenshot into the attempt directory and records its path.
func (f *Flow) capture(ctx context.Context, s *Session, dir, name string, attempt *report.Attempt) {
	path := filepath.Join(dir, name)
	stepCtx, cancel := f.stepCtx(ctx)
	defer cancel()
	if err := s.Screenshot(stepCtx, path); err == nil {
		attempt.Screenshots = append(attempt.Screenshots, path)
	}
}

// navigate loads a URL under the step budget.
func (f *Flow) navigate(ctx context.Context, s *Session, url string) error {
	stepCtx, cancel := f.stepCtx(ctx)
	defer cancel()
	return s.Navigate(stepCtx, url)
}

// stepCtx derives the per-step deadline from the configured timeout.
func (f *Flow) stepCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, f.cfg.Retry.Timeout())
}

// postMortemCtx gives short-lived reads a small budget even when the parent
// context has already expired, so data like the final URL can still be
// collected after a timed-out attempt.
func postMortemCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx.Err() != nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, 3*time.Second)
}
