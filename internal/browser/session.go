// File: internal/browser/session.go
package browser

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regsmoke-cli/internal/config"
)

// Viewport used for every session; the recorder inherits it.
const (
	viewportWidth  = 1366
	viewportHeight = 768
)

// Session owns one Chrome instance and one tab. Each registration attempt
// gets a fresh session so state (cookies, storage) never leaks across
// attempts.
type Session struct {
	id          string
	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc
	logger      *zap.Logger

	closeOnce sync.Once
}

// NewSession launches a browser according to the configuration and attaches
// a tab to it. The session lives until Close.
func NewSession(parent context.Context, cfg *config.Config, logger *zap.Logger) (*Session, error) {
	sessionID := uuid.New().String()
	log := logger.Named("browser").With(zap.String("session_id", sessionID))

	opts := execOptions(cfg)
	allocCtx, allocCancel := chromedp.NewExecAllocator(parent, opts...)
	ctx, cancel := chromedp.NewContext(allocCtx)

	s := &Session{
		id:          sessionID,
		ctx:         ctx,
		cancel:      cancel,
		allocCancel: allocCancel,
		logger:      log,
	}

	// An empty Run forces the browser process to start and the target to
	// connect, surfacing launch failures here instead of mid-flow.
	if err := chromedp.Run(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	log.Debug("Browser session started", zap.Bool("headless", cfg.Browser.Headless))
	return s, nil
}

// execOptions builds the allocator options. Defaults are stated explicitly
// rather than relying on chromedp's baked-in set.
func execOptions(cfg *config.Config) []chromedp.ExecAllocatorOption {
	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.WindowSize(viewportWidth, viewportHeight),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("lang", cfg.Flow.Locale),
	}
	if cfg.Browser.Headless {
		opts = append(opts, chromedp.Headless)
	}
	for _, arg := range cfg.Browser.Args {
		name := strings.TrimLeft(arg, "-")
		if key, value, found := strings.Cut(name, "="); found {
			opts = append(opts, chromedp.Flag(key, value))
		} else if name != "" {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Context exposes the CDP target context for event listeners.
func (s *Session) Context() context.Context { return s.ctx }

// Run executes chromedp actions, honoring both the session lifetime and the
// caller's deadline.
func (s *Session) Run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads a URL and waits for the document body.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Info("Navigating", zap.String("url", url))
	return s.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Location returns the tab's current URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var url string
	if err := s.Run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

// Evaluate runs a JavaScript expression and optionally unmarshals the result.
func (s *Session) Evaluate(ctx context.Context, expr string, res any) error {
	return s.Run(ctx, chromedp.Evaluate(expr, res))
}

// Screenshot captures the full page into path. Failures are logged, not
// fatal; a missing screenshot should never sink an attempt.
func (s *Session) Screenshot(ctx context.Context, path string) error {
	var buf []byte
	if err := s.Run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
		s.logger.Warn("Screenshot capture failed", zap.String("path", path), zap.Error(err))
		return err
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		s.logger.Warn("Screenshot write failed", zap.String("path", path), zap.Error(err))
		return err
	}
	return nil
}

// Close tears the tab and the browser process down. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.logger.Debug("Closing browser session")
		s.cancel()
		s.allocCancel()
	})
}
