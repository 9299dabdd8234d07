// File: internal/browser/recorder.go
package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Recorder captures the CDP screencast of one attempt and finalizes it as a
// single MJPEG file (concatenated JPEG frames). One recorder per attempt.
type Recorder struct {
	logger *zap.Logger

	mu     sync.Mutex
	frames [][]byte
}

// NewRecorder returns an idle recorder.
func NewRecorder(logger *zap.Logger) *Recorder {
	return &Recorder{logger: logger.Named("recorder")}
}

// Start subscribes to screencast frames on the session and begins the
// capture. Frames are acknowledged as they arrive; Chrome stops sending
// after a few unacknowledged frames otherwise.
func (r *Recorder) Start(s *Session) error {
	targetCtx := s.Context()

	chromedp.ListenTarget(targetCtx, func(ev any) {
		frame, ok := ev.(*page.EventScreencastFrame)
		if !ok {
			return
		}

		data, err := base64.StdEncoding.DecodeString(frame.Data)
		if err != nil {
			r.logger.Debug("Dropping undecodable screencast frame", zap.Error(err))
			return
		}

		r.mu.Lock()
		r.frames = append(r.frames, data)
		r.mu.Unlock()

		// Ack outside the event callback; chromedp forbids blocking here.
		go func() {
			if err := chromedp.Run(targetCtx, page.ScreencastFrameAck(frame.SessionID)); err != nil && targetCtx.Err() == nil {
				r.logger.Debug("Screencast frame ack failed", zap.Error(err))
			}
		}()
	})

	start := page.StartScreencast().
		WithFormat(page.ScreencastFormatJpeg).
		WithQuality(70).
		WithMaxWidth(viewportWidth).
		WithMaxHeight(viewportHeight).
		WithEveryNthFrame(1)

	if err := chromedp.Run(targetCtx, start); err != nil {
		return fmt.Errorf("failed to start screencast: %w", err)
	}
	return nil
}

// FrameCount reports how many frames have been captured so far.
func (r *Recorder) FrameCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Finalize stops the screencast and writes the captured frames to path.
// The file is written even when the attempt failed; the video of a failure
// is the artifact people actually want. Stopping errors are non-fatal
// because the session may already be gone.
func (r *Recorder) Finalize(ctx context.Context, s *Session, path string) error {
	if s != nil {
		stopCtx, cancel := CombineContext(s.Context(), ctx)
		if err := chromedp.Run(stopCtx, page.StopScreencast()); err != nil && stopCtx.Err() == nil {
			r.logger.Debug("Stopping screencast failed", zap.Error(err))
		}
		cancel()
	}

	r.mu.Lock()
	frames := r.frames
	r.frames = nil
	r.mu.Unlock()

	if len(frames) == 0 {
		return fmt.Errorf("no screencast frames captured")
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create video file %s: %w", path, err)
	}
	defer f.Close()

	for _, frame := range frames {
		if _, err := f.Write(frame); err != nil {
			return fmt.Errorf("failed to write video file %s: %w", path, err)
		}
	}

	r.logger.Info("Video finalized", zap.String("path", path), zap.Int("frames", len(frames)))
	return nil
}
