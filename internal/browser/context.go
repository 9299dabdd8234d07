// File: internal/browser/context.go
package browser

import (
	"context"
)

// CombineContext derives a context from primary (which carries the CDP
// target values) that is additionally canceled when secondary is done.
// chromedp resolves its connection through context values, so the primary
// context must always be the session context.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combined, cancel := context.WithCancel(primary)

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combined.Done():
		}
	}()

	return combined, cancel
}
