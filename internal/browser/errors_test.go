// File: internal/browser/errors_test.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyReason(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "assertion error keeps its reason verbatim",
			err:  AssertionError("Missing `button#generateButton`."),
			want: "Missing `button#generateButton`.",
		},
		{
			name: "navigation error keeps its reason verbatim",
			err:  NavigationError("landing page did not load", errors.New("net::ERR_CONNECTION_REFUSED")),
			want: "landing page did not load",
		},
		{
			name: "flow error wrapping a deadline reads as a timeout",
			err:  NavigationError("registration page did not load", context.DeadlineExceeded),
			want: "Timeout: registration page did not load",
		},
		{
			name: "bare deadline reads as a timeout",
			err:  fmt.Errorf("waiting for selector: %w", context.DeadlineExceeded),
			want: "Timeout: waiting for selector: context deadline exceeded",
		},
		{
			name: "anything else is an unhandled error",
			err:  errors.New("websocket closed"),
			want: "Unhandled error: websocket closed",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyReason(tc.err))
		})
	}
}

func TestIsRecoverable(t *testing.T) {
	assert.False(t, IsRecoverable(nil))
	assert.False(t, IsRecoverable(context.Canceled))
	assert.False(t, IsRecoverable(fmt.Errorf("run aborted: %w", context.Canceled)))
	assert.True(t, IsRecoverable(context.DeadlineExceeded))
	assert.True(t, IsRecoverable(AssertionError("Missing `div.model-select.dropdown`.")))
}

func TestFlowErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := NavigationError("step failed", inner)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "step failed: boom", err.Error())

	bare := AssertionError("element missing")
	assert.Equal(t, "element missing", bare.Error())
	assert.Nil(t, errors.Unwrap(bare))
}
