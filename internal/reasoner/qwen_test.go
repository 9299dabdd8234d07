// File: internal/reasoner/qwen_test.go
package reasoner_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regsmoke-cli/internal/config"
	"github.com/xkilldash9x/regsmoke-cli/internal/reasoner"
)

// chatServer builds an httptest server that replies to /chat/completions
// with the given message content.
func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/chat/completions", r.URL.Path)

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "Qwen/Qwen3-14B", req["model"])

		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
}

func qwenConfig(server string) config.QwenConfig {
	return config.QwenConfig{
		Enabled:     true,
		ModelServer: server + "/v1",
		Model:       "Qwen/Qwen3-14B",
		APIKey:      "EMPTY",
		MaxTokens:   512,
	}
}

func TestQwenDecider_ParsesCleanJSON(t *testing.T) {
	srv := chatServer(t, `{"next_action": "rotate the email", "should_retry": true, "retry_delay_seconds": 7, "rotate_email": true}`)
	defer srv.Close()

	q, err := reasoner.NewQwenDecider(qwenConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)

	d, err := q.Decide(context.Background(), reasoner.FailureContext{
		Attempt: 1, MaxRetries: 3, Reason: "email already exists",
	})
	require.NoError(t, err)

	assert.Equal(t, "rotate the email", d.NextAction)
	assert.True(t, d.ShouldRetry)
	assert.Equal(t, 7*time.Second, d.RetryDelay)
	assert.True(t, d.RotateEmail)
	assert.Equal(t, reasoner.SourceQwen, d.Source)
}

func TestQwenDecider_ExtractsJSONFromChattyReply(t *testing.T) {
	srv := chatServer(t, "Let me think about this.\n"+
		`{"next_action": "wait longer", "should_retry": true, "retry_delay_seconds": 10}`+
		"\nGood luck!")
	defer srv.Close()

	q, err := reasoner.NewQwenDecider(qwenConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)

	d, err := q.Decide(context.Background(), reasoner.FailureContext{Attempt: 1, MaxRetries: 3, Reason: "timeout"})
	require.NoError(t, err)
	assert.Equal(t, "wait longer", d.NextAction)
	assert.Equal(t, 10*time.Second, d.RetryDelay)
}

func TestQwenDecider_PlainTextReplyStillRetries(t *testing.T) {
	srv := chatServer(t, "Just try again with new data.")
	defer srv.Close()

	q, err := reasoner.NewQwenDecider(qwenConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)

	d, err := q.Decide(context.Background(), reasoner.FailureContext{Attempt: 1, MaxRetries: 3, Reason: "odd"})
	require.NoError(t, err)
	assert.Equal(t, "Just try again with new data.", d.NextAction)
	assert.True(t, d.ShouldRetry)
}

func TestQwenDecider_DuplicateReasonForcesRotation(t *testing.T) {
	// The model forgot rotate_email; the duplicate category implies it.
	srv := chatServer(t, `{"next_action": "retry", "should_retry": true}`)
	defer srv.Close()

	q, err := reasoner.NewQwenDecider(qwenConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)

	d, err := q.Decide(context.Background(), reasoner.FailureContext{
		Attempt: 1, MaxRetries: 3, Reason: "duplicate email detected",
	})
	require.NoError(t, err)
	assert.True(t, d.RotateEmail)
}

func TestQwenDecider_PermanentErrorIsNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	q, err := reasoner.NewQwenDecider(qwenConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)

	_, err = q.Decide(context.Background(), reasoner.FailureContext{Attempt: 1, MaxRetries: 3, Reason: "x"})
	require.Error(t, err)
	assert.Equal(t, 1, calls, "4xx responses must not be retried")
}

func TestQwenDecider_TransientErrorIsRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"{\"next_action\":\"ok\",\"should_retry\":true}"}}]}`)
	}))
	defer srv.Close()

	q, err := reasoner.NewQwenDecider(qwenConfig(srv.URL), zap.NewNop())
	require.NoError(t, err)

	d, err := q.Decide(context.Background(), reasoner.FailureContext{Attempt: 1, MaxRetries: 3, Reason: "x"})
	require.NoError(t, err)
	assert.Equal(t, "ok", d.NextAction)
	assert.GreaterOrEqual(t, calls, 2)
}

func TestNewQwenDecider_RequiresModelServer(t *testing.T) {
	_, err := reasoner.NewQwenDecider(config.QwenConfig{}, zap.NewNop())
	assert.Error(t, err)
}
