// File: internal/reasoner/qwen.go
package reasoner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/regsmoke-cli/internal/config"
)

const qwenSystemPrompt = "You are an autonomous tester of a web registration flow. " +
	"Analyze the failed registration attempt and propose the next action. " +
	"Reply with JSON only, using the fields: " +
	`next_action (string), should_retry (bool), retry_delay_seconds (int), rotate_email (bool).`

// jsonBlockRe finds the first brace-delimited block in a chatty reply.
var jsonBlockRe = regexp.MustCompile(`(?s)\{.*\}`)

// QwenDecider calls an OpenAI-compatible chat-completions server and turns
// its reply into a Decision.
type QwenDecider struct {
	cfg        config.QwenConfig
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// -- Chat-completions request/response structures (internal to this file) --

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// decisionPayload is the JSON shape the model is instructed to emit.
type decisionPayload struct {
	NextAction        string `json:"next_action"`
	ShouldRetry       *bool  `json:"should_retry"`
	RetryDelaySeconds int    `json:"retry_delay_seconds"`
	RotateEmail       bool   `json:"rotate_email"`
}

// NewQwenDecider initializes the remote decider.
func NewQwenDecider(cfg config.QwenConfig, logger *zap.Logger) (*QwenDecider, error) {
	if strings.TrimSpace(cfg.ModelServer) == "" {
		return nil, fmt.Errorf("qwen model server is required")
	}

	return &QwenDecider{
		cfg:      cfg,
		endpoint: strings.TrimRight(cfg.ModelServer, "/") + "/chat/completions",
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.Named("reasoner.qwen"),
	}, nil
}

// Decide sends the failure context to the model server with retries and
// parses the returned decision. Transient HTTP failures (429, 5xx, network
// errors) are retried with exponential backoff; everything else is permanent.
func (q *QwenDecider) Decide(ctx context.Context, fc FailureContext) (Decision, error) {
	payload, err := q.buildRequest(fc)
	if err != nil {
		return Decision{}, err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return Decision{}, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = 45 * time.Second
	b.MaxInterval = 10 * time.Second

	var raw string

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, q.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if q.cfg.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+q.cfg.APIKey)
		}

		startTime := time.Now()
		resp, err := q.httpClient.Do(httpReq)
		if err != nil {
			q.logger.Warn("Network error during reasoning request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return q.handleAPIError(resp.StatusCode, respBody)
		}

		var parsed chatResponse
		if err := json.Unmarshal(respBody, &parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode chat response: %w", err))
		}
		if len(parsed.Choices) == 0 {
			return backoff.Permanent(fmt.Errorf("model server returned no choices"))
		}

		q.logger.Info("Reasoning call complete",
			zap.Duration("duration", time.Since(startTime)),
			zap.Int("prompt_tokens", parsed.Usage.PromptTokens),
			zap.Int("completion_tokens", parsed.Usage.CompletionTokens),
		)

		raw = parsed.Choices[0].Message.Content
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		return Decision{}, err
	}

	return q.parseDecision(raw, fc)
}

func (q *QwenDecider) buildRequest(fc FailureContext) (chatRequest, error) {
	contextJSON, err := json.Marshal(fc)
	if err != nil {
		return chatRequest{}, fmt.Errorf("failed to marshal failure context: %w", err)
	}

	return chatRequest{
		Model: q.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: qwenSystemPrompt},
			{Role: "user", Content: "Analyze this failed registration attempt and propose the next action.\nData: " + string(contextJSON)},
		},
		MaxTokens: q.cfg.MaxTokens,
	}, nil
}

func (q *QwenDecider) handleAPIError(statusCode int, body []byte) error {
	q.logger.Error("Model server returned error status",
		zap.Int("status", statusCode),
		zap.ByteString("response", body))
	err := fmt.Errorf("model server error: status %d, body: %s", statusCode, string(body))

	switch statusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return err // Transient, retry.
	default:
		return backoff.Permanent(err)
	}
}

// parseDecision extracts the decision JSON from the model's reply. A direct
// parse is tried first, then the first brace-delimited block; a reply with no
// usable JSON still yields a retry decision carrying the raw text.
func (q *QwenDecider) parseDecision(raw string, fc FailureContext) (Decision, error) {
	raw = strings.TrimSpace(raw)

	d := Decision{
		ShouldRetry: true,
		RetryDelay:  3 * time.Second,
		Source:      SourceQwen,
	}

	var payload decisionPayload
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		match := jsonBlockRe.FindString(raw)
		if match == "" || json.Unmarshal([]byte(match), &payload) != nil {
			if raw == "" {
				return Decision{}, fmt.Errorf("model returned an empty reply")
			}
			q.logger.Warn("Model reply contained no decision JSON; treating it as a plain suggestion")
			d.NextAction = raw
			return d, nil
		}
	}

	if payload.NextAction != "" {
		d.NextAction = payload.NextAction
	} else {
		d.NextAction = raw
	}
	if payload.ShouldRetry != nil {
		d.ShouldRetry = *payload.ShouldRetry
	}
	if payload.RetryDelaySeconds > 0 {
		d.RetryDelay = time.Duration(payload.RetryDelaySeconds) * time.Second
	}
	d.RotateEmail = payload.RotateEmail || Categorize(fc) == CategoryDuplicateEmail

	return d, nil
}
