package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sourcingengine/core/pkg/sourcing/ratelimit"
	"github.com/sourcingengine/core/pkg/sourcing/retry"
)

// HTTPClient is a Client backed by an OpenAI-compatible chat-completions
// endpoint, rate limited and retried the same way the collector
// runtime's httpclient.Client is.
type HTTPClient struct {
	http    *http.Client
	limiter ratelimit.Limiter
	policy  retry.Policy
	log     *slog.Logger

	endpoint string
	apiKey   string
	model    string
}

// NewHTTPClient builds an HTTPClient against endpoint (a full
// chat-completions URL), authenticating with apiKey when non-empty.
func NewHTTPClient(endpoint, apiKey, model string, log *slog.Logger) *HTTPClient {
	if log == nil {
		log = slog.Default()
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	return &HTTPClient{
		http:     &http.Client{Timeout: 30 * time.Second},
		limiter:  ratelimit.Get("llm_backend"),
		policy:   retry.DefaultPolicy(),
		log:      log,
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
	}
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message Message `json:"message"`
	} `json:"choices"`
}

// Chat sends messages to the configured chat-completions endpoint and
// returns the first choice's message content.
func (c *HTTPClient) Chat(ctx context.Context, messages []Message) (*Response, error) {
	reqBody, err := json.Marshal(chatRequest{Model: c.model, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("llm: encode request: %w", err)
	}

	var respBody []byte
	err = retry.Do(ctx, c.log, c.policy, func(ctx context.Context) retry.Attempt {
		if err := c.limiter.Acquire(ctx); err != nil {
			return retry.Attempt{Err: err, Retryable: false}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
		if err != nil {
			return retry.Attempt{Err: err, Retryable: false}
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return retry.Attempt{Err: err, Retryable: true}
		}
		defer resp.Body.Close()

		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return retry.Attempt{Err: readErr, Retryable: true}
		}

		if resp.StatusCode >= 400 {
			httpErr := fmt.Errorf("llm: backend returned status %d", resp.StatusCode)
			retryable := retry.IsRetryable(resp.StatusCode, false)
			if wait, ok := retry.RetryAfter(resp.Header.Get("Retry-After")); ok {
				return retry.Attempt{Err: httpErr, Retryable: retryable, RetryAfter: wait, HasRetryAfter: true}
			}
			return retry.Attempt{Err: httpErr, Retryable: retryable}
		}

		respBody = data
		return retry.Attempt{}
	})
	if err != nil {
		return nil, err
	}

	var parsed chatCompletionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("llm: decode response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("llm: backend returned no choices")
	}
	return &Response{Content: parsed.Choices[0].Message.Content}, nil
}
