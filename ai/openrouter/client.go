// Package openrouter is a thin client for the OpenRouter chat completion
// and embedding APIs, with SSE streaming support for the chat path.
package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
	"github.com/CalvinMagezi/agent-hq-sub000/logger"
)

const (
	defaultBaseURL = "https://openrouter.ai/api/v1"

	requestTimeout = 60 * time.Second
	// streaming responses can legitimately run long
	streamTimeout = 5 * time.Minute

	maxRetries     = 2
	retryBaseDelay = 500 * time.Millisecond
)

// Client talks to the OpenRouter API
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	streamHTTP *http.Client
	log        *zap.SugaredLogger
}

// NewClient creates an OpenRouter client. An empty key yields a client
// whose calls fail with ErrServiceUnavailable; callers surface that as a
// missing-credential condition.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		streamHTTP: &http.Client{Timeout: streamTimeout},
		log:        logger.Named("openrouter"),
	}
}

// Configured reports whether the client has a credential
func (c *Client) Configured() bool { return c.apiKey != "" }

// Message is one chat turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatOptions tunes a completion request
type ChatOptions struct {
	Model       string
	Temperature *float64
	MaxTokens   *int
}

// Usage is the token accounting block of a response
type Usage struct {
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	Cost             float64 `json:"cost"`
}

// ChatResponse is a completed (non-streaming) chat result
type ChatResponse struct {
	Content string
	Model   string
	Usage   Usage
}

type usageInclude struct {
	Include bool `json:"include"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []Message     `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
	Usage       *usageInclude `json:"usage,omitempty"`
}

type chatAPIResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Chat performs a synchronous completion with retry on transient failures.
func (c *Client) Chat(ctx context.Context, messages []Message, opts ChatOptions) (*ChatResponse, error) {
	if !c.Configured() {
		return nil, errors.Wrap(errors.ErrServiceUnavailable, "no OpenRouter API key configured")
	}

	body, err := json.Marshal(chatRequest{
		Model:       opts.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal chat request")
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := retryBaseDelay * time.Duration(1<<(attempt-1))
			c.log.Warnw("Retrying chat request", "attempt", attempt, "delay", delay.String())
			select {
			case <-ctx.Done():
				return nil, errors.Wrap(errors.ErrTimeout, "chat request cancelled")
			case <-time.After(delay):
			}
		}

		resp, retryable, err := c.doChat(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}

	return nil, lastErr
}

func (c *Client) doChat(ctx context.Context, body []byte) (*ChatResponse, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, false, errors.Wrap(err, "failed to build chat request")
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, errors.Wrap(errors.ErrTimeout, "chat request cancelled")
		}
		return nil, true, errors.Wrap(err, "chat request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, errors.Wrap(err, "failed to read chat response")
	}

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return nil, true, errors.Newf("chat request returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, errors.Newf("chat request returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed chatAPIResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, false, errors.Wrap(err, "failed to decode chat response")
	}
	if parsed.Error != nil {
		return nil, false, errors.Newf("chat API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, false, errors.New("chat response has no choices")
	}

	return &ChatResponse{
		Content: parsed.Choices[0].Message.Content,
		Model:   parsed.Model,
		Usage:   parsed.Usage,
	}, false, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("HTTP-Referer", "https://github.com/CalvinMagezi/agent-hq-sub000")
	req.Header.Set("X-Title", "AgentHQ Gateway")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
