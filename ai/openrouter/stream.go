package openrouter

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
)

type streamChunk struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// ChatStream performs a streaming completion, invoking onDelta for each
// text fragment as it arrives. Returns the assembled text and usage once
// the stream finishes. Streaming requests are not retried; a stream that
// fails after emitting deltas cannot be transparently replayed.
func (c *Client) ChatStream(ctx context.Context, messages []Message, opts ChatOptions, onDelta func(delta string)) (*ChatResponse, error) {
	if !c.Configured() {
		return nil, errors.Wrap(errors.ErrServiceUnavailable, "no OpenRouter API key configured")
	}

	body, err := json.Marshal(chatRequest{
		Model:       opts.Model,
		Messages:    messages,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stream:      true,
		// streams omit the usage block unless asked
		Usage: &usageInclude{Include: true},
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal stream request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build stream request")
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamHTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrTimeout, "stream request cancelled")
		}
		return nil, errors.Wrap(err, "stream request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Newf("stream request returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var (
		full  strings.Builder
		usage Usage
		model string
	)

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// OpenRouter interleaves comment keep-alives; skip noise
			continue
		}
		if chunk.Error != nil {
			return nil, errors.Newf("stream API error: %s", chunk.Error.Message)
		}
		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content != "" {
				full.WriteString(choice.Delta.Content)
				onDelta(choice.Delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(errors.ErrTimeout, "stream cancelled")
		}
		return nil, errors.Wrap(err, "stream read failed")
	}

	return &ChatResponse{Content: full.String(), Model: model, Usage: usage}, nil
}
