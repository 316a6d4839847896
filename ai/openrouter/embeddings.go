package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/CalvinMagezi/agent-hq-sub000/errors"
)

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingAPIResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Usage Usage `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Embeddings computes vectors for a batch of inputs. Result order matches
// input order.
func (c *Client) Embeddings(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	if !c.Configured() {
		return nil, errors.Wrap(errors.ErrServiceUnavailable, "no OpenRouter API key configured")
	}
	if model == "" {
		return nil, errors.Wrap(errors.ErrInvalidRequest, "no embedding model configured")
	}
	if len(inputs) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(embeddingRequest{Model: model, Input: inputs})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal embedding request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build embedding request")
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "embedding request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read embedding response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Newf("embedding request returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed embeddingAPIResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, errors.Wrap(err, "failed to decode embedding response")
	}
	if parsed.Error != nil {
		return nil, errors.Newf("embedding API error: %s", parsed.Error.Message)
	}

	out := make([][]float32, len(inputs))
	for _, d := range parsed.Data {
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = d.Embedding
		}
	}
	return out, nil
}
