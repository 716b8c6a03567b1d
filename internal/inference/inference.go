// Package inference produces per-article NLP results: a summary, a
// sentiment label, and a topic set. Client talks to a model-serving
// endpoint; Lexicon is a deterministic offline engine used when no
// endpoint is configured.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/seenimoa/newsbrief/pkg/models"
)

// Result is the model output for one article's text.
type Result struct {
	Summary   string           `json:"summary"`
	Sentiment models.Sentiment `json:"sentiment"`
	Topics    []string         `json:"topics"`
}

// Client calls a remote model-serving endpoint. The endpoint accepts
// {"text": ...} and returns {"summary", "sentiment", "topics"}.
type Client struct {
	endpoint string
	client   *http.Client
}

// NewClient creates an inference client for endpoint with a per-call
// timeout.
func NewClient(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Infer runs summarization, sentiment classification and topic
// extraction on text via the remote model server.
func (c *Client) Infer(ctx context.Context, text string) (*Result, error) {
	payload, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inference call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("inference call: status %d", resp.StatusCode)
	}

	var out Result
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("inference response: %w", err)
	}
	if !out.Sentiment.Valid() {
		out.Sentiment = models.SentimentNeutral
	}
	return &out, nil
}
