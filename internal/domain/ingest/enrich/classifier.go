// Package enrich defines the external enrichment collaborator: a
// best-effort classifier that may annotate imported rows with a
// canonical merchant and a suggested category. It is never required
// for correctness; its failure or timeout must not fail an import.
package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Entry is one deduplicated description submitted for classification.
type Entry struct {
	Description       string `json:"description"`
	HeuristicMerchant string `json:"heuristicMerchant,omitempty"`
}

// Suggestion is the classifier's annotation for one entry. Zero-value
// fields mean "no opinion".
type Suggestion struct {
	Merchant   string  `json:"merchant,omitempty"`
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Classifier annotates a batch of entries. Implementations must honor
// context cancellation; callers bound the batch size and the deadline.
type Classifier interface {
	Classify(ctx context.Context, entries []Entry) ([]Suggestion, error)
}

// Noop is the default classifier: no annotations, no network.
type Noop struct{}

// Classify returns an empty suggestion per entry.
func (Noop) Classify(_ context.Context, entries []Entry) ([]Suggestion, error) {
	return make([]Suggestion, len(entries)), nil
}

// HTTPClassifier calls a JSON classification endpoint. The request is
// bounded by the client timeout and the caller's context.
type HTTPClassifier struct {
	URL    string
	Client *http.Client
}

// NewHTTPClassifier builds a classifier against the given endpoint.
func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

type classifyRequest struct {
	Entries []Entry `json:"entries"`
}

type classifyResponse struct {
	Suggestions []Suggestion `json:"suggestions"`
}

// Classify posts the batch and decodes per-entry suggestions. A
// response of the wrong length is an error so a partial answer is
// never misaligned with its entries.
func (c *HTTPClassifier) Classify(ctx context.Context, entries []Entry) ([]Suggestion, error) {
	body, err := json.Marshal(classifyRequest{Entries: entries})
	if err != nil {
		return nil, fmt.Errorf("encode classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("classify call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classify call: unexpected status %d", resp.StatusCode)
	}

	var decoded classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode classify response: %w", err)
	}
	if len(decoded.Suggestions) != len(entries) {
		return nil, fmt.Errorf("classify response length mismatch: got %d, want %d", len(decoded.Suggestions), len(entries))
	}
	return decoded.Suggestions, nil
}
