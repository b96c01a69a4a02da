package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"phivault/internal/core"
)

// Recognizer is an external entity recognition service. Implementations
// return raw spans; the Detector merges, deduplicates, and filters them.
type Recognizer interface {
	Recognize(ctx context.Context, text string) ([]core.Span, error)
}

// RecognizerClient calls an HTTP entity recognition endpoint. The request is
// POST {"text": ...}; the response mirrors the common NER shape with begin
// and end byte offsets per entity.
type RecognizerClient struct {
	endpoint string
	client   *http.Client
}

// NewRecognizerClient creates a client for the given endpoint. A zero
// timeout defaults to 3s; recognition must stay cheap relative to the
// request it serves.
func NewRecognizerClient(endpoint string, timeout time.Duration) *RecognizerClient {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &RecognizerClient{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type recognizeRequest struct {
	Text string `json:"text"`
}

type recognizeResponse struct {
	Entities []struct {
		Type        string  `json:"type"`
		BeginOffset int     `json:"begin_offset"`
		EndOffset   int     `json:"end_offset"`
		Score       float64 `json:"score"`
	} `json:"entities"`
}

func (c *RecognizerClient) Recognize(ctx context.Context, text string) ([]core.Span, error) {
	body, err := json.Marshal(recognizeRequest{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to encode recognition request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create recognition request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recognition request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("recognition service returned status %d", resp.StatusCode)
	}

	var out recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode recognition response: %w", err)
	}

	spans := make([]core.Span, 0, len(out.Entities))
	for _, e := range out.Entities {
		if e.BeginOffset < 0 || e.EndOffset > len(text) || e.BeginOffset >= e.EndOffset {
			continue
		}
		spans = append(spans, core.Span{
			Type:       core.EntityType(e.Type),
			Start:      e.BeginOffset,
			End:        e.EndOffset,
			Confidence: e.Score,
			Value:      text[e.BeginOffset:e.EndOffset],
		})
	}
	return spans, nil
}
