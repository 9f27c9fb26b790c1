// Package scoring calls AI scoring endpoints with raw image bytes.
package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/sync/semaphore"

	"edge-analyzer/internal/domain/analysis"
)

var (
	ErrScoringFailed     = errors.New("scoring request failed")
	ErrMalformedResponse = errors.New("malformed scoring response")
)

type Scorer interface {
	Score(ctx context.Context, endpoint string, image []byte) ([]analysis.Prediction, error)
}

type HTTPScorer struct {
	client *http.Client
}

func NewHTTPScorer(client *http.Client) *HTTPScorer {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPScorer{client: client}
}

// Score posts the image as application/octet-stream and returns the predictions
// of the recognition body.
func (s *HTTPScorer) Score(ctx context.Context, endpoint string, image []byte) ([]analysis.Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrScoringFailed, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrScoringFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrScoringFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %s", ErrScoringFailed, resp.Status)
	}

	var results analysis.RecognitionResults
	if err := json.Unmarshal(body, &results); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return results.Predictions, nil
}

type limited struct {
	next Scorer
	sem  *semaphore.Weighted
}

// Limit caps the number of in-flight Score calls across every caller of the
// returned scorer.
func Limit(next Scorer, n int) Scorer {
	if n <= 0 {
		return next
	}
	return &limited{next: next, sem: semaphore.NewWeighted(int64(n))}
}

func (l *limited) Score(ctx context.Context, endpoint string, image []byte) ([]analysis.Prediction, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)
	return l.next.Score(ctx, endpoint, image)
}
