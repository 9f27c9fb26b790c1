package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

var ErrCaptureFailed = errors.New("camera capture failed")

// maxImageBytes caps a single snapshot read.
const maxImageBytes = 32 << 20

type Credentials struct {
	Username string
	Password string
}

// ImageSource retrieves one image per call.
type ImageSource interface {
	Fetch(ctx context.Context, endpoint string, creds Credentials) ([]byte, error)
}

// HTTPSource fetches snapshots with HTTP basic auth. Credentials are set on each
// request, never on the shared client.
type HTTPSource struct {
	client *http.Client
}

func NewHTTPSource(client *http.Client) *HTTPSource {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{client: client}
}

func (s *HTTPSource) Fetch(ctx context.Context, endpoint string, creds Credentials) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrCaptureFailed, err)
	}
	if creds.Username != "" || creds.Password != "" {
		req.SetBasicAuth(creds.Username, creds.Password)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("%w: unexpected status %s", ErrCaptureFailed, resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrCaptureFailed, err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("%w: image exceeds %d bytes", ErrCaptureFailed, maxImageBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrCaptureFailed)
	}
	return data, nil
}
