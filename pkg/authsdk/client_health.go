package authsdk

import (
	"context"
	"net/http"
	"time"
)

// GetLiveness reports whether the process is up.
func (c *SDKClient) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	return c.getHealth(ctx, "/livez")
}

// GetReadiness reports whether the database (and the shared code store,
// when there is one) answer. A degraded service yields a 503 *APIError.
func (c *SDKClient) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	return c.getHealth(ctx, "/readyz")
}

// WaitReady polls /readyz every interval until it succeeds or ctx ends.
// The last readiness error is returned on timeout.
func (c *SDKClient) WaitReady(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var last error
	for {
		_, err := c.GetReadiness(ctx)
		if err == nil {
			return nil
		}
		// A request cut short by ctx says nothing about readiness.
		if ctx.Err() != nil && last != nil {
			return last
		}
		last = err

		select {
		case <-ctx.Done():
			return last
		case <-ticker.C:
		}
	}
}

func (c *SDKClient) getHealth(ctx context.Context, path string) (*HealthResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}

	var health HealthResponse
	if err := decodeJSON(resp, &health, http.StatusOK); err != nil {
		return nil, err
	}
	return &health, nil
}
