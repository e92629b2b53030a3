package authsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
)

func (c *SDKClient) url(path string) string {
	return c.BaseURL + path
}

// doRequest sends an unauthenticated request. Headers are set verbatim.
func (c *SDKClient) doRequest(
	ctx context.Context,
	method, path string,
	body io.Reader,
	headers map[string]string,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("authsdk: build %s %s: %w", method, path, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authsdk: %s %s: %w", method, path, err)
	}
	return resp, nil
}

// doAuthRequest is doRequest with a bearer token, refreshed first when the
// current one has expired.
func (s *Session) doAuthRequest(
	ctx context.Context,
	method, path string,
	body io.Reader,
	headers map[string]string,
) (*http.Response, error) {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return nil, err
	}

	h := map[string]string{"Authorization": "Bearer " + token}
	maps.Copy(h, headers)
	return s.client.doRequest(ctx, method, path, body, h)
}

// decodeJSON consumes resp. A status other than want becomes an *APIError.
func decodeJSON(resp *http.Response, target any, want int) error {
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("authsdk: read body: %w", err)
	}

	if resp.StatusCode != want {
		if err := parseErrorResponse(resp, raw); err != nil {
			return err
		}
		return fmt.Errorf("authsdk: unexpected status %d", resp.StatusCode)
	}

	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("authsdk: decode body: %w", err)
	}
	return nil
}
