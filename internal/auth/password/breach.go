package password

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// DefaultHIBPRangeURL is the Pwned Passwords k-anonymity range endpoint.
const DefaultHIBPRangeURL = "https://api.pwnedpasswords.com/range/"

// BreachChecker reports whether a password appears in a known breach corpus.
type BreachChecker interface {
	IsBreached(ctx context.Context, password string) (bool, error)
}

// HIBPChecker queries Have I Been Pwned. Only the first five hex characters
// of the SHA-1 digest leave the process.
type HIBPChecker struct {
	rangeURL string
	client   *http.Client
}

func NewHIBPChecker(rangeURL string, timeout time.Duration) *HIBPChecker {
	if rangeURL == "" {
		rangeURL = DefaultHIBPRangeURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HIBPChecker{rangeURL: rangeURL, client: &http.Client{Timeout: timeout}}
}

func (c *HIBPChecker) IsBreached(ctx context.Context, password string) (bool, error) {
	sum := sha1.Sum([]byte(password))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:5], digest[5:]

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.rangeURL+prefix, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Add-Padding", "true")
	req.Header.Set("User-Agent", "crafthub-auth")

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("hibp: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("hibp: unexpected status %d", resp.StatusCode)
	}

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		hash, count, ok := strings.Cut(strings.TrimSpace(sc.Text()), ":")
		if !ok || !strings.EqualFold(hash, suffix) {
			continue
		}
		// Padding rows carry a zero count.
		return strings.TrimSpace(count) != "0", nil
	}
	if err := sc.Err(); err != nil {
		return false, fmt.Errorf("hibp: reading response: %w", err)
	}
	return false, nil
}
