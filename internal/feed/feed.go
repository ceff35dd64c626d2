// Package feed fetches raw seismic reports from the upstream public feeds
// and normalizes them into the common event shape.
//
// All adapters share one defensive-default discipline: a missing field never
// aborts parsing, it substitutes a documented default (0 for numbers, the
// "unknown location" sentinel for text, current time for timestamps) and the
// next record is still processed. Only a malformed top-level document makes
// a fetch fail, and then the source simply contributes nothing this tick.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tectonica/quakewatch/internal/models"
)

// UnknownLocation is the sentinel substituted when a feed omits the
// free-text location of a record.
const UnknownLocation = "unknown location"

// Source is a single upstream feed. Fetch returns the normalized events of
// one poll; on any network or parse failure it returns an error and no
// events, and the caller treats the source as empty for this tick.
type Source interface {
	Name() string
	Fetch(ctx context.Context) ([]models.Event, error)
}

// httpGetJSON performs a GET with the client's timeout and decodes the body
// into out. Non-2xx responses are errors.
func httpGetJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// newHTTPClient builds the per-source HTTP client with the bounded fetch
// timeout.
func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
