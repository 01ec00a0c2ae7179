// Package providers contains the concrete data-source adapters and the
// registry the dispatcher resolves them from. Each adapter translates one
// upstream API into raw records; normalization happens downstream.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"github.com/traceprint/api/internal/app"
	"github.com/traceprint/api/pkg/logger"
)

// maxResponseBytes bounds how much of an upstream response is read.
const maxResponseBytes = 4 << 20

// apiClient is the HTTP client shared by the adapters: one rate limiter per
// upstream, JSON decoding, and uniform status handling. HTTP 429 maps to the
// provider-limit sentinel so the dispatcher records limit_exceeded.
type apiClient struct {
	http    *http.Client
	limiter *rate.Limiter
	baseURL string
	logger  *logger.Logger
}

func newAPIClient(baseURL string, rps float64, log *logger.Logger) *apiClient {
	if rps <= 0 {
		rps = 2
	}
	return &apiClient{
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
		baseURL: baseURL,
		logger:  log,
	}
}

// getJSON performs a rate-limited GET and decodes the response into out.
func (c *apiClient) getJSON(ctx context.Context, path string, query url.Values, headers map[string]string, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return app.ErrProviderLimit
	case resp.StatusCode == http.StatusNotFound:
		// Upstreams commonly report "identifier unknown" as 404; that is an
		// empty result, not an error.
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return errNoContent
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned status %d: %s", path, resp.StatusCode, string(body))
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes))
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// errNoContent signals an upstream 404 treated as an empty result set.
var errNoContent = errors.New("no content")
