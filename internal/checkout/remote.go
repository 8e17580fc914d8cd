package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/obi-nwosu/backend-chopnow/internal/pricing"
	"github.com/obi-nwosu/backend-chopnow/internal/resilience"
)

// ErrRemoteUnavailable wraps transport-level failures talking to the
// calculation service so callers can trigger the fallback policy.
var ErrRemoteUnavailable = errors.New("calculation service unavailable")

// Calculator prices an order input. The HTTP implementation talks to the
// remote calculation service; tests substitute their own.
type Calculator interface {
	Calculate(ctx context.Context, in pricing.Input) (pricing.Result, error)
}

// HTTPCalculator calls the remote calculate-order-totals endpoint.
type HTTPCalculator struct {
	BaseURL string
	APIKey  string
	Client  *http.Client

	// Breaker, when set, short-circuits calls while the calculation
	// service is tripping so checkouts degrade to provisional totals
	// without waiting out the full timeout.
	Breaker *resilience.Breaker
}

// NewHTTPCalculator builds a calculator with a traced HTTP client.
func NewHTTPCalculator(baseURL, apiKey string, timeout time.Duration) *HTTPCalculator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPCalculator{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		APIKey:  strings.TrimSpace(apiKey),
		Client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// Calculate posts the input and decodes the authoritative result. The
// returned result is always tagged with the server source regardless of what
// the wire payload claims.
func (c *HTTPCalculator) Calculate(ctx context.Context, in pricing.Input) (pricing.Result, error) {
	if c == nil || c.BaseURL == "" {
		return pricing.Result{}, ErrRemoteUnavailable
	}
	if c.Breaker != nil && !c.Breaker.Allow() {
		return pricing.Result{}, fmt.Errorf("%w: %v", ErrRemoteUnavailable, resilience.ErrOpen)
	}
	in.Source = pricing.SourceServer
	body, err := json.Marshal(in)
	if err != nil {
		return pricing.Result{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/calculate-order-totals", bytes.NewReader(body))
	if err != nil {
		return pricing.Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("X-Api-Key", c.APIKey)
	}

	resp, err := c.Client.Do(req)
	if err != nil {
		c.report(false)
		return pricing.Result{}, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusInternalServerError {
		c.report(false)
		return pricing.Result{}, fmt.Errorf("%w: status %d", ErrRemoteUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		// The service is up and answering; a rejected input is not a
		// breaker failure.
		c.report(true)
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return pricing.Result{}, fmt.Errorf("calculation service rejected input: status %d: %s", resp.StatusCode, snippet)
	}

	var result pricing.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.report(false)
		return pricing.Result{}, fmt.Errorf("%w: decode: %v", ErrRemoteUnavailable, err)
	}
	c.report(true)
	result.Source = pricing.SourceServer
	return result, nil
}

func (c *HTTPCalculator) report(success bool) {
	if c.Breaker != nil {
		c.Breaker.Report(success)
	}
}
