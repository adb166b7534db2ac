// Package storefront implements the storefront API client. It is the
// engine's window onto the live cart: snapshot fetches, reward line
// mutations, and (optionally) the published rule catalog.
package storefront

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cartperks/cartperks-engine/internal/domain/cart"
	"github.com/cartperks/cartperks-engine/internal/domain/rule"
	"github.com/cartperks/cartperks-engine/internal/domain/shared"
	"github.com/cartperks/cartperks-engine/pkg/circuitbreaker"
	"github.com/cartperks/cartperks-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the storefront API client.
type ClientConfig struct {
	// BaseURL is the storefront API base URL.
	BaseURL string

	// AccessToken authenticates requests, sent as a bearer token.
	AccessToken string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client talks to the storefront API. It implements cart.Source,
// cart.Mutator and rule.CatalogSource. Cart reads ride a circuit breaker;
// every call retries transient failures with backoff.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	breaker    *circuitbreaker.CircuitBreaker
	retrier    *retry.Retrier
	mapper     *Mapper
}

// NewClient creates a new storefront API client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	c := &Client{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		logger:  config.Logger,
		retrier: retry.StorefrontRetrier(),
		mapper:  NewMapper(),
	}
	c.breaker = circuitbreaker.StorefrontBreaker(func(name string, from, to circuitbreaker.State) {
		c.logger.Warn("circuit breaker state change",
			slog.String("breaker", name),
			slog.String("from", from.String()),
			slog.String("to", to.String()))
	})
	return c
}

// ══════════════════════════════════════════════════════════════════════════════
// CART OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Fetch implements cart.Source.
func (c *Client) Fetch(ctx context.Context, session shared.SessionToken) (*cart.Snapshot, error) {
	var dto CartDTO
	path := fmt.Sprintf("/api/v1/sessions/%s/cart", url.PathEscape(session.String()))
	if err := c.getJSON(ctx, path, &dto); err != nil {
		return nil, fmt.Errorf("%w: fetch cart: %v", shared.ErrCartUnavailable, err)
	}
	return c.mapper.ToSnapshot(&dto), nil
}

// AddLine implements cart.Mutator.
func (c *Client) AddLine(ctx context.Context, session shared.SessionToken, intent cart.AddLineIntent) error {
	path := fmt.Sprintf("/api/v1/sessions/%s/cart/add", url.PathEscape(session.String()))
	if err := c.postJSON(ctx, path, c.mapper.ToAddLineRequest(intent)); err != nil {
		return fmt.Errorf("%w: add line: %v", shared.ErrMutationFailed, err)
	}
	c.logger.Debug("cart line added",
		slog.String("variant", intent.VariantID.String()),
		slog.Int("quantity", intent.Quantity))
	return nil
}

// ChangeLine implements cart.Mutator.
func (c *Client) ChangeLine(ctx context.Context, session shared.SessionToken, intent cart.ChangeLineIntent) error {
	path := fmt.Sprintf("/api/v1/sessions/%s/cart/change", url.PathEscape(session.String()))
	if err := c.postJSON(ctx, path, c.mapper.ToChangeLineRequest(intent)); err != nil {
		return fmt.Errorf("%w: change line %d: %v", shared.ErrMutationFailed, intent.LineIndex, err)
	}
	c.logger.Debug("cart line changed",
		slog.Int("line", intent.LineIndex),
		slog.Int("quantity", intent.Quantity))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CATALOG OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// FetchCatalog implements rule.CatalogSource for deployments where the
// storefront publishes the merchant catalog itself.
func (c *Client) FetchCatalog(ctx context.Context, _ shared.SessionToken) (*rule.RawCatalog, error) {
	var raw rule.RawCatalog
	if err := c.getJSON(ctx, "/api/v1/perks/catalog", &raw); err != nil {
		return nil, fmt.Errorf("%w: fetch catalog: %v", shared.ErrCatalogUnavailable, err)
	}
	return &raw, nil
}

// CatalogSource adapts the client to the rule.CatalogSource interface.
func (c *Client) CatalogSource() rule.CatalogSource {
	return catalogSourceFunc(c.FetchCatalog)
}

type catalogSourceFunc func(ctx context.Context, session shared.SessionToken) (*rule.RawCatalog, error)

func (f catalogSourceFunc) Fetch(ctx context.Context, session shared.SessionToken) (*rule.RawCatalog, error) {
	return f(ctx, session)
}

// ══════════════════════════════════════════════════════════════════════════════
// HTTP PLUMBING
// ══════════════════════════════════════════════════════════════════════════════

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.doRequest(ctx, http.MethodGet, path, nil, out)
		})
	})
}

func (c *Client) postJSON(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return retry.Permanent(fmt.Errorf("encode request: %w", err))
	}
	return c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retrier.Do(ctx, func(ctx context.Context) error {
			return c.doRequest(ctx, http.MethodPost, path, payload, nil)
		})
	})
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.config.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.AccessToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.Retryable(fmt.Errorf("execute request: %w", err))
	}
	defer resp.Body.Close()

	c.logger.Debug("storefront request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("latency", time.Since(start)))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil

	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= 500:
		return retry.Retryable(fmt.Errorf("storefront returned %d: %s", resp.StatusCode, readError(resp.Body)))

	default:
		return retry.Permanent(fmt.Errorf("storefront returned %d: %s", resp.StatusCode, readError(resp.Body)))
	}
}

// readError extracts the storefront error message, falling back to the raw
// body when the envelope does not parse.
func readError(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil || len(data) == 0 {
		return "no response body"
	}
	var e errorResponse
	if json.Unmarshal(data, &e) == nil && e.Message != "" {
		return e.Message
	}
	return string(data)
}
