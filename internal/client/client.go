// Package client is a small HTTP client for the order API, used by the
// order watcher to poll for state it may have missed on the socket.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/picknpay/internal/domain"
	"github.com/fjod/picknpay/pkg/circuitbreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const identityHeader = "X-User-Email"

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
}

type Client struct {
	baseURL  string
	identity string
	http     *http.Client
	breaker  *circuitbreaker.Breaker[[]*domain.Order]
}

// New builds a client that acts as identity against baseURL.
func New(baseURL, identity string, timeout time.Duration, logger *slog.Logger) *Client {
	settings := circuitbreaker.DefaultSettings("order-api")
	// 4xx answers are the caller's problem, not the server's.
	settings.IsSuccessful = func(err error) bool {
		var apiErr *APIError
		return err == nil || (errors.As(err, &apiErr) && apiErr.StatusCode < http.StatusInternalServerError)
	}

	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		identity: identity,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker: circuitbreaker.New[[]*domain.Order](settings, logger),
	}
}

// ListOrders fetches every order of owner, newest first.
func (c *Client) ListOrders(ctx context.Context, owner string) ([]*domain.Order, error) {
	orders, err := c.breaker.Execute(func() ([]*domain.Order, error) {
		return c.listOrders(ctx, owner)
	})
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return nil, fmt.Errorf("%w: %w", domain.ErrUpstreamUnavailable, err)
	}
	return orders, err
}

func (c *Client) listOrders(ctx context.Context, owner string) ([]*domain.Order, error) {
	endpoint := c.baseURL + "/api/orders/user/" + url.PathEscape(owner)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set(identityHeader, c.identity)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readAPIError(resp)
	}

	var orders []*domain.Order
	if err := json.NewDecoder(resp.Body).Decode(&orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

func readAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Error string `json:"error"`
		Code  string `json:"code"`
	}
	if json.Unmarshal(body, &payload) == nil && payload.Error != "" {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Error
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
