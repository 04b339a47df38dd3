// Package cart implements the cart collaborator used by order creation.
package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"ordercore/domain"
)

const dependencyName = "cart"

// DefaultTimeout bounds each call to the cart service.
const DefaultTimeout = 3 * time.Second

// HTTPClient talks to the cart service over HTTP. The owner travels in the
// X-User-ID header, the same identity header the gateway sets for us.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

var _ domain.CartService = (*HTTPClient)(nil)

// NewHTTPClient returns a client for baseURL. A zero timeout uses DefaultTimeout.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type cartResponse struct {
	Items []domain.CartLine `json:"items"`
}

func (c *HTTPClient) do(ctx context.Context, method, ownerID string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/cart", nil)
	if err != nil {
		return nil, domain.NewDependencyUnavailableError(dependencyName, err)
	}
	req.Header.Set("X-User-ID", ownerID)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.NewDependencyUnavailableError(dependencyName, err)
	}
	if resp.StatusCode >= 500 {
		_ = resp.Body.Close()
		return nil, domain.NewDependencyUnavailableError(dependencyName, fmt.Errorf("status %d", resp.StatusCode))
	}
	return resp, nil
}

// GetCart returns the owner's cart lines. A 404 is an empty cart.
func (c *HTTPClient) GetCart(ctx context.Context, ownerID string) ([]domain.CartLine, error) {
	resp, err := c.do(ctx, http.MethodGet, ownerID)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, domain.NewDependencyUnavailableError(dependencyName, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var body cartResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&body); err != nil {
		return nil, domain.NewDependencyUnavailableError(dependencyName, fmt.Errorf("decode cart: %w", err))
	}
	return body.Items, nil
}

// ClearCart empties the owner's cart.
func (c *HTTPClient) ClearCart(ctx context.Context, ownerID string) error {
	resp, err := c.do(ctx, http.MethodDelete, ownerID)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusNotFound {
		return domain.NewDependencyUnavailableError(dependencyName, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}
	return nil
}
