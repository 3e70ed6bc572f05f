package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// OrderClient tells the order service that an order's reservations expired.
type OrderClient struct {
	baseURL    string
	httpClient *http.Client
}

func NewOrderClient(baseURL string) *OrderClient {
	return &OrderClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// CancelExpiredOrder calls POST /orders/:id/expire. A 404 or 409 means the
// order is gone or already settled, which is not an error for the reaper.
func (c *OrderClient) CancelExpiredOrder(ctx context.Context, orderID string) error {
	endpoint := fmt.Sprintf("%s/orders/%s/expire", c.baseURL, url.PathEscape(orderID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("order service request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusNoContent, http.StatusNotFound, http.StatusConflict:
		return nil
	default:
		return fmt.Errorf("order service returned %d for order %s", resp.StatusCode, orderID)
	}
}
