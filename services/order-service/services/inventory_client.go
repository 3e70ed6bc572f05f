package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

var (
	ErrStockUnavailable   = errors.New("stock unavailable")
	ErrInventoryBusy      = errors.New("inventory busy, retry later")
	ErrInventoryNotFound  = errors.New("inventory record not found")
	ErrReservationSettled = errors.New("reservation already settled")
)

// InventoryError carries the status and message returned by the inventory
// service. It unwraps to one of the sentinels above when the status has a
// known meaning.
type InventoryError struct {
	Op         string
	StatusCode int
	Message    string
	kind       error
}

func (e *InventoryError) Error() string {
	return fmt.Sprintf("inventory %s: %d %s", e.Op, e.StatusCode, e.Message)
}

func (e *InventoryError) Unwrap() error {
	return e.kind
}

// InventoryClient communicates with the inventory service via HTTP
type InventoryClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewInventoryClient creates a new InventoryClient
func NewInventoryClient(baseURL string) *InventoryClient {
	return &InventoryClient{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ReserveLine is one stock id and quantity in a reserve call.
type ReserveLine struct {
	StockID  uuid.UUID `json:"stock_id"`
	Quantity uint      `json:"quantity"`
}

type reserveRequest struct {
	OwnerID string        `json:"owner_id"`
	Items   []ReserveLine `json:"items"`
}

// Reservation mirrors the inventory service's reservation record.
type Reservation struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   string    `json:"owner_id"`
	StockID   uuid.UUID `json:"stock_id"`
	Quantity  uint      `json:"quantity"`
	Status    string    `json:"status"`
	ExpiresAt time.Time `json:"expires_at"`
}

type reserveResponse struct {
	OwnerID      string         `json:"owner_id"`
	Reservations []*Reservation `json:"reservations"`
}

// ReserveAll reserves every line for owner or none of them. Reservations
// come back in line order.
func (c *InventoryClient) ReserveAll(ctx context.Context, ownerID string, lines []ReserveLine) ([]*Reservation, error) {
	var out reserveResponse
	err := c.post(ctx, "reserve", "/inventory/reserve", reserveRequest{OwnerID: ownerID, Items: lines}, &out)
	if err != nil {
		return nil, err
	}
	return out.Reservations, nil
}

// Release returns a reservation's quantity to available.
func (c *InventoryClient) Release(ctx context.Context, reservationID uuid.UUID) error {
	return c.post(ctx, "release", "/inventory/reservations/"+reservationID.String()+"/release", nil, nil)
}

// Confirm turns a reservation into a sale.
func (c *InventoryClient) Confirm(ctx context.Context, reservationID uuid.UUID) error {
	return c.post(ctx, "confirm", "/inventory/reservations/"+reservationID.String()+"/confirm", nil, nil)
}

func (c *InventoryClient) post(ctx context.Context, op, path string, payload, out any) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("inventory %s request failed: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeInventoryError(op, resp)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func decodeInventoryError(op string, resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}
	_ = json.NewDecoder(resp.Body).Decode(&errResp)

	e := &InventoryError{Op: op, StatusCode: resp.StatusCode, Message: errResp.Error}
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode)
	}
	switch resp.StatusCode {
	case http.StatusNotFound:
		e.kind = ErrInventoryNotFound
	case http.StatusConflict:
		switch {
		case resp.Header.Get("Retry-After") != "":
			e.kind = ErrInventoryBusy
		case op == "reserve":
			e.kind = ErrStockUnavailable
		default:
			e.kind = ErrReservationSettled
		}
	}
	return e
}
