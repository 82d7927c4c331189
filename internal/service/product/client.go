package product

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/vladislavdragonenkov/orders-service/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Client — HTTP-клиент product-сервиса для чтения и записи складских
// остатков.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ domain.ProductService = (*Client)(nil)

type quantityPayload struct {
	Quantity int64 `json:"quantity"`
}

// NewClient создаёт клиент product-сервиса.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetQuantity возвращает текущий остаток товара.
func (c *Client) GetQuantity(ctx context.Context, token, productID string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.productURL(productID), nil)
	if err != nil {
		return 0, fmt.Errorf("build get quantity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, &domain.RemoteError{Service: "product", Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read quantity response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, &domain.RemoteError{
			Service:    "product",
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	var payload quantityPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return 0, fmt.Errorf("unmarshal quantity response: %w", err)
	}
	return payload.Quantity, nil
}

// SetQuantity записывает новый остаток товара.
func (c *Client) SetQuantity(ctx context.Context, token, productID string, qty int64) error {
	payload, err := json.Marshal(quantityPayload{Quantity: qty})
	if err != nil {
		return fmt.Errorf("marshal quantity request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.productURL(productID), bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build set quantity request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.RemoteError{Service: "product", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return &domain.RemoteError{
			Service:    "product",
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}
	return nil
}

func (c *Client) productURL(productID string) string {
	return c.baseURL + "/products/" + url.PathEscape(productID)
}
