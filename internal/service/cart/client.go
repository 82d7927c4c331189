package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/orders-service/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Client — HTTP-клиент cart-сервиса. Токен пользователя пробрасывается
// в каждый запрос как Bearer.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ domain.CartService = (*Client)(nil)

type cartItemPayload struct {
	ProductID  string `json:"product_id"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

type cartPayload struct {
	UserID   string            `json:"user_id"`
	Products []cartItemPayload `json:"products"`
}

// NewClient создаёт клиент cart-сервиса. Нулевой timeout заменяется
// значением по умолчанию.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Get возвращает текущую корзину владельца токена.
func (c *Client) Get(ctx context.Context, token string) (domain.Cart, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/cart", nil)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("build cart request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Cart{}, &domain.RemoteError{Service: "cart", Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("read cart response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Cart{}, &domain.RemoteError{
			Service:    "cart",
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	var payload cartPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.Cart{}, fmt.Errorf("unmarshal cart response: %w", err)
	}

	result := domain.Cart{
		UserID: payload.UserID,
		Items:  make([]domain.CartItem, 0, len(payload.Products)),
	}
	for _, item := range payload.Products {
		result.Items = append(result.Items, domain.CartItem{
			ProductID:  item.ProductID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}

	return result, nil
}

// Clear удаляет корзину владельца токена.
func (c *Client) Clear(ctx context.Context, token string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/cart", nil)
	if err != nil {
		return fmt.Errorf("build clear cart request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.RemoteError{Service: "cart", Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return &domain.RemoteError{
			Service:    "cart",
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}
	return nil
}
