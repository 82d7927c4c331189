package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/orders-service/internal/domain"
)

const defaultTimeout = 10 * time.Second

// Client — HTTP-клиент email-сервиса, отправляющего подтверждение заказа.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ domain.EmailService = (*Client)(nil)

type confirmationItem struct {
	ProductID  string `json:"product_id"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

type confirmationRequest struct {
	OrderID    string             `json:"order_id"`
	Number     string             `json:"number"`
	UserID     string             `json:"user_id"`
	Address    string             `json:"address"`
	TotalMinor int64              `json:"total_minor"`
	Items      []confirmationItem `json:"items"`
}

// NewClient создаёт клиент email-сервиса.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SendOrderConfirmation отправляет письмо-подтверждение и возвращает ответ
// email-сервиса как есть.
func (c *Client) SendOrderConfirmation(ctx context.Context, token string, order domain.Order) (string, error) {
	request := confirmationRequest{
		OrderID:    order.ID,
		Number:     order.Number,
		UserID:     order.UserID,
		Address:    order.Address,
		TotalMinor: order.TotalMinor(),
		Items:      make([]confirmationItem, 0, len(order.Items)),
	}
	for _, item := range order.Items {
		request.Items = append(request.Items, confirmationItem{
			ProductID:  item.ProductID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}

	payload, err := json.Marshal(request)
	if err != nil {
		return "", fmt.Errorf("marshal confirmation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/send-email", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build confirmation request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &domain.RemoteError{Service: "email", Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read confirmation response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", &domain.RemoteError{
			Service:    "email",
			StatusCode: resp.StatusCode,
			Message:    string(body),
		}
	}

	return string(body), nil
}
