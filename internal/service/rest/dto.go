package rest

import (
	"time"

	"github.com/vladislavdragonenkov/orders-service/internal/domain"
)

// orderItemPayload — позиция заказа в запросах и ответах API.
type orderItemPayload struct {
	ID         string `json:"id,omitempty"`
	ProductID  string `json:"product_id"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

// orderResponse — представление заказа в ответах API.
type orderResponse struct {
	ID         string             `json:"id"`
	Number     string             `json:"number"`
	UserID     string             `json:"user_id"`
	Address    string             `json:"address"`
	TotalMinor int64              `json:"total_minor"`
	Items      []orderItemPayload `json:"items"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// createOrderRequest принимает заказ в двух формах: списком products либо
// одиночной позицией product/qty/price_minor (упрощённая форма для ручных
// запросов).
type createOrderRequest struct {
	OrderNumber string             `json:"order_number"`
	Address     string             `json:"address"`
	Products    []orderItemPayload `json:"products"`

	Product    string `json:"product"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

// updateOrderRequest — частичное обновление заказа. Nil-адрес означает
// «не менять», позиции применяются upsert'ом по их ID.
type updateOrderRequest struct {
	Address  *string            `json:"address"`
	Products []orderItemPayload `json:"products"`
}

// processOrderRequest — тело запроса оформления заказа из корзины.
type processOrderRequest struct {
	Address string `json:"address"`
}

// processOrderResponse — итог успешного оформления.
type processOrderResponse struct {
	Order         orderResponse `json:"order"`
	EmailResponse string        `json:"email_response"`
	Warnings      []string      `json:"warnings,omitempty"`
}

// tokenResponse — ответ тестового эндпоинта generate-token.
type tokenResponse struct {
	Token string `json:"token"`
}

// errorResponse — единый формат ошибки API.
type errorResponse struct {
	Error string `json:"error"`
}

// ackResponse подтверждает операцию без тела результата.
type ackResponse struct {
	Status string `json:"status"`
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ID:         item.ID,
			ProductID:  item.ProductID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}
	return orderResponse{
		ID:         order.ID,
		Number:     order.Number,
		UserID:     order.UserID,
		Address:    order.Address,
		TotalMinor: order.TotalMinor(),
		Items:      items,
		CreatedAt:  order.CreatedAt,
		UpdatedAt:  order.UpdatedAt,
	}
}

func toOrderResponses(orders []domain.Order) []orderResponse {
	responses := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		responses = append(responses, toOrderResponse(order))
	}
	return responses
}

// items нормализует обе формы запроса в список позиций.
func (r createOrderRequest) items() []orderItemPayload {
	if len(r.Products) > 0 {
		return r.Products
	}
	if r.Product != "" {
		return []orderItemPayload{{
			ProductID:  r.Product,
			Qty:        r.Qty,
			PriceMinor: r.PriceMinor,
		}}
	}
	return nil
}
