package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-service/internal/auth"
	"github.com/vladislavdragonenkov/orders-service/internal/domain"
	"github.com/vladislavdragonenkov/orders-service/internal/service/checkout"
)

// Тестовый пользователь для эндпоинта generate-token.
const (
	testTokenUserID = "test-user"
	testTokenName   = "Test User"
)

// CheckoutService — контракт оркестратора оформления заказа для HTTP-слоя.
type CheckoutService interface {
	ProcessOrder(ctx context.Context, identity domain.Identity, address string) (checkout.Result, error)
}

// OrderHandler обслуживает REST-операции над заказами.
type OrderHandler struct {
	orders      domain.OrderRepository
	checkout    CheckoutService
	idempotency domain.IdempotencyRepository
	secret      []byte
	logger      *log.Entry
	now         func() time.Time
}

// NewOrderHandler создает обработчик заказов. idempotency может быть nil —
// тогда заголовок Idempotency-Key игнорируется.
func NewOrderHandler(
	orders domain.OrderRepository,
	checkoutService CheckoutService,
	idempotency domain.IdempotencyRepository,
	secret []byte,
	logger *log.Entry,
) *OrderHandler {
	if logger == nil {
		logger = log.WithField("component", "rest")
	}
	return &OrderHandler{
		orders:      orders,
		checkout:    checkoutService,
		idempotency: idempotency,
		secret:      secret,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// ListMyOrders обрабатывает GET /orders/myorders.
// Пустой список намеренно отдается как 404: клиенты исторически различают
// «заказов нет» и «пустая страница» по статусу.
func (h *OrderHandler) ListMyOrders(c *gin.Context) {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "identity is missing"})
		return
	}

	orders, err := h.orders.ListByUser(identity.UserID, 0)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}
	if len(orders) == 0 {
		c.JSON(http.StatusNotFound, errorResponse{Error: "no orders found"})
		return
	}

	c.JSON(http.StatusOK, toOrderResponses(orders))
}

// GetMyOrder обрабатывает GET /orders/myorders/:id.
func (h *OrderHandler) GetMyOrder(c *gin.Context) {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "identity is missing"})
		return
	}

	order, err := h.orders.Get(c.Param("id"), identity.UserID)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(order))
}

// CreateOrder обрабатывает POST /orders.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "identity is missing"})
		return
	}

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	items := req.items()
	if len(items) == 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: domain.ErrItemsRequired.Error()})
		return
	}

	now := h.now()
	number := strings.TrimSpace(req.OrderNumber)
	if number == "" {
		number = domain.NewOrderNumber(now)
	}
	order := domain.Order{
		ID:        uuid.NewString(),
		UserID:    identity.UserID,
		Number:    number,
		Address:   req.Address,
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, item := range items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:         uuid.NewString(),
			ProductID:  item.ProductID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
			// Сдвиг сохраняет порядок позиций при сортировке по created_at.
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		})
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: errs[0].Error()})
		return
	}

	if err := h.orders.Create(order); err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"items":    len(order.Items),
	}).Info("order created")

	c.JSON(http.StatusCreated, toOrderResponse(order))
}

// UpdateOrder обрабатывает PATCH /orders/:id.
func (h *OrderHandler) UpdateOrder(c *gin.Context) {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "identity is missing"})
		return
	}

	var req updateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	now := h.now()
	patch := domain.OrderPatch{Address: req.Address}
	for i, item := range req.Products {
		id := item.ID
		if id == "" {
			id = uuid.NewString()
		}
		patch.Items = append(patch.Items, domain.OrderItem{
			ID:         id,
			ProductID:  item.ProductID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
			CreatedAt:  now.Add(time.Duration(i) * time.Millisecond),
		})
	}
	if errs := patch.Validate(); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: errs[0].Error()})
		return
	}

	order, err := h.orders.Update(c.Param("id"), identity.UserID, patch)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, toOrderResponse(order))
}

// DeleteOrder обрабатывает DELETE /orders/:id.
func (h *OrderHandler) DeleteOrder(c *gin.Context) {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "identity is missing"})
		return
	}

	if err := h.orders.Delete(c.Param("id"), identity.UserID); err != nil {
		writeError(c, h.logger, err)
		return
	}

	h.logger.WithFields(log.Fields{
		"order_id": c.Param("id"),
		"user_id":  identity.UserID,
	}).Info("order deleted")

	c.JSON(http.StatusOK, ackResponse{Status: "deleted"})
}

// ProcessOrder обрабатывает POST /orders/process-order: оформляет заказ из
// текущей корзины пользователя. Поддерживает заголовок Idempotency-Key.
func (h *OrderHandler) ProcessOrder(c *gin.Context) {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "identity is missing"})
		return
	}

	body, err := readBody(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "failed to read request body"})
		return
	}

	var req processOrderRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
			return
		}
	}
	if req.Address == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "address is required"})
		return
	}

	h.withIdempotency(c, body, func() (int, any) {
		result, err := h.checkout.ProcessOrder(c.Request.Context(), identity, req.Address)
		if err != nil {
			return errorStatusAndBody(c, h.logger, err)
		}
		return http.StatusOK, processOrderResponse{
			Order:         toOrderResponse(result.Order),
			EmailResponse: result.EmailResponse,
			Warnings:      result.Warnings,
		}
	})
}

// GenerateToken обрабатывает GET /orders/generate-token — тестовая утилита,
// выпускающая токен фиксированного пользователя без аутентификации.
func (h *OrderHandler) GenerateToken(c *gin.Context) {
	token, err := auth.Sign(h.secret, testTokenUserID, testTokenName, auth.DefaultTokenTTL)
	if err != nil {
		h.logger.WithError(err).Error("failed to sign test token")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, tokenResponse{Token: token})
}
