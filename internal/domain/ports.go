package domain

import (
	"context"
	"time"
)

// CartService описывает взаимодействие с внешним cart-сервисом.
// Токен пользователя пробрасывается в каждый вызов.
type CartService interface {
	// Get возвращает текущую корзину владельца токена.
	Get(ctx context.Context, token string) (Cart, error)
	// Clear удаляет корзину владельца токена.
	Clear(ctx context.Context, token string) error
}

// ProductService описывает взаимодействие с внешним product-сервисом.
type ProductService interface {
	// GetQuantity возвращает текущий складской остаток товара.
	GetQuantity(ctx context.Context, token, productID string) (int64, error)
	// SetQuantity записывает новый складской остаток товара.
	SetQuantity(ctx context.Context, token, productID string, qty int64) error
}

// EmailService описывает отправку письма-подтверждения заказа.
type EmailService interface {
	// SendOrderConfirmation отправляет подтверждение и возвращает ответ
	// email-сервиса как есть.
	SendOrderConfirmation(ctx context.Context, token string, order Order) (string, error)
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// IdempotencyRepository хранит состояние обработки запросов по idempotency-key.
type IdempotencyRepository interface {
	CreateProcessing(key, requestHash string, expiresAt time.Time) (IdempotencyRecord, error)
	Get(key string) (IdempotencyRecord, error)
	MarkDone(key string, responseBody []byte, httpStatus int) error
	MarkFailed(key string, responseBody []byte, httpStatus int) error
	DeleteExpired(before time.Time, limit int) (int, error)
}

// CheckoutStep задаёт константы шагов оформления для метрик и логов.
type CheckoutStep string

const (
	CheckoutStepFetchCart  CheckoutStep = "fetch_cart"
	CheckoutStepInventory  CheckoutStep = "reconcile_inventory"
	CheckoutStepPersist    CheckoutStep = "persist_order"
	CheckoutStepNotify     CheckoutStep = "notify"
	CheckoutStepClearCart  CheckoutStep = "clear_cart"
	CheckoutStepCompensate CheckoutStep = "compensate"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
