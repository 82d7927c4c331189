package checkout

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-service/internal/domain"
	"github.com/vladislavdragonenkov/orders-service/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/orders-service/internal/metrics"
)

// Result — итог успешного оформления заказа.
type Result struct {
	Order         domain.Order
	EmailResponse string
	// Warnings собирает неуспехи best-effort шагов (письмо, очистка
	// корзины), которые не откатывают заказ.
	Warnings []string
}

// Orchestrator выполняет последовательность оформления заказа:
// FetchCart → ReconcileInventory → PersistOrder → Notify → ClearCart.
// Первые три шага обязательны; при их провале уже списанные остатки
// возвращаются компенсирующим шагом.
type Orchestrator struct {
	orders   domain.OrderRepository
	outbox   domain.OutboxRepository
	carts    domain.CartService
	products domain.ProductService
	emails   domain.EmailService
	logger   *log.Entry
	metrics  *metrics.CheckoutMetrics
	now      func() time.Time
}

// New создаёт рабочий экземпляр оркестратора.
func New(
	orders domain.OrderRepository,
	outbox domain.OutboxRepository,
	carts domain.CartService,
	products domain.ProductService,
	emails domain.EmailService,
	logger *log.Entry,
) *Orchestrator {
	o := NewWithoutMetrics(orders, outbox, carts, products, emails, logger)
	o.metrics = metrics.NewCheckoutMetrics()
	return o
}

// NewWithoutMetrics создаёт оркестратор без метрик (для тестов).
func NewWithoutMetrics(
	orders domain.OrderRepository,
	outbox domain.OutboxRepository,
	carts domain.CartService,
	products domain.ProductService,
	emails domain.EmailService,
	logger *log.Entry,
) *Orchestrator {
	if logger == nil {
		logger = log.New().WithField("component", "checkout")
	}
	return &Orchestrator{
		orders:   orders,
		outbox:   outbox,
		carts:    carts,
		products: products,
		emails:   emails,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ProcessOrder оформляет заказ из текущей корзины владельца токена.
func (o *Orchestrator) ProcessOrder(ctx context.Context, identity domain.Identity, address string) (Result, error) {
	start := o.now()
	if o.metrics != nil {
		o.metrics.RecordCheckoutStarted()
	}
	defer func() {
		if o.metrics != nil {
			o.metrics.RecordCheckoutFinished()
			o.metrics.RecordCheckoutDuration(time.Since(start))
		}
	}()

	logger := o.logger.WithField("user_id", identity.UserID)

	cart, err := o.fetchCart(ctx, identity)
	if err != nil {
		o.failCheckout(logger, identity, "", err)
		return Result{}, err
	}

	applied, err := o.reconcileInventory(ctx, identity, cart)
	if err != nil {
		o.compensate(ctx, identity, applied)
		o.failCheckout(logger, identity, "", err)
		return Result{}, err
	}

	order, err := o.persistOrder(identity, address, cart)
	if err != nil {
		o.compensate(ctx, identity, applied)
		o.failCheckout(logger, identity, order.ID, err)
		return Result{}, err
	}

	o.emitOrderEvent(order, kafka.EventTypeOrderCreated, nil)
	o.emitOrderEvent(order, kafka.EventTypeCheckoutCompleted, map[string]interface{}{
		"total_minor": order.TotalMinor(),
	})
	if o.metrics != nil {
		o.metrics.RecordCheckoutCompleted()
	}

	result := Result{Order: order}

	// Письмо и очистка корзины — best-effort: заказ уже оформлен.
	emailResponse, err := o.notify(ctx, identity, order)
	if err != nil {
		logger.WithError(err).WithField("order_id", order.ID).Warn("order confirmation email failed")
		result.Warnings = append(result.Warnings, fmt.Sprintf("email notification failed: %v", err))
	} else {
		result.EmailResponse = emailResponse
	}

	if err := o.clearCart(ctx, identity); err != nil {
		logger.WithError(err).WithField("order_id", order.ID).Warn("cart cleanup failed")
		result.Warnings = append(result.Warnings, fmt.Sprintf("cart cleanup failed: %v", err))
	}

	logger.WithFields(log.Fields{
		"order_id": order.ID,
		"number":   order.Number,
		"items":    len(order.Items),
	}).Info("checkout completed")

	return result, nil
}

func (o *Orchestrator) fetchCart(ctx context.Context, identity domain.Identity) (domain.Cart, error) {
	defer o.observeStep(domain.CheckoutStepFetchCart, o.now())

	cart, err := o.carts.Get(ctx, identity.Token)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("fetch cart: %w", err)
	}
	if cart.Empty() {
		return domain.Cart{}, domain.ErrEmptyCart
	}
	return cart, nil
}

// reconcileInventory списывает остатки по каждой позиции корзины строго
// в порядке корзины: чтение текущего остатка, затем запись уменьшенного.
// Возвращает позиции, списание которых успело примениться.
func (o *Orchestrator) reconcileInventory(ctx context.Context, identity domain.Identity, cart domain.Cart) ([]domain.CartItem, error) {
	defer o.observeStep(domain.CheckoutStepInventory, o.now())

	applied := make([]domain.CartItem, 0, len(cart.Items))
	for _, item := range cart.Items {
		current, err := o.products.GetQuantity(ctx, identity.Token, item.ProductID)
		if err != nil {
			return applied, fmt.Errorf("read quantity for %s: %w", item.ProductID, err)
		}
		if err := o.products.SetQuantity(ctx, identity.Token, item.ProductID, current-int64(item.Qty)); err != nil {
			return applied, fmt.Errorf("write quantity for %s: %w", item.ProductID, err)
		}
		applied = append(applied, item)
	}
	return applied, nil
}

func (o *Orchestrator) persistOrder(identity domain.Identity, address string, cart domain.Cart) (domain.Order, error) {
	defer o.observeStep(domain.CheckoutStepPersist, o.now())

	now := o.now()
	order := domain.Order{
		ID:        uuid.NewString(),
		UserID:    identity.UserID,
		Number:    domain.NewOrderNumber(now),
		Address:   address,
		Items:     make([]domain.OrderItem, 0, len(cart.Items)),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i, item := range cart.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ID:         uuid.NewString(),
			ProductID:  item.ProductID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
			// Смещение сохраняет порядок корзины при сортировке по времени.
			CreatedAt: now.Add(time.Duration(i) * time.Millisecond),
		})
	}

	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return order, errs[0]
	}
	if err := o.orders.Create(order); err != nil {
		return order, fmt.Errorf("persist order: %w", err)
	}
	return order, nil
}

func (o *Orchestrator) notify(ctx context.Context, identity domain.Identity, order domain.Order) (string, error) {
	defer o.observeStep(domain.CheckoutStepNotify, o.now())
	return o.emails.SendOrderConfirmation(ctx, identity.Token, order)
}

func (o *Orchestrator) clearCart(ctx context.Context, identity domain.Identity) error {
	defer o.observeStep(domain.CheckoutStepClearCart, o.now())
	return o.carts.Clear(ctx, identity.Token)
}

// compensate возвращает уже списанные остатки в обратном порядке. Лучшая
// попытка: о невозвратах пишем в лог, оформление всё равно завершается
// ошибкой.
func (o *Orchestrator) compensate(ctx context.Context, identity domain.Identity, applied []domain.CartItem) {
	if len(applied) == 0 {
		return
	}
	defer o.observeStep(domain.CheckoutStepCompensate, o.now())

	for i := len(applied) - 1; i >= 0; i-- {
		item := applied[i]
		current, err := o.products.GetQuantity(ctx, identity.Token, item.ProductID)
		if err != nil {
			o.logger.WithError(err).WithField("product_id", item.ProductID).Error("compensation read failed, quantity stays decremented")
			continue
		}
		if err := o.products.SetQuantity(ctx, identity.Token, item.ProductID, current+int64(item.Qty)); err != nil {
			o.logger.WithError(err).WithField("product_id", item.ProductID).Error("compensation write failed, quantity stays decremented")
		}
	}

	if o.metrics != nil {
		o.metrics.RecordCheckoutCompensated()
	}
	o.enqueueEvent("user", identity.UserID, kafka.EventTypeCheckoutCompensated, map[string]interface{}{
		"user_id":     identity.UserID,
		"items_count": len(applied),
	})
}

func (o *Orchestrator) failCheckout(logger *log.Entry, identity domain.Identity, orderID string, rootErr error) {
	if o.metrics != nil {
		o.metrics.RecordCheckoutFailed()
	}
	logger.WithError(rootErr).Warn("checkout failed")

	payload := map[string]interface{}{
		"user_id": identity.UserID,
		"reason":  rootErr.Error(),
	}
	aggregateID := orderID
	aggregateType := "order"
	if aggregateID == "" {
		aggregateID = identity.UserID
		aggregateType = "user"
	}
	o.enqueueEvent(aggregateType, aggregateID, kafka.EventTypeCheckoutFailed, payload)
}

func (o *Orchestrator) emitOrderEvent(order domain.Order, eventType kafka.EventType, extra map[string]interface{}) {
	payload := map[string]interface{}{
		"order_id": order.ID,
		"user_id":  order.UserID,
		"number":   order.Number,
	}
	for key, value := range extra {
		payload[key] = value
	}
	o.enqueueEvent("order", order.ID, eventType, payload)
}

// enqueueEvent кладёт событие в transactional outbox; публикацией в Kafka
// занимается отдельный воркер.
func (o *Orchestrator) enqueueEvent(aggregateType, aggregateID string, eventType kafka.EventType, payload map[string]interface{}) {
	if o.outbox == nil {
		return
	}

	payload["ts"] = o.now().Format(time.RFC3339Nano)
	body, err := json.Marshal(payload)
	if err != nil {
		o.logger.WithError(err).WithField("event_type", eventType).Error("marshal outbox event failed")
		return
	}

	_, err = o.outbox.Enqueue(domain.OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     string(eventType),
		Payload:       body,
	})
	if err != nil {
		o.logger.WithError(err).WithField("event_type", eventType).Error("enqueue outbox event failed")
		return
	}
	if o.metrics != nil {
		o.metrics.RecordOutboxEvent()
	}
}

func (o *Orchestrator) observeStep(step domain.CheckoutStep, start time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordStepDuration(string(step), time.Since(start))
}
