package domain

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OrderItem представляет одну товарную позицию заказа.
type OrderItem struct {
	// ID позиции нужен для однозначной идентификации при upsert'ах.
	ID string
	// ProductID — внешний идентификатор товара в product-сервисе.
	ProductID string
	// Qty — количество единиц товара.
	Qty int32
	// PriceMinor — цена за единицу в минимальных денежных единицах.
	PriceMinor int64
	// CreatedAt фиксирует момент добавления позиции в заказ.
	CreatedAt time.Time
}

// Order агрегирует запись о покупке и её позиции.
// Заказ всегда принадлежит ровно одному пользователю; для резолва записи
// требуются оба ключа — ID заказа и ID владельца, и они никогда не
// сливаются в один критерий поиска.
type Order struct {
	ID        string
	UserID    string
	Number    string
	Address   string
	Items     []OrderItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderPatch описывает частичное обновление заказа.
// Nil-адрес означает «не менять»; позиции с существующим ID обновляются,
// остальные добавляются.
type OrderPatch struct {
	Address *string
	Items   []OrderItem
}

// TotalMinor возвращает сумму заказа по позициям (qty * price).
func (o *Order) TotalMinor() int64 {
	var total int64
	for _, item := range o.Items {
		total += int64(item.Qty) * item.PriceMinor
	}
	return total
}

// Validate проверяет инварианты одной позиции. Применяется и при создании
// заказа, и при upsert'е позиций через патч.
func (i OrderItem) Validate() []error {
	var errs []error

	if i.ProductID == "" {
		errs = append(errs, ErrItemProductRequired)
	}
	if i.Qty <= 0 {
		errs = append(errs, ErrItemQtyInvalid)
	}
	if i.PriceMinor < 0 {
		errs = append(errs, ErrItemPriceInvalid)
	}

	return errs
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.UserID == "" {
		errs = append(errs, ErrUserRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	for _, item := range o.Items {
		errs = append(errs, item.Validate()...)
	}

	return errs
}

// Validate проверяет позиции патча. Адрес может быть любым, позиции обязаны
// удовлетворять тем же инвариантам, что и при создании заказа.
func (p OrderPatch) Validate() []error {
	var errs []error
	for _, item := range p.Items {
		errs = append(errs, item.Validate()...)
	}
	return errs
}

// NewOrderNumber генерирует человекочитаемый номер заказа: усечённая метка
// времени плюс короткий случайный токен. Глобальная уникальность не
// гарантируется, номер не используется как ключ.
func NewOrderNumber(now time.Time) string {
	ts := strconv.FormatInt(now.UnixMilli(), 10)
	if len(ts) > 8 {
		ts = ts[len(ts)-8:]
	}
	token := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return ts + "-" + token
}
