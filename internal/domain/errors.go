package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибка отсутствующего идентификатора владельца заказа.
	ErrUserRequired = errors.New("user_id is required")
	// Ошибка отсутствия хотя бы одной позиции в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отсутствующего идентификатора товара в позиции.
	ErrItemProductRequired = errors.New("item product_id is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item qty must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrOrderForbidden возвращается, если заказ существует, но принадлежит
	// другому пользователю.
	ErrOrderForbidden = errors.New("order belongs to another user")
	// ErrOrderExists возвращается при попытке создать заказ с занятым ID.
	ErrOrderExists = errors.New("order already exists")
	// ErrItemConflict возвращается, когда ID позиции из патча уже занят
	// позицией другого заказа.
	ErrItemConflict = errors.New("item id belongs to another order")
	// ErrEmptyCart означает, что корзина пользователя пуста и оформлять нечего.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrOutboxNotFound возвращается, если outbox-запись не найдена при смене статуса.
	ErrOutboxNotFound = errors.New("outbox message not found")

	// ErrIdempotencyKeyRequired — пустой idempotency-key.
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	// ErrIdempotencyRequestHashRequired — пустой hash запроса.
	ErrIdempotencyRequestHashRequired = errors.New("idempotency request hash is required")
	// ErrIdempotencyKeyNotFound — запись по ключу отсутствует.
	ErrIdempotencyKeyNotFound = errors.New("idempotency key not found")
	// ErrIdempotencyKeyAlreadyExists — ключ уже занят другим запросом.
	ErrIdempotencyKeyAlreadyExists = errors.New("idempotency key already exists")
	// ErrIdempotencyHashMismatch — тот же ключ пришёл с другим телом запроса.
	ErrIdempotencyHashMismatch = errors.New("idempotency key reused with different request")
)

// RemoteError описывает неуспешный ответ или сетевую ошибку внешнего сервиса.
// StatusCode равен нулю, если до HTTP-ответа дело не дошло.
type RemoteError struct {
	Service    string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s service: %s", e.Service, e.Message)
	}
	return fmt.Sprintf("%s service returned %d: %s", e.Service, e.StatusCode, e.Message)
}

// AsRemoteError извлекает RemoteError из цепочки обёрток.
func AsRemoteError(err error) (*RemoteError, bool) {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote, true
	}
	return nil, false
}
