package domain

// CartItem — одна позиция корзины: товар, количество и цена за единицу.
type CartItem struct {
	ProductID  string
	Qty        int32
	PriceMinor int64
}

// Cart — содержимое корзины пользователя в cart-сервисе.
// Локально не персистится: читается и очищается через CartService.
type Cart struct {
	UserID string
	Items  []CartItem
}

// Empty сообщает, что в корзине нет ни одной позиции.
func (c Cart) Empty() bool {
	return len(c.Items) == 0
}
