package domain

// OrderRepository описывает требования к хранилищу заказов.
// Все операции чтения и мутации, кроме Create, принимают оба ключа —
// идентификатор заказа и идентификатор владельца — и различают
// «не существует» (ErrOrderNotFound) и «чужой заказ» (ErrOrderForbidden).
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с позициями атомарно.
	// Возвращает ErrOrderExists, если запись с таким ID уже есть.
	Create(order Order) error
	// Get возвращает заказ с позициями.
	Get(orderID, userID string) (Order, error)
	// ListByUser возвращает заказы владельца в порядке создания;
	// limit <= 0 означает «без ограничения». Пустой список — не ошибка.
	ListByUser(userID string, limit int) ([]Order, error)
	// Update применяет патч: адрес (если задан) и upsert позиций по их ID.
	// Возвращает обновлённый заказ с позициями.
	Update(orderID, userID string, patch OrderPatch) (Order, error)
	// Delete удаляет сначала позиции, затем сам заказ.
	Delete(orderID, userID string) error
}
