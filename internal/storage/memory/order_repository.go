package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/vladislavdragonenkov/orders-service/internal/domain"
)

// orderRecord хранит заказ вместе с порядковым номером вставки,
// чтобы ListByUser возвращал заказы в порядке создания.
type orderRecord struct {
	order domain.Order
	seq   int64
}

// orderRepositoryInMemory — in-memory реализация OrderRepository для
// локальной разработки и тестов.
type orderRepositoryInMemory struct {
	mu      sync.RWMutex
	items   map[string]*orderRecord
	nextSeq int64
}

// NewOrderRepository возвращает пустой in-memory репозиторий заказов.
func NewOrderRepository() domain.OrderRepository {
	return &orderRepositoryInMemory{
		items: make(map[string]*orderRecord),
	}
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepositoryInMemory) Create(order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[order.ID]; exists {
		return domain.ErrOrderExists
	}

	r.nextSeq++
	r.items[order.ID] = &orderRecord{order: cloneOrder(order), seq: r.nextSeq}
	return nil
}

// Get возвращает заказ владельца или ошибку резолва.
func (r *orderRepositoryInMemory) Get(orderID, userID string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.items[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if record.order.UserID != userID {
		return domain.Order{}, domain.ErrOrderForbidden
	}
	return cloneOrder(record.order), nil
}

// ListByUser возвращает заказы владельца в порядке вставки.
func (r *orderRepositoryInMemory) ListByUser(userID string, limit int) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	records := make([]*orderRecord, 0, len(r.items))
	for _, record := range r.items {
		if record.order.UserID == userID {
			records = append(records, record)
		}
	}

	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })

	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	result := make([]domain.Order, 0, len(records))
	for _, record := range records {
		result = append(result, cloneOrder(record.order))
	}
	return result, nil
}

// Update применяет патч к заказу владельца: адрес и upsert позиций по ID.
// Невалидные позиции отклоняются целиком, заказ остаётся прежним.
func (r *orderRepositoryInMemory) Update(orderID, userID string, patch domain.OrderPatch) (domain.Order, error) {
	if errs := patch.Validate(); len(errs) > 0 {
		return domain.Order{}, errs[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.items[orderID]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	if record.order.UserID != userID {
		return domain.Order{}, domain.ErrOrderForbidden
	}

	order := cloneOrder(record.order)
	if patch.Address != nil {
		order.Address = *patch.Address
	}

	for _, item := range patch.Items {
		updated := false
		for i := range order.Items {
			if order.Items[i].ID == item.ID {
				order.Items[i].ProductID = item.ProductID
				order.Items[i].Qty = item.Qty
				order.Items[i].PriceMinor = item.PriceMinor
				updated = true
				break
			}
		}
		if !updated {
			order.Items = append(order.Items, item)
		}
	}

	order.UpdatedAt = time.Now().UTC()
	record.order = cloneOrder(order)
	return order, nil
}

// Delete удаляет заказ владельца вместе с позициями.
func (r *orderRepositoryInMemory) Delete(orderID, userID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.items[orderID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if record.order.UserID != userID {
		return domain.ErrOrderForbidden
	}

	delete(r.items, orderID)
	return nil
}

// cloneOrder копирует заказ вместе со слайсом позиций, чтобы избежать
// непредсказуемых мутаций извне.
func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderItem(nil), src.Items...)
	return dst
}

var _ domain.OrderRepository = (*orderRepositoryInMemory)(nil)
