package product

import (
	"context"
	"sync"

	"github.com/vladislavdragonenkov/orders-service/internal/domain"
)

// MockService — заглушка ProductService, хранящая остатки в памяти.
type MockService struct {
	mu         sync.Mutex
	quantities map[string]int64

	GetErr error
	SetErr error

	GetCalls int
	SetCalls int
	Calls    []string
}

var _ domain.ProductService = (*MockService)(nil)

// NewMockService возвращает mock с заданными начальными остатками.
func NewMockService(quantities map[string]int64) *MockService {
	if quantities == nil {
		quantities = map[string]int64{
			"product-1": 100,
			"product-2": 100,
		}
	}
	return &MockService{quantities: quantities}
}

// GetQuantity возвращает остаток из внутренней карты.
func (m *MockService) GetQuantity(_ context.Context, _ string, productID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.GetCalls++
	m.Calls = append(m.Calls, "get:"+productID)
	if m.GetErr != nil {
		return 0, m.GetErr
	}
	return m.quantities[productID], nil
}

// SetQuantity записывает остаток во внутреннюю карту.
func (m *MockService) SetQuantity(_ context.Context, _ string, productID string, qty int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetCalls++
	m.Calls = append(m.Calls, "set:"+productID)
	if m.SetErr != nil {
		return m.SetErr
	}
	m.quantities[productID] = qty
	return nil
}

// Quantity возвращает текущее значение остатка; используется в проверках.
func (m *MockService) Quantity(productID string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quantities[productID]
}
