package cart

import (
	"context"

	"github.com/vladislavdragonenkov/orders-service/internal/domain"
)

// MockService — конфигурируемая заглушка CartService для тестов и
// локального запуска без реального cart-сервиса.
type MockService struct {
	Cart     domain.Cart
	GetErr   error
	ClearErr error

	GetCalls   int
	ClearCalls int
}

var _ domain.CartService = (*MockService)(nil)

// NewMockService возвращает mock с непустой корзиной по умолчанию.
func NewMockService() *MockService {
	return &MockService{
		Cart: domain.Cart{
			Items: []domain.CartItem{
				{ProductID: "product-1", Qty: 2, PriceMinor: 1000},
				{ProductID: "product-2", Qty: 1, PriceMinor: 500},
			},
		},
	}
}

// Get возвращает заранее настроенную корзину и считает вызовы.
func (m *MockService) Get(_ context.Context, _ string) (domain.Cart, error) {
	m.GetCalls++
	if m.GetErr != nil {
		return domain.Cart{}, m.GetErr
	}
	return m.Cart, nil
}

// Clear возвращает заранее настроенную ошибку и считает вызовы.
func (m *MockService) Clear(_ context.Context, _ string) error {
	m.ClearCalls++
	return m.ClearErr
}
