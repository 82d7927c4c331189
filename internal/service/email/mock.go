package email

import (
	"context"

	"github.com/vladislavdragonenkov/orders-service/internal/domain"
)

// MockService — конфигурируемая заглушка EmailService для тестов.
type MockService struct {
	Response string
	SendErr  error

	SendCalls int
	LastOrder domain.Order
}

var _ domain.EmailService = (*MockService)(nil)

// NewMockService возвращает mock с успешным сценарием по умолчанию.
func NewMockService() *MockService {
	return &MockService{Response: "confirmation email queued"}
}

// SendOrderConfirmation возвращает заранее настроенный ответ и считает вызовы.
func (m *MockService) SendOrderConfirmation(_ context.Context, _ string, order domain.Order) (string, error) {
	m.SendCalls++
	m.LastOrder = order
	if m.SendErr != nil {
		return "", m.SendErr
	}
	return m.Response, nil
}
