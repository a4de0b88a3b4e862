package mocks

import (
	"context"
	"sync"

	"github.com/youngleee/thesis/internal/domain/cart"
)

// MockNotifier records every notification it receives.
type MockNotifier struct {
	mu           sync.Mutex
	Carts        []cart.Cart
	Availability []AvailabilityCall
}

// AvailabilityCall records parameters passed to AvailabilityChanged
type AvailabilityCall struct {
	ProductID int64
	InStock   bool
}

func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

func (m *MockNotifier) CartChanged(_ context.Context, c *cart.Cart) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Carts = append(m.Carts, *c)
}

func (m *MockNotifier) AvailabilityChanged(_ context.Context, productID int64, inStock bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Availability = append(m.Availability, AvailabilityCall{ProductID: productID, InStock: inStock})
}

// CartCalls returns a copy of the recorded carts.
func (m *MockNotifier) CartCalls() []cart.Cart {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]cart.Cart(nil), m.Carts...)
}

// AvailabilityCalls returns a copy of the recorded availability changes.
func (m *MockNotifier) AvailabilityCalls() []AvailabilityCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AvailabilityCall(nil), m.Availability...)
}
