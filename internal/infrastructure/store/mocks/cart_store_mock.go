package mocks

import (
	"context"
	"sync"

	"github.com/youngleee/thesis/internal/domain/cart"
)

// MockCartStore wraps a real cart.Store, records calls and can be told to
// fail. Tests use it to check what the service asked of the store.
type MockCartStore struct {
	mu    sync.Mutex
	inner cart.Store

	// For tracking calls in tests
	AddCalls    []AddCall
	DeleteCalls []int64
	ClearCalls  []string

	// Errors returned instead of delegating, when set
	ItemsErr error
	AddErr   error
	WriteErr error
}

// AddCall records parameters passed to AddQuantity
type AddCall struct {
	OwnerKey  string
	ProductID int64
	Quantity  int
}

// NewMockCartStore creates a MockCartStore delegating to inner.
func NewMockCartStore(inner cart.Store) *MockCartStore {
	return &MockCartStore{inner: inner}
}

func (m *MockCartStore) Items(ctx context.Context, ownerKey string) ([]cart.Item, error) {
	m.mu.Lock()
	err := m.ItemsErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return m.inner.Items(ctx, ownerKey)
}

func (m *MockCartStore) AddQuantity(ctx context.Context, ownerKey string, productID int64, quantity int) (cart.Line, error) {
	m.mu.Lock()
	m.AddCalls = append(m.AddCalls, AddCall{OwnerKey: ownerKey, ProductID: productID, Quantity: quantity})
	err := m.AddErr
	m.mu.Unlock()
	if err != nil {
		return cart.Line{}, err
	}
	return m.inner.AddQuantity(ctx, ownerKey, productID, quantity)
}

func (m *MockCartStore) SetQuantity(ctx context.Context, ownerKey string, lineID int64, quantity int) (bool, error) {
	m.mu.Lock()
	err := m.WriteErr
	m.mu.Unlock()
	if err != nil {
		return false, err
	}
	return m.inner.SetQuantity(ctx, ownerKey, lineID, quantity)
}

func (m *MockCartStore) DeleteLine(ctx context.Context, ownerKey string, lineID int64) (bool, error) {
	m.mu.Lock()
	m.DeleteCalls = append(m.DeleteCalls, lineID)
	err := m.WriteErr
	m.mu.Unlock()
	if err != nil {
		return false, err
	}
	return m.inner.DeleteLine(ctx, ownerKey, lineID)
}

func (m *MockCartStore) DeleteAll(ctx context.Context, ownerKey string) (int64, error) {
	m.mu.Lock()
	m.ClearCalls = append(m.ClearCalls, ownerKey)
	err := m.WriteErr
	m.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return m.inner.DeleteAll(ctx, ownerKey)
}

func (m *MockCartStore) Count(ctx context.Context, ownerKey string) (int, error) {
	m.mu.Lock()
	err := m.ItemsErr
	m.mu.Unlock()
	if err != nil {
		return 0, err
	}
	return m.inner.Count(ctx, ownerKey)
}
