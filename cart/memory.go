package cart

import (
	"context"
	"sync"

	"ordercore/domain"
)

// Memory is an in-process cart service keyed by owner.
type Memory struct {
	mu    sync.Mutex
	carts map[string][]domain.CartLine
}

var _ domain.CartService = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{carts: make(map[string][]domain.CartLine)}
}

// Put replaces the owner's cart.
func (m *Memory) Put(ownerID string, lines ...domain.CartLine) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[ownerID] = append([]domain.CartLine(nil), lines...)
}

func (m *Memory) GetCart(ctx context.Context, ownerID string) ([]domain.CartLine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.CartLine(nil), m.carts[ownerID]...), nil
}

func (m *Memory) ClearCart(ctx context.Context, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, ownerID)
	return nil
}
