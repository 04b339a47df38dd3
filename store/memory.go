package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ordercore/domain"
)

// InMemoryStore is a thread-safe in-memory Backend
type InMemoryStore struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	orders   map[string]domain.Order
}

// NewInMemoryStore constructs a new InMemoryStore
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
	}
}

// compile-time assertion that InMemoryStore implements Backend
var _ Backend = (*InMemoryStore)(nil)

func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) Create(ctx context.Context, product domain.Product) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := validateNewProduct(product); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[product.ID]; exists {
		return domain.NewDuplicateProductError(product.ID)
	}
	s.products[product.ID] = stamp(product)
	return nil
}

func (s *InMemoryStore) Get(ctx context.Context, id string) (domain.Product, error) {
	select {
	case <-ctx.Done():
		return domain.Product{}, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.NewProductNotFoundError(id)
	}
	return p, nil
}

func (s *InMemoryStore) GetActiveProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if !p.IsActive {
		return domain.Product{}, domain.NewProductNotFoundError(id)
	}
	return p, nil
}

func (s *InMemoryStore) Update(ctx context.Context, id string, product domain.Product) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if err := domain.ValidateProduct(product); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[id]
	if !ok {
		return domain.NewProductNotFoundError(id)
	}
	product.ID = id
	product.Stock = existing.Stock
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = bump(existing.UpdatedAt)
	s.products[id] = product
	return nil
}

func (s *InMemoryStore) SetStock(ctx context.Context, id string, stock int, readAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateStock(stock); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return domain.NewProductNotFoundError(id)
	}
	if !p.UpdatedAt.Equal(readAt) {
		return domain.NewStaleProductError(id)
	}
	p.Stock = stock
	p.UpdatedAt = bump(p.UpdatedAt)
	s.products[id] = p
	return nil
}

func (s *InMemoryStore) Delete(ctx context.Context, id string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return domain.NewProductNotFoundError(id)
	}
	delete(s.products, id)
	return nil
}

func (s *InMemoryStore) List(ctx context.Context, filter domain.ListFilter) ([]domain.Product, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		all = append(all, p)
	}
	return filterProducts(all, filter), nil
}

func (s *InMemoryStore) BulkImport(ctx context.Context, products []domain.Product) error {
	return importProducts(ctx, products, s.Create)
}

// ReserveStock checks and decrements under the write lock, so the check and
// the decrement cannot interleave with another reservation.
func (s *InMemoryStore) ReserveStock(ctx context.Context, id string, quantity int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateQuantity(quantity); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok || !p.IsActive {
		return domain.NewProductNotFoundError(id)
	}
	if p.Stock < quantity {
		return domain.NewInsufficientStockError(id, quantity, p.Stock)
	}
	p.Stock -= quantity
	p.UpdatedAt = bump(p.UpdatedAt)
	s.products[id] = p
	return nil
}

func (s *InMemoryStore) ReleaseStock(ctx context.Context, id string, quantity int) error {
	if err := validateQuantity(quantity); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.products[id]
	if !ok {
		return domain.NewProductNotFoundError(id)
	}
	p.Stock += quantity
	p.UpdatedAt = bump(p.UpdatedAt)
	s.products[id] = p
	return nil
}

func (s *InMemoryStore) CreateOrder(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	s.orders[order.ID] = order.Clone()
	return nil
}

func (s *InMemoryStore) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	if err := ctx.Err(); err != nil {
		return domain.Order{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.NewOrderNotFoundError(id)
	}
	return o.Clone(), nil
}

func (s *InMemoryStore) ListOrdersByOwner(ctx context.Context, ownerID string, offset, limit int) ([]domain.Order, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var owned []domain.Order
	for _, o := range s.orders {
		if o.OwnerID == ownerID {
			owned = append(owned, o)
		}
	}
	page, total := pageOrders(owned, offset, limit)
	return page, total, nil
}

func (s *InMemoryStore) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[id]
	if !ok {
		return domain.NewOrderNotFoundError(id)
	}
	o.Status = status
	o.UpdatedAt = updatedAt
	s.orders[id] = o
	return nil
}
