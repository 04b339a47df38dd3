package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"ordercore/domain"
)

// fileDocument is the on-disk layout of a FileStore.
type fileDocument struct {
	Products []domain.Product `json:"products"`
	Orders   []domain.Order   `json:"orders"`
}

// FileStore is a JSON file-backed Backend. Every mutation rewrites the whole
// document through a temporary file and a rename while holding the write lock.
type FileStore struct {
	mu       sync.RWMutex
	products map[string]domain.Product
	orders   map[string]domain.Order
	path     string
}

// compile-time assertion
var _ Backend = (*FileStore)(nil)

// NewFileStore constructs a FileStore at the given path. If the file exists it will be loaded.
// A file holding a bare JSON array is read as a product list.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
		path:     path,
	}
	if err := s.loadFromFile(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Close() error { return nil }

func (s *FileStore) loadFromFile() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			// no file yet; that's fine
			return nil
		}
		return err
	}
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil
	}

	var doc fileDocument
	if b[0] == '[' {
		if err := json.Unmarshal(b, &doc.Products); err != nil {
			return fmt.Errorf("decode %s: %w", s.path, err)
		}
	} else if err := json.Unmarshal(b, &doc); err != nil {
		return fmt.Errorf("decode %s: %w", s.path, err)
	}
	for _, p := range doc.Products {
		s.products[p.ID] = p
	}
	for _, o := range doc.Orders {
		s.orders[o.ID] = o
	}
	return nil
}

func (s *FileStore) saveToFile() error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	doc := fileDocument{
		Products: make([]domain.Product, 0, len(s.products)),
		Orders:   make([]domain.Order, 0, len(s.orders)),
	}
	for _, p := range s.products {
		doc.Products = append(doc.Products, p)
	}
	for _, o := range s.orders {
		doc.Orders = append(doc.Orders, o)
	}
	// stable order for deterministic files
	sort.Slice(doc.Products, func(i, j int) bool { return doc.Products[i].ID < doc.Products[j].ID })
	sort.Slice(doc.Orders, func(i, j int) bool { return doc.Orders[i].ID < doc.Orders[j].ID })

	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// putProduct stores p and persists, restoring the previous value if the write fails.
// Callers hold the write lock.
func (s *FileStore) putProduct(p domain.Product) error {
	prev, existed := s.products[p.ID]
	s.products[p.ID] = p
	if err := s.saveToFile(); err != nil {
		if existed {
			s.products[p.ID] = prev
		} else {
			delete(s.products, p.ID)
		}
		return fmt.Errorf("persist product %s: %w", p.ID, err)
	}
	return nil
}

func (s *FileStore) Create(ctx context.Context, product domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validateNewProduct(product); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[product.ID]; ok {
		return domain.NewDuplicateProductError(product.ID)
	}
	return s.putProduct(stamp(product))
}

func (s *FileStore) Get(ctx context.Context, id string) (domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return domain.Product{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.NewProductNotFoundError(id)
	}
	return p, nil
}

func (s *FileStore) GetActiveProduct(ctx context.Context, id string) (domain.Product, error) {
	p, err := s.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if !p.IsActive {
		return domain.Product{}, domain.NewProductNotFoundError(id)
	}
	return p, nil
}

func (s *FileStore) Update(ctx context.Context, id string, product domain.Product) error {
	if err := ctx.Err(); err != nil {
		return err
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
	return s.putProduct(product)
}

func (s *FileStore) SetStock(ctx context.Context, id string, stock int, readAt time.Time) error {
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
	return s.putProduct(p)
}

func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return domain.NewProductNotFoundError(id)
	}
	delete(s.products, id)
	if err := s.saveToFile(); err != nil {
		s.products[id] = p
		return fmt.Errorf("persist delete %s: %w", id, err)
	}
	return nil
}

func (s *FileStore) List(ctx context.Context, filter domain.ListFilter) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		all = append(all, p)
	}
	return filterProducts(all, filter), nil
}

// BulkImport validates concurrently, then merges every valid product and
// writes the file once.
func (s *FileStore) BulkImport(ctx context.Context, products []domain.Product) error {
	var addMu sync.Mutex
	toAdd := make(map[string]domain.Product)

	collected := importProducts(ctx, products, func(_ context.Context, p domain.Product) error {
		if err := validateNewProduct(p); err != nil {
			return err
		}
		addMu.Lock()
		defer addMu.Unlock()
		if _, exists := toAdd[p.ID]; exists {
			return domain.NewDuplicateProductError(p.ID)
		}
		toAdd[p.ID] = stamp(p)
		return nil
	})
	if err := ctx.Err(); err != nil {
		return err
	}

	// merge toAdd into store with lock, detect duplicates against existing store
	s.mu.Lock()
	defer s.mu.Unlock()
	var added []string
	for id, p := range toAdd {
		if _, exists := s.products[id]; exists {
			collected = errors.Join(collected, fmt.Errorf("id=%s: %w", id, domain.NewDuplicateProductError(id)))
			continue
		}
		s.products[id] = p
		added = append(added, id)
	}
	if err := s.saveToFile(); err != nil {
		for _, id := range added {
			delete(s.products, id)
		}
		return errors.Join(collected, err)
	}
	return collected
}

func (s *FileStore) ReserveStock(ctx context.Context, id string, quantity int) error {
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
	return s.putProduct(p)
}

func (s *FileStore) ReleaseStock(ctx context.Context, id string, quantity int) error {
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
	return s.putProduct(p)
}

func (s *FileStore) CreateOrder(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; exists {
		return fmt.Errorf("order %s already exists", order.ID)
	}
	s.orders[order.ID] = order.Clone()
	if err := s.saveToFile(); err != nil {
		delete(s.orders, order.ID)
		return fmt.Errorf("persist order %s: %w", order.ID, err)
	}
	return nil
}

func (s *FileStore) GetOrder(ctx context.Context, id string) (domain.Order, error) {
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

func (s *FileStore) ListOrdersByOwner(ctx context.Context, ownerID string, offset, limit int) ([]domain.Order, int, error) {
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

func (s *FileStore) UpdateOrderStatus(ctx context.Context, id string, status domain.OrderStatus, updatedAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return domain.NewOrderNotFoundError(id)
	}
	prev := o
	o.Status = status
	o.UpdatedAt = updatedAt
	s.orders[id] = o
	if err := s.saveToFile(); err != nil {
		s.orders[id] = prev
		return fmt.Errorf("persist order %s: %w", id, err)
	}
	return nil
}
