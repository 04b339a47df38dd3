// Package domain defines core business types and interfaces.
package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Product represents an inventory product
type Product struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	Category  string          `json:"category,omitempty"`
	IsActive  bool            `json:"isActive"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// ListFilter allows filtering and sorting results from List
type ListFilter struct {
	Category   string
	MinPrice   *decimal.Decimal
	MaxPrice   *decimal.Decimal
	ActiveOnly bool
	SortBy     string // "name", "price", "stock"
	Order      string // "asc" or "desc"
}

// Matches reports whether p passes the filter's predicates.
func (f ListFilter) Matches(p Product) bool {
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.ActiveOnly && !p.IsActive {
		return false
	}
	return true
}

// ValidateProduct checks the fields every stored product must satisfy.
// The id is checked by stores on create only, since updates take it from the key.
func ValidateProduct(p Product) error {
	if p.Name == "" {
		return NewInvalidProductError("name", "cannot be empty", p.Name)
	}
	if p.Price.IsNegative() {
		return NewInvalidProductError("price", "must be non-negative", p.Price.String())
	}
	if !p.Price.Equal(p.Price.Round(2)) {
		return NewInvalidProductError("price", "at most 2 fractional digits", p.Price.String())
	}
	if p.Stock < 0 {
		return NewInvalidProductError("stock", "must be non-negative", p.Stock)
	}
	return nil
}

// Inventory is the narrow stock contract the order orchestrator depends on.
//
// ReserveStock must be linearizable per product: the availability check and the
// decrement happen as one step. ReleaseStock only reverses a reservation made by
// the same caller and is not a replenishment path.
type Inventory interface {
	GetActiveProduct(ctx context.Context, id string) (Product, error)
	ReserveStock(ctx context.Context, id string, quantity int) error
	ReleaseStock(ctx context.Context, id string, quantity int) error
}

// ProductStore defines the storage interface for products.
//
// Update rewrites the descriptive fields and leaves stock alone. SetStock
// overwrites stock only while the product's UpdatedAt still equals
// readAt, and fails with StaleProductError otherwise.
type ProductStore interface {
	Inventory
	Create(ctx context.Context, product Product) error
	Get(ctx context.Context, id string) (Product, error)
	Update(ctx context.Context, id string, product Product) error
	SetStock(ctx context.Context, id string, stock int, readAt time.Time) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter ListFilter) ([]Product, error)
	BulkImport(ctx context.Context, products []Product) error
}
