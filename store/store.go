// Package store provides storage implementations for products and orders.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"ordercore/domain"

	"golang.org/x/sync/errgroup"
)

// Backend persists both products and orders. Every implementation makes
// ReserveStock a single conditional step so concurrent reservations against one
// product can never take its stock below zero.
type Backend interface {
	domain.ProductStore
	domain.OrderStore
	Close() error
}

const maxImportWorkers = 10

// now is the clock used for store-managed timestamps.
var now = func() time.Time { return time.Now().UTC() }

// bump returns the next update time for a record last written at prev. It is
// always after prev so a guarded write can tell two writes apart.
func bump(prev time.Time) time.Time {
	t := now()
	if !t.After(prev) {
		t = prev.Add(time.Microsecond)
	}
	return t
}

func validateStock(stock int) error {
	if stock < 0 {
		return domain.NewInvalidProductError("stock", "must be non-negative", stock)
	}
	return nil
}

func validateNewProduct(p domain.Product) error {
	if p.ID == "" {
		return domain.NewInvalidProductError("id", "cannot be empty", p.ID)
	}
	return domain.ValidateProduct(p)
}

func validateQuantity(quantity int) error {
	if quantity < 1 {
		return domain.NewInvalidOrderError("quantity", "must be at least 1")
	}
	return nil
}

// stamp fills in creation and update times for a product being created.
func stamp(p domain.Product) domain.Product {
	t := now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = t
	}
	p.UpdatedAt = t
	return p
}

func sortProducts(out []domain.Product, filter domain.ListFilter) {
	desc := filter.Order == "desc"
	switch filter.SortBy {
	case "name":
		sort.SliceStable(out, func(i, j int) bool {
			if desc {
				return out[i].Name > out[j].Name
			}
			return out[i].Name < out[j].Name
		})
	case "price":
		sort.SliceStable(out, func(i, j int) bool {
			if desc {
				return out[i].Price.GreaterThan(out[j].Price)
			}
			return out[i].Price.LessThan(out[j].Price)
		})
	case "stock":
		sort.SliceStable(out, func(i, j int) bool {
			if desc {
				return out[i].Stock > out[j].Stock
			}
			return out[i].Stock < out[j].Stock
		})
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
}

// filterProducts applies filter to all and returns the sorted matches.
func filterProducts(all []domain.Product, filter domain.ListFilter) []domain.Product {
	out := make([]domain.Product, 0, len(all))
	for _, p := range all {
		if filter.Matches(p) {
			out = append(out, p)
		}
	}
	sortProducts(out, filter)
	return out
}

// newerFirst orders by creation time descending, then id descending, which
// keeps pagination stable when two orders share a timestamp.
func newerFirst(a, b domain.Order) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// pageOrders sorts an owner's orders and cuts out [offset, offset+limit).
// A negative offset is out of range and yields an empty page.
func pageOrders(owned []domain.Order, offset, limit int) ([]domain.Order, int) {
	sort.Slice(owned, func(i, j int) bool { return newerFirst(owned[i], owned[j]) })
	total := len(owned)
	if offset < 0 || offset >= total || limit < 1 {
		return []domain.Order{}, total
	}
	end := total
	if limit < total-offset {
		end = offset + limit
	}
	page := make([]domain.Order, 0, end-offset)
	for _, o := range owned[offset:end] {
		page = append(page, o.Clone())
	}
	return page, total
}

// importProducts creates products concurrently and joins every per-product failure.
func importProducts(ctx context.Context, products []domain.Product, create func(context.Context, domain.Product) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(products) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxImportWorkers)

	var mu sync.Mutex
	var errs []error
	for _, p := range products {
		p := p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := create(gctx, p); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("id=%s: %w", p.ID, err))
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return errors.Join(errs...)
}
