package order

import (
	"context"
	"math"

	"ordercore/domain"
)

// Page is one page of an owner's orders.
type Page struct {
	Items    []domain.Order `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
	Pages    int            `json:"pages"`
	HasNext  bool           `json:"hasNext"`
	HasPrev  bool           `json:"hasPrev"`
}

// GetOrder returns the order only when ownerID owns it. A foreign order is
// reported exactly like a missing one.
func (s *Service) GetOrder(ctx context.Context, ownerID, orderID string) (domain.Order, error) {
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, storeError("order store", err)
	}
	if o.OwnerID != ownerID {
		return domain.Order{}, domain.NewOrderNotFoundError(orderID)
	}
	return o, nil
}

// AdminGetOrder returns any order regardless of owner.
func (s *Service) AdminGetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, storeError("order store", err)
	}
	return o, nil
}

// ListOrders pages through an owner's orders newest first. pageSize is capped
// at the configured maximum. A page past the end is empty but still reports
// the owner's totals.
func (s *Service) ListOrders(ctx context.Context, ownerID string, page, pageSize int) (Page, error) {
	if page < 1 {
		return Page{}, domain.NewInvalidOrderError("page", "must be at least 1")
	}
	if pageSize < 1 {
		return Page{}, domain.NewInvalidOrderError("pageSize", "must be at least 1")
	}
	if pageSize > s.maxPageSize {
		pageSize = s.maxPageSize
	}

	// a page whose offset does not fit in an int is past any real end; fetch
	// only the count
	offset, limit := (page-1)*pageSize, pageSize
	if page-1 > math.MaxInt/pageSize {
		offset, limit = 0, 0
	}
	items, total, err := s.orders.ListOrdersByOwner(ctx, ownerID, offset, limit)
	if err != nil {
		return Page{}, storeError("order store", err)
	}
	if items == nil || limit == 0 {
		items = []domain.Order{}
	}
	pages := total / pageSize
	if total%pageSize != 0 {
		pages++
	}
	return Page{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Pages:    pages,
		HasNext:  page < pages,
		HasPrev:  page > 1,
	}, nil
}
