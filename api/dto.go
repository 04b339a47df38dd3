package api

import (
	"time"

	"ordercore/domain"
	"ordercore/order"
	"ordercore/pricing"
)

type createOrderRequest struct {
	Items           []order.ItemRequest    `json:"items"`
	ShippingAddress domain.ShippingAddress `json:"shippingAddress"`
}

type createFromCartRequest struct {
	ShippingAddress domain.ShippingAddress `json:"shippingAddress"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type orderItemResponse struct {
	ProductID string `json:"productId"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	Quantity  int    `json:"quantity"`
	ItemTotal string `json:"itemTotal"`
}

type orderResponse struct {
	ID              string                 `json:"id"`
	Items           []orderItemResponse    `json:"items"`
	Subtotal        string                 `json:"subtotal"`
	ShippingCost    string                 `json:"shippingCost"`
	Tax             string                 `json:"tax"`
	Total           string                 `json:"total"`
	ShippingAddress domain.ShippingAddress `json:"shippingAddress"`
	Status          domain.OrderStatus     `json:"status"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

type orderListItem struct {
	ID         string             `json:"id"`
	TotalItems int                `json:"totalItems"`
	Total      string             `json:"total"`
	Status     domain.OrderStatus `json:"status"`
	CreatedAt  time.Time          `json:"createdAt"`
}

type orderListResponse struct {
	Items    []orderListItem `json:"items"`
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"pageSize"`
	Pages    int             `json:"pages"`
	HasNext  bool            `json:"hasNext"`
	HasPrev  bool            `json:"hasPrev"`
}

type errorResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

func toOrderResponse(o domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemResponse{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     pricing.Format(it.UnitPrice),
			Quantity:  it.Quantity,
			ItemTotal: pricing.Format(it.LineTotal),
		})
	}
	return orderResponse{
		ID:              o.ID,
		Items:           items,
		Subtotal:        pricing.Format(o.Subtotal),
		ShippingCost:    pricing.Format(o.ShippingCost),
		Tax:             pricing.Format(o.Tax),
		Total:           pricing.Format(o.Total),
		ShippingAddress: o.ShippingAddress,
		Status:          o.Status,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toListResponse(p order.Page) orderListResponse {
	items := make([]orderListItem, 0, len(p.Items))
	for _, o := range p.Items {
		items = append(items, orderListItem{
			ID:         o.ID,
			TotalItems: o.TotalItems(),
			Total:      pricing.Format(o.Total),
			Status:     o.Status,
			CreatedAt:  o.CreatedAt,
		})
	}
	return orderListResponse{
		Items:    items,
		Total:    p.Total,
		Page:     p.Page,
		PageSize: p.PageSize,
		Pages:    p.Pages,
		HasNext:  p.HasNext,
		HasPrev:  p.HasPrev,
	}
}
