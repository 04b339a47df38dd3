package domain

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// orderTransitions lists the forward moves out of each non-terminal status.
// Cancellation is handled separately: it is allowed from every non-terminal status.
var orderTransitions = map[OrderStatus]OrderStatus{
	OrderStatusPending:    OrderStatusConfirmed,
	OrderStatusConfirmed:  OrderStatusProcessing,
	OrderStatusProcessing: OrderStatusShipped,
	OrderStatusShipped:    OrderStatusDelivered,
}

// AllOrderStatuses returns every status in lifecycle order.
func AllOrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusConfirmed,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
	}
}

// ParseOrderStatus converts a case-insensitive status name.
func ParseOrderStatus(s string) (OrderStatus, error) {
	want := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	for _, st := range AllOrderStatuses() {
		if st == want {
			return st, nil
		}
	}
	return "", NewInvalidOrderError("status", "unknown status "+s)
}

// IsTerminal reports whether no further transition is permitted.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether the state machine allows moving from s to next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == OrderStatusCancelled {
		return true
	}
	return orderTransitions[s] == next
}

// ShippingAddress is where an order is delivered. Immutable once set on an order.
type ShippingAddress struct {
	FullName     string `json:"fullName"`
	AddressLine1 string `json:"addressLine1"`
	AddressLine2 string `json:"addressLine2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postalCode"`
	Country      string `json:"country"`
	Phone        string `json:"phone"`
}

// DefaultCountry is used when a shipping address omits the country.
const DefaultCountry = "PK"

// Normalize trims every field and fills in the default country.
func (a ShippingAddress) Normalize() ShippingAddress {
	a.FullName = strings.TrimSpace(a.FullName)
	a.AddressLine1 = strings.TrimSpace(a.AddressLine1)
	a.AddressLine2 = strings.TrimSpace(a.AddressLine2)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.TrimSpace(a.Country)
	a.Phone = strings.TrimSpace(a.Phone)
	if a.Country == "" {
		a.Country = DefaultCountry
	}
	return a
}

// Validate checks that every required field is present.
func (a ShippingAddress) Validate() error {
	required := []struct {
		field string
		value string
	}{
		{"shippingAddress.fullName", a.FullName},
		{"shippingAddress.addressLine1", a.AddressLine1},
		{"shippingAddress.city", a.City},
		{"shippingAddress.state", a.State},
		{"shippingAddress.postalCode", a.PostalCode},
		{"shippingAddress.country", a.Country},
		{"shippingAddress.phone", a.Phone},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return NewInvalidOrderError(r.field, "is required")
		}
	}
	return nil
}

// OrderLineItem is a snapshot of a product taken when the order was created.
// It is never re-read from the product afterwards.
type OrderLineItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// Order is the order aggregate.
type Order struct {
	ID              string          `json:"id"`
	OwnerID         string          `json:"ownerId"`
	Items           []OrderLineItem `json:"items"`
	Subtotal        decimal.Decimal `json:"subtotal"`
	ShippingCost    decimal.Decimal `json:"shippingCost"`
	Tax             decimal.Decimal `json:"tax"`
	Total           decimal.Decimal `json:"total"`
	ShippingAddress ShippingAddress `json:"shippingAddress"`
	Status          OrderStatus     `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// TotalItems is the sum of quantities across all lines.
func (o Order) TotalItems() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// Transition moves the order to next, refreshing UpdatedAt.
// Terminal statuses reject every further transition.
func (o *Order) Transition(next OrderStatus, now time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return NewInvalidTransitionError(o.Status, next)
	}
	o.Status = next
	o.UpdatedAt = now
	return nil
}

// Clone returns a deep copy so callers cannot mutate a stored order's items.
func (o Order) Clone() Order {
	items := make([]OrderLineItem, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}

// OrderStore persists orders. Orders are never deleted.
type OrderStore interface {
	CreateOrder(ctx context.Context, order Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	// ListOrdersByOwner returns one page of the owner's orders, newest first
	// (ties broken by id, descending), plus the owner's total order count.
	ListOrdersByOwner(ctx context.Context, ownerID string, offset, limit int) ([]Order, int, error)
	UpdateOrderStatus(ctx context.Context, id string, status OrderStatus, updatedAt time.Time) error
}

// CartLine is one line of an owner's cart as reported by the cart collaborator.
// Name and Price are cached display values and are never used for pricing.
type CartLine struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	Name      string          `json:"name,omitempty"`
	Price     decimal.Decimal `json:"price"`
}

// CartService is the external cart collaborator.
type CartService interface {
	GetCart(ctx context.Context, ownerID string) ([]CartLine, error)
	ClearCart(ctx context.Context, ownerID string) error
}
