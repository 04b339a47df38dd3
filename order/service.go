// Package order creates orders against inventory, moves them through their
// lifecycle and answers owner-scoped queries.
package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"ordercore/domain"
	"ordercore/metrics"
	"ordercore/pricing"
	"ordercore/util"

	"go.uber.org/zap"
)

const (
	// MaxQuantity is the largest quantity accepted for a single product.
	MaxQuantity = 99

	DefaultPageSize    = 20
	DefaultMaxPageSize = 100

	defaultReleaseTimeout = 5 * time.Second
)

// ItemRequest asks for quantity units of one product.
type ItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// Service is the order orchestrator and query service. It holds no mutable
// state of its own and is safe for concurrent use.
type Service struct {
	inventory      domain.Inventory
	orders         domain.OrderStore
	engine         *pricing.Engine
	logger         *zap.Logger
	cart           domain.CartService
	metrics        *metrics.OrderMetrics
	maxPageSize    int
	releaseTimeout time.Duration
	now            func() time.Time
	newID          func() string
}

type Option func(*Service)

// WithCart enables CreateOrderFromCart.
func WithCart(c domain.CartService) Option {
	return func(s *Service) { s.cart = c }
}

func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithMaxPageSize caps ListOrders page sizes. Values below 1 are ignored.
func WithMaxPageSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPageSize = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// WithReleaseTimeout bounds the compensation step of a failed creation.
func WithReleaseTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.releaseTimeout = d
		}
	}
}

// NewService wires the orchestrator. A nil logger is replaced by a no-op logger.
func NewService(inventory domain.Inventory, orders domain.OrderStore, engine *pricing.Engine, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = pricing.NewDefaultEngine()
	}
	s := &Service{
		inventory:      inventory,
		orders:         orders,
		engine:         engine,
		logger:         logger,
		maxPageSize:    DefaultMaxPageSize,
		releaseTimeout: defaultReleaseTimeout,
		now:            func() time.Time { return time.Now().UTC() },
		newID:          util.NewOrderID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// reservation records stock taken during one creation attempt.
type reservation struct {
	productID string
	quantity  int
}

// CreateOrder validates the request, reserves stock for every line, prices the
// snapshot and persists a Pending order. Any failure after the first
// reservation releases everything reserved in this attempt.
func (s *Service) CreateOrder(ctx context.Context, ownerID string, items []ItemRequest, addr domain.ShippingAddress) (domain.Order, error) {
	start := time.Now()
	o, err := s.createOrder(ctx, ownerID, items, addr)
	if err != nil {
		s.rejected(err)
		s.logger.Warn("order rejected",
			zap.String("owner_id", ownerID),
			zap.Int("lines", len(items)),
			zap.Error(err))
		return domain.Order{}, err
	}
	if s.metrics != nil {
		s.metrics.Created.Inc()
	}
	s.logger.Info("order created",
		zap.String("order_id", o.ID),
		zap.String("owner_id", o.OwnerID),
		zap.Int("total_items", o.TotalItems()),
		zap.String("total", pricing.Format(o.Total)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	return o, nil
}

func (s *Service) createOrder(ctx context.Context, ownerID string, items []ItemRequest, addr domain.ShippingAddress) (domain.Order, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return domain.Order{}, domain.NewInvalidOrderError("ownerId", "is required")
	}
	lines, err := mergeItems(items)
	if err != nil {
		return domain.Order{}, err
	}
	addr = addr.Normalize()
	if err := addr.Validate(); err != nil {
		return domain.Order{}, err
	}

	reserved := make([]reservation, 0, len(lines))
	snapshot := make([]domain.OrderLineItem, 0, len(lines))
	for _, line := range lines {
		p, err := s.inventory.GetActiveProduct(ctx, line.ProductID)
		if err != nil {
			s.release(ctx, reserved)
			return domain.Order{}, storeError("inventory", err)
		}
		if err := s.inventory.ReserveStock(ctx, line.ProductID, line.Quantity); err != nil {
			s.release(ctx, reserved)
			return domain.Order{}, storeError("inventory", err)
		}
		reserved = append(reserved, reservation{productID: line.ProductID, quantity: line.Quantity})
		snapshot = append(snapshot, domain.OrderLineItem{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  line.Quantity,
		})
	}

	priced := make([]pricing.Line, len(snapshot))
	for i, it := range snapshot {
		priced[i] = pricing.Line{UnitPrice: it.UnitPrice, Quantity: it.Quantity}
	}
	totals := s.engine.Compute(priced)
	for i := range snapshot {
		snapshot[i].LineTotal = totals.LineTotals[i]
	}

	now := s.now()
	o := domain.Order{
		ID:              s.newID(),
		OwnerID:         ownerID,
		Items:           snapshot,
		Subtotal:        totals.Subtotal,
		ShippingCost:    totals.ShippingCost,
		Tax:             totals.Tax,
		Total:           totals.Total,
		ShippingAddress: addr,
		Status:          domain.OrderStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.orders.CreateOrder(ctx, o); err != nil {
		s.release(ctx, reserved)
		if isContextErr(err) {
			return domain.Order{}, err
		}
		return domain.Order{}, domain.NewDependencyUnavailableError("order store", err)
	}
	return o.Clone(), nil
}

// mergeItems validates request lines and folds repeated product ids into one
// line, keeping the order of first appearance.
func mergeItems(items []ItemRequest) ([]ItemRequest, error) {
	if len(items) == 0 {
		return nil, domain.NewEmptyOrderError()
	}
	index := make(map[string]int, len(items))
	out := make([]ItemRequest, 0, len(items))
	for i, it := range items {
		id := strings.TrimSpace(it.ProductID)
		if id == "" {
			return nil, domain.NewInvalidOrderError(fmt.Sprintf("items[%d].productId", i), "is required")
		}
		if it.Quantity < 1 || it.Quantity > MaxQuantity {
			return nil, domain.NewInvalidOrderError("quantity", fmt.Sprintf("must be between 1 and %d", MaxQuantity))
		}
		if j, ok := index[id]; ok {
			out[j].Quantity += it.Quantity
			if out[j].Quantity > MaxQuantity {
				return nil, domain.NewInvalidOrderError("quantity", fmt.Sprintf("must be between 1 and %d", MaxQuantity))
			}
			continue
		}
		index[id] = len(out)
		out = append(out, ItemRequest{ProductID: id, Quantity: it.Quantity})
	}
	return out, nil
}

// release undoes reservations newest first. It runs on a context detached from
// the caller's cancellation so an aborted request still gives its stock back.
func (s *Service) release(ctx context.Context, reserved []reservation) {
	if len(reserved) == 0 {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.releaseTimeout)
	defer cancel()

	for i := len(reserved) - 1; i >= 0; i-- {
		r := reserved[i]
		if err := s.inventory.ReleaseStock(rctx, r.productID, r.quantity); err != nil {
			s.compensated("failed")
			s.logger.Error("failed to release reserved stock",
				zap.String("product_id", r.productID),
				zap.Int("quantity", r.quantity),
				zap.Error(err))
			continue
		}
		s.compensated("released")
	}
}

// CreateOrderFromCart builds an order from the owner's cart. Only product ids
// and quantities are taken from the cart; names and prices come from
// inventory. The cart is cleared on success, best effort.
func (s *Service) CreateOrderFromCart(ctx context.Context, ownerID string, addr domain.ShippingAddress) (domain.Order, error) {
	if strings.TrimSpace(ownerID) == "" {
		return domain.Order{}, domain.NewInvalidOrderError("ownerId", "is required")
	}
	if s.cart == nil {
		err := domain.NewDependencyUnavailableError("cart", errors.New("cart service not configured"))
		s.rejected(err)
		return domain.Order{}, err
	}
	lines, err := s.cart.GetCart(ctx, ownerID)
	if err != nil {
		if !domain.IsDependencyUnavailableError(err) && !isContextErr(err) {
			err = domain.NewDependencyUnavailableError("cart", err)
		}
		s.rejected(err)
		return domain.Order{}, err
	}
	if len(lines) == 0 {
		err := domain.NewEmptyOrderError()
		s.rejected(err)
		return domain.Order{}, err
	}

	items := make([]ItemRequest, 0, len(lines))
	for _, l := range lines {
		items = append(items, ItemRequest{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	o, err := s.CreateOrder(ctx, ownerID, items, addr)
	if err != nil {
		return domain.Order{}, err
	}

	if err := s.cart.ClearCart(ctx, ownerID); err != nil {
		s.logger.Warn("failed to clear cart after order",
			zap.String("order_id", o.ID),
			zap.String("owner_id", ownerID),
			zap.Error(err))
	}
	return o, nil
}

// UpdateStatus applies one state machine transition. Callers are responsible
// for authorizing the change.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, next domain.OrderStatus) (domain.Order, error) {
	o, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return domain.Order{}, storeError("order store", err)
	}
	from := o.Status
	if err := o.Transition(next, s.now()); err != nil {
		return domain.Order{}, err
	}
	if err := s.orders.UpdateOrderStatus(ctx, o.ID, o.Status, o.UpdatedAt); err != nil {
		return domain.Order{}, storeError("order store", err)
	}
	if s.metrics != nil {
		s.metrics.Transitions.WithLabelValues(string(next)).Inc()
	}
	s.logger.Info("order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(next)))
	return o, nil
}

func (s *Service) rejected(err error) {
	if s.metrics != nil {
		s.metrics.Rejected.WithLabelValues(reason(err)).Inc()
	}
}

func (s *Service) compensated(result string) {
	if s.metrics != nil {
		s.metrics.Compensations.WithLabelValues(result).Inc()
	}
}

// reason is a low-cardinality label for a rejected creation.
func reason(err error) string {
	switch {
	case domain.IsEmptyOrderError(err):
		return "empty_order"
	case domain.IsInvalidOrderError(err):
		return "invalid_order"
	case domain.IsProductNotFoundError(err):
		return "product_not_found"
	case domain.IsInsufficientStockError(err):
		return "insufficient_stock"
	case domain.IsDependencyUnavailableError(err):
		return "dependency_unavailable"
	case isContextErr(err):
		return "cancelled"
	default:
		return "other"
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// storeError passes domain and context errors through and wraps anything else
// as an unavailable dependency.
func storeError(dependency string, err error) error {
	if domain.IsClientError(err) || domain.IsDependencyUnavailableError(err) || isContextErr(err) {
		return err
	}
	return domain.NewDependencyUnavailableError(dependency, err)
}
