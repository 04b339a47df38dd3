package api

import (
	"context"
	"net/http"
	"strconv"

	"ordercore/domain"
	"ordercore/order"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// OrderService is what the HTTP surface needs from the order package.
type OrderService interface {
	CreateOrder(ctx context.Context, ownerID string, items []order.ItemRequest, addr domain.ShippingAddress) (domain.Order, error)
	CreateOrderFromCart(ctx context.Context, ownerID string, addr domain.ShippingAddress) (domain.Order, error)
	GetOrder(ctx context.Context, ownerID, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, ownerID string, page, pageSize int) (order.Page, error)
	UpdateStatus(ctx context.Context, orderID string, next domain.OrderStatus) (domain.Order, error)
}

var _ OrderService = (*order.Service)(nil)

type OrderHandler struct {
	orders OrderService
	logger *zap.Logger
}

func NewOrderHandler(orders OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{orders: orders, logger: logger}
}

func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, "invalid request body")
		return
	}
	id, _ := identityFrom(c)
	o, err := h.orders.CreateOrder(c.Request.Context(), id.UserID, req.Items, req.ShippingAddress)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toOrderResponse(o))
}

func (h *OrderHandler) CreateOrderFromCart(c *gin.Context) {
	var req createFromCartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, "invalid request body")
		return
	}
	id, _ := identityFrom(c)
	o, err := h.orders.CreateOrderFromCart(c.Request.Context(), id.UserID, req.ShippingAddress)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, toOrderResponse(o))
}

func (h *OrderHandler) ListOrders(c *gin.Context) {
	page, err := intQuery(c, "page", 1)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	pageSize, err := intQuery(c, "pageSize", order.DefaultPageSize)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	id, _ := identityFrom(c)
	p, err := h.orders.ListOrders(c.Request.Context(), id.UserID, page, pageSize)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toListResponse(p))
}

func (h *OrderHandler) GetOrder(c *gin.Context) {
	id, _ := identityFrom(c)
	o, err := h.orders.GetOrder(c.Request.Context(), id.UserID, c.Param("id"))
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}

func (h *OrderHandler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortBadRequest(c, "invalid request body")
		return
	}
	next, err := domain.ParseOrderStatus(req.Status)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	o, err := h.orders.UpdateStatus(c.Request.Context(), c.Param("id"), next)
	if err != nil {
		abortWithError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, toOrderResponse(o))
}

func intQuery(c *gin.Context, name string, def int) (int, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.NewInvalidOrderError(name, "must be an integer")
	}
	return n, nil
}
