// Package domain defines error types for the order system.
package domain

import (
	"errors"
	"fmt"
)

// ProductNotFoundError is returned when a product with the given ID is not found,
// or exists but is inactive and therefore invisible to ordering.
type ProductNotFoundError struct {
	ProductID string
}

// Error implements the error interface for ProductNotFoundError
func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product not found: id=%s", e.ProductID)
}

// Is allows proper error type checking with errors.Is()
func (e *ProductNotFoundError) Is(target error) bool {
	_, ok := target.(*ProductNotFoundError)
	return ok
}

// InvalidProductError is returned when product validation fails
type InvalidProductError struct {
	Field  string
	Reason string
	Value  interface{}
}

// Error implements the error interface for InvalidProductError
func (e *InvalidProductError) Error() string {
	return fmt.Sprintf("invalid product: field=%s, reason=%s, value=%v", e.Field, e.Reason, e.Value)
}

// Is allows proper error type checking with errors.Is()
func (e *InvalidProductError) Is(target error) bool {
	_, ok := target.(*InvalidProductError)
	return ok
}

// DuplicateProductError is returned when attempting to create a product with an existing ID
type DuplicateProductError struct {
	ProductID string
}

// Error implements the error interface for DuplicateProductError
func (e *DuplicateProductError) Error() string {
	return fmt.Sprintf("duplicate product: id=%s already exists", e.ProductID)
}

// Is allows proper error type checking with errors.Is()
func (e *DuplicateProductError) Is(target error) bool {
	_, ok := target.(*DuplicateProductError)
	return ok
}

// StaleProductError is returned when a guarded product write finds the product
// changed since the caller read it.
type StaleProductError struct {
	ProductID string
}

// Error implements the error interface for StaleProductError
func (e *StaleProductError) Error() string {
	return fmt.Sprintf("product modified since read: id=%s", e.ProductID)
}

// Is allows proper error type checking with errors.Is()
func (e *StaleProductError) Is(target error) bool {
	_, ok := target.(*StaleProductError)
	return ok
}

// InsufficientStockError is returned when a reservation asks for more than is available.
// Available is best-effort: it is the stock observed when the reservation was refused.
type InsufficientStockError struct {
	ProductID string
	Requested int
	Available int
}

// Error implements the error interface for InsufficientStockError
func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: id=%s, requested=%d, available=%d", e.ProductID, e.Requested, e.Available)
}

// Is allows proper error type checking with errors.Is()
func (e *InsufficientStockError) Is(target error) bool {
	_, ok := target.(*InsufficientStockError)
	return ok
}

// EmptyOrderError is returned when an order is requested with no items.
type EmptyOrderError struct{}

// Error implements the error interface for EmptyOrderError
func (e *EmptyOrderError) Error() string {
	return "order has no items"
}

// Is allows proper error type checking with errors.Is()
func (e *EmptyOrderError) Is(target error) bool {
	_, ok := target.(*EmptyOrderError)
	return ok
}

// InvalidOrderError is returned when an order request fails validation.
type InvalidOrderError struct {
	Field  string
	Reason string
}

// Error implements the error interface for InvalidOrderError
func (e *InvalidOrderError) Error() string {
	return fmt.Sprintf("invalid order: field=%s, reason=%s", e.Field, e.Reason)
}

// Is allows proper error type checking with errors.Is()
func (e *InvalidOrderError) Is(target error) bool {
	_, ok := target.(*InvalidOrderError)
	return ok
}

// InvalidTransitionError is returned when a status change is not permitted
// by the order state machine.
type InvalidTransitionError struct {
	From OrderStatus
	To   OrderStatus
}

// Error implements the error interface for InvalidTransitionError
func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition: %s -> %s", e.From, e.To)
}

// Is allows proper error type checking with errors.Is()
func (e *InvalidTransitionError) Is(target error) bool {
	_, ok := target.(*InvalidTransitionError)
	return ok
}

// OrderNotFoundError is returned when an order does not exist or is not owned
// by the caller. Both cases produce the same error.
type OrderNotFoundError struct {
	OrderID string
}

// Error implements the error interface for OrderNotFoundError
func (e *OrderNotFoundError) Error() string {
	return fmt.Sprintf("order not found: id=%s", e.OrderID)
}

// Is allows proper error type checking with errors.Is()
func (e *OrderNotFoundError) Is(target error) bool {
	_, ok := target.(*OrderNotFoundError)
	return ok
}

// DependencyUnavailableError wraps a failure of storage or an external collaborator.
// Callers may retry.
type DependencyUnavailableError struct {
	Dependency string
	Err        error
}

// Error implements the error interface for DependencyUnavailableError
func (e *DependencyUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("dependency unavailable: %s", e.Dependency)
	}
	return fmt.Sprintf("dependency unavailable: %s: %v", e.Dependency, e.Err)
}

// Unwrap exposes the underlying failure to errors.Is and errors.As
func (e *DependencyUnavailableError) Unwrap() error {
	return e.Err
}

// Is allows proper error type checking with errors.Is()
func (e *DependencyUnavailableError) Is(target error) bool {
	_, ok := target.(*DependencyUnavailableError)
	return ok
}

// Helper functions for creating errors with context

// NewProductNotFoundError creates a new ProductNotFoundError
func NewProductNotFoundError(productID string) error {
	return &ProductNotFoundError{ProductID: productID}
}

// NewInvalidProductError creates a new InvalidProductError
func NewInvalidProductError(field, reason string, value interface{}) error {
	return &InvalidProductError{
		Field:  field,
		Reason: reason,
		Value:  value,
	}
}

// NewDuplicateProductError creates a new DuplicateProductError
func NewDuplicateProductError(productID string) error {
	return &DuplicateProductError{ProductID: productID}
}

// NewStaleProductError creates a new StaleProductError
func NewStaleProductError(productID string) error {
	return &StaleProductError{ProductID: productID}
}

// NewInsufficientStockError creates a new InsufficientStockError
func NewInsufficientStockError(productID string, requested, available int) error {
	return &InsufficientStockError{ProductID: productID, Requested: requested, Available: available}
}

// NewEmptyOrderError creates a new EmptyOrderError
func NewEmptyOrderError() error {
	return &EmptyOrderError{}
}

// NewInvalidOrderError creates a new InvalidOrderError
func NewInvalidOrderError(field, reason string) error {
	return &InvalidOrderError{Field: field, Reason: reason}
}

// NewInvalidTransitionError creates a new InvalidTransitionError
func NewInvalidTransitionError(from, to OrderStatus) error {
	return &InvalidTransitionError{From: from, To: to}
}

// NewOrderNotFoundError creates a new OrderNotFoundError
func NewOrderNotFoundError(orderID string) error {
	return &OrderNotFoundError{OrderID: orderID}
}

// NewDependencyUnavailableError creates a new DependencyUnavailableError
func NewDependencyUnavailableError(dependency string, err error) error {
	return &DependencyUnavailableError{Dependency: dependency, Err: err}
}

// Type assertion helpers for use with errors.As()

// IsProductNotFoundError checks if an error is a ProductNotFoundError
func IsProductNotFoundError(err error) bool {
	var pnf *ProductNotFoundError
	return errors.As(err, &pnf)
}

// IsInvalidProductError checks if an error is an InvalidProductError
func IsInvalidProductError(err error) bool {
	var ipe *InvalidProductError
	return errors.As(err, &ipe)
}

// IsDuplicateProductError checks if an error is a DuplicateProductError
func IsDuplicateProductError(err error) bool {
	var dpe *DuplicateProductError
	return errors.As(err, &dpe)
}

// IsStaleProductError checks if an error is a StaleProductError
func IsStaleProductError(err error) bool {
	var spe *StaleProductError
	return errors.As(err, &spe)
}

// IsInsufficientStockError checks if an error is an InsufficientStockError
func IsInsufficientStockError(err error) bool {
	var ise *InsufficientStockError
	return errors.As(err, &ise)
}

// IsEmptyOrderError checks if an error is an EmptyOrderError
func IsEmptyOrderError(err error) bool {
	var eoe *EmptyOrderError
	return errors.As(err, &eoe)
}

// IsInvalidOrderError checks if an error is an InvalidOrderError
func IsInvalidOrderError(err error) bool {
	var ioe *InvalidOrderError
	return errors.As(err, &ioe)
}

// IsInvalidTransitionError checks if an error is an InvalidTransitionError
func IsInvalidTransitionError(err error) bool {
	var ite *InvalidTransitionError
	return errors.As(err, &ite)
}

// IsOrderNotFoundError checks if an error is an OrderNotFoundError
func IsOrderNotFoundError(err error) bool {
	var onf *OrderNotFoundError
	return errors.As(err, &onf)
}

// IsDependencyUnavailableError checks if an error is a DependencyUnavailableError
func IsDependencyUnavailableError(err error) bool {
	var due *DependencyUnavailableError
	return errors.As(err, &due)
}

// IsClientError reports whether err is caused by the request itself rather than
// by the system, meaning a retry with the same input cannot succeed.
func IsClientError(err error) bool {
	return IsEmptyOrderError(err) ||
		IsInvalidOrderError(err) ||
		IsInvalidProductError(err) ||
		IsDuplicateProductError(err) ||
		IsStaleProductError(err) ||
		IsProductNotFoundError(err) ||
		IsInsufficientStockError(err) ||
		IsInvalidTransitionError(err) ||
		IsOrderNotFoundError(err)
}
