package api

import (
	"errors"
	"net/http"

	"ordercore/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// statusFor maps an error to its HTTP status and stable error code.
func statusFor(err error) (int, string) {
	switch {
	case domain.IsEmptyOrderError(err):
		return http.StatusBadRequest, "EMPTY_ORDER"
	case domain.IsInvalidOrderError(err):
		return http.StatusBadRequest, "INVALID_ORDER"
	case domain.IsInsufficientStockError(err):
		return http.StatusBadRequest, "INSUFFICIENT_STOCK"
	case domain.IsInvalidTransitionError(err):
		return http.StatusBadRequest, "INVALID_TRANSITION"
	case domain.IsProductNotFoundError(err):
		return http.StatusNotFound, "PRODUCT_NOT_FOUND"
	case domain.IsOrderNotFoundError(err):
		return http.StatusNotFound, "ORDER_NOT_FOUND"
	case domain.IsDependencyUnavailableError(err):
		return http.StatusServiceUnavailable, "DEPENDENCY_UNAVAILABLE"
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "UNAUTHORIZED"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// abortWithError writes the error envelope. Messages of server-side failures
// are replaced so internal detail never reaches the client.
func abortWithError(c *gin.Context, logger *zap.Logger, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	switch status {
	case http.StatusServiceUnavailable:
		msg = "a required service is temporarily unavailable"
	case http.StatusInternalServerError:
		msg = "internal server error"
	}
	if status >= 500 {
		logger.Error("request failed",
			zap.String("request_id", c.GetString(ctxRequestID)),
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.AbortWithStatusJSON(status, errorResponse{Success: false, Message: msg, ErrorCode: code})
}

func abortBadRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Success: false, Message: msg, ErrorCode: "BAD_REQUEST"})
}
