// Package handler implements the admin API endpoints.
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appintegration "github.com/mobilsoft/edire/internal/application/integration"
	"github.com/mobilsoft/edire/internal/domain/integration"
	"github.com/mobilsoft/edire/internal/infrastructure/logger"
	"github.com/mobilsoft/edire/internal/interfaces/http/dto"
	"github.com/mobilsoft/edire/internal/interfaces/http/middleware"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Error sends an error response with the status derived from code
func (h *BaseHandler) Error(c *gin.Context, code, message string) {
	c.JSON(dto.GetHTTPStatus(code), dto.NewErrorResponseWithRequestID(code, message, middleware.RequestID(c)))
}

// HandleError converts operation errors to HTTP responses
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	code, message := classify(err)
	if dto.GetHTTPStatus(code) >= http.StatusInternalServerError {
		logger.FromContext(c.Request.Context()).Error("operation failed", zap.Error(err))
	}
	_ = c.Error(err)
	h.Error(c, code, message)
}

func classify(err error) (code, message string) {
	switch {
	case errors.Is(err, appintegration.ErrUnknownOperation):
		return dto.ErrCodeNotFound, err.Error()
	case errors.Is(err, integration.ErrSourceNotFound):
		return dto.ErrCodeNotFound, err.Error()
	case errors.Is(err, appintegration.ErrInvalidArgument), errors.Is(err, integration.ErrInvalidWindow):
		return dto.ErrCodeInvalidInput, err.Error()
	case errors.Is(err, integration.ErrSourceBusy):
		return dto.ErrCodeConflict, err.Error()
	case errors.Is(err, integration.ErrSourceNotEnabled), errors.Is(err, integration.ErrCapabilityNotSupported):
		return dto.ErrCodeInvalidState, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return dto.ErrCodeTimeout, "Operation exceeded its time budget"
	case integration.IsAuthError(err), integration.IsTransportError(err):
		return dto.ErrCodeUpstream, err.Error()
	default:
		return dto.ErrCodeInternal, "An unexpected error occurred"
	}
}
