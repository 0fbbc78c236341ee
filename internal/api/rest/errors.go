package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apierrors "github.com/feral-file/ff-ledger/internal/api/shared/errors"
	"github.com/feral-file/ff-ledger/internal/logger"
)

func respond(c *gin.Context, status int, apiErr *apierrors.APIError) {
	c.JSON(status, apierrors.ErrorResponse{Error: apiErr})
}

// respondBadRequest responds with a bad request error
func respondBadRequest(c *gin.Context, message string, details ...string) {
	respond(c, http.StatusBadRequest, apierrors.NewBadRequestError(message, details...))
}

// respondNotFound responds with a not found error
func respondNotFound(c *gin.Context, message string, details ...string) {
	respond(c, http.StatusNotFound, apierrors.NewNotFoundError(message, details...))
}

// respondValidationError responds with a validation error
func respondValidationError(c *gin.Context, message string) {
	respond(c, http.StatusBadRequest, apierrors.NewValidationError(message))
}

// respondUnauthorized responds with an authentication error
func respondUnauthorized(c *gin.Context, message string) {
	respond(c, http.StatusUnauthorized, apierrors.NewUnauthorizedError(message))
}

// respondLedgerError maps a ledger rule violation to its status and code; anything else is an internal error
func respondLedgerError(c *gin.Context, err error, message string, fields ...zap.Field) {
	if status, apiErr, ok := apierrors.FromLedgerError(err); ok {
		respond(c, status, apiErr)
		return
	}
	respondInternalError(c, err, message, fields...)
}

// respondInternalError responds with an internal server error and logs the cause
func respondInternalError(c *gin.Context, err error, message string, fields ...zap.Field) {
	logger.ErrorCtx(c.Request.Context(), err, fields...)
	respond(c, http.StatusInternalServerError, apierrors.NewInternalError(message))
}
