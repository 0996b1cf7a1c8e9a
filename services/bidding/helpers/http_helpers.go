package helpers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"lot-auction/internal/biddingerrors"
	model "lot-auction/internal/models"
	"lot-auction/utils"
)

// UserKey is the gin context key holding the identified model.User
const UserKey = "user"

// HandleBindError sends a standardized JSON error for binding failures
func HandleBindError(c *gin.Context, handlerName string, err error) {
	wrappedErr := fmt.Errorf("invalid request payload: %w", err)
	utils.JSONError(c, http.StatusBadRequest, wrappedErr, "invalid request payload")
	utils.Warn(handlerName+": binding error", map[string]any{"error": err.Error()})
}

// MapErrorToHTTP maps domain/service errors to HTTP status code and message
func MapErrorToHTTP(err error) (int, string) {
	switch {
	case errors.Is(err, biddingerrors.ErrLotNotFound):
		return http.StatusNotFound, "lot not found"
	case errors.Is(err, biddingerrors.ErrUserNotFound):
		return http.StatusUnauthorized, "unknown user"
	case errors.Is(err, biddingerrors.ErrInvalidBid), errors.Is(err, biddingerrors.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid bid details"
	case errors.Is(err, biddingerrors.ErrInvalidID):
		return http.StatusBadRequest, "invalid identifier"
	case errors.Is(err, biddingerrors.ErrInvalidLot):
		return http.StatusBadRequest, "invalid lot"
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return http.StatusConflict, "bid amount too low"
	case errors.Is(err, biddingerrors.ErrLotNotActive):
		return http.StatusConflict, "auction is not active for this lot"
	case errors.Is(err, biddingerrors.ErrNoTokens):
		return http.StatusForbidden, "no tokens available for this project"
	case errors.Is(err, biddingerrors.ErrForbidden):
		return http.StatusForbidden, "action not allowed for your role"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

// RespondError logs err and writes the mapped error envelope
func RespondError(c *gin.Context, handlerName string, err error, ctx map[string]any) {
	status, message := MapErrorToHTTP(err)
	utils.JSONError(c, status, fmt.Errorf("%s: %w", message, err), message)

	fields := map[string]any{"handler": handlerName, "error": err.Error()}
	for k, v := range ctx {
		fields[k] = v
	}
	if status >= http.StatusInternalServerError {
		utils.Error(handlerName+": request failed", fields)
		return
	}
	utils.Warn(handlerName+": request rejected", fields)
}

// ParseIDParam reads a positive integer path parameter
func ParseIDParam(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w - bad %s %q", biddingerrors.ErrInvalidID, name, c.Param(name))
	}
	return id, nil
}

// CurrentUser returns the user identified for this request
func CurrentUser(c *gin.Context) (model.User, bool) {
	v, ok := c.Get(UserKey)
	if !ok {
		return model.User{}, false
	}
	u, ok := v.(model.User)
	return u, ok
}

// LogSuccess is a small helper to standardize logging of successful operations
func LogSuccess(handlerName, message string, ctx map[string]any) {
	utils.Info(handlerName+": "+message, ctx)
}
