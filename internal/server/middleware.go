package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"lot-auction/internal/biddingerrors"
	"lot-auction/internal/metrics"
	"lot-auction/internal/models"
	"lot-auction/services/bidding/helpers"
	"lot-auction/utils"
)

// UserHeader carries the caller's user id
const UserHeader = "X-User-ID"

// UserLookup resolves a user id to an account
type UserLookup interface {
	GetUser(userID int64) (models.User, error)
}

// RequestIDMiddleware propagates X-Request-ID or assigns a fresh one
func RequestIDMiddleware(c *gin.Context) {
	id := c.GetHeader("X-Request-ID")
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	c.Set(utils.RequestIDKey, id)
	c.Header("X-Request-ID", id)
	c.Next()
}

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":     c.Request.Method,
		"path":       c.Request.URL.Path,
		"status":     c.Writer.Status(),
		"latency":    time.Since(start).String(),
		"request_id": c.GetString(utils.RequestIDKey),
	}
	if len(c.Errors) > 0 {
		fields["errors"] = c.Errors.String()
	}
	utils.Info("HTTP Request", fields)
	metrics.ObserveRequest(c.FullPath(), c.Request.Method, c.Writer.Status(), time.Since(start))
}

// IdentifyUser loads the user named by X-User-ID. Requests without the
// header continue anonymously; an unknown or malformed id is rejected.
func IdentifyUser(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(UserHeader)
		if raw == "" {
			c.Next()
			return
		}

		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			helpers.RespondError(c, "IdentifyUser", fmt.Errorf("%w - bad %s %q", biddingerrors.ErrUserNotFound, UserHeader, raw), nil)
			return
		}
		user, err := users.GetUser(id)
		if err != nil {
			helpers.RespondError(c, "IdentifyUser", err, map[string]any{"user_id": id})
			return
		}

		c.Set(helpers.UserKey, user)
		c.Next()
	}
}

// RequireCapability rejects callers whose role lacks capability
func RequireCapability(capability models.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := helpers.CurrentUser(c)
		if !ok {
			helpers.RespondError(c, "RequireCapability", biddingerrors.ErrUserNotFound, nil)
			return
		}
		if !models.Can(user.Role, capability) {
			utils.JSONError(c, http.StatusForbidden,
				fmt.Errorf("%w: %s cannot %s", biddingerrors.ErrForbidden, user.Role, capability),
				"action not allowed for your role")
			utils.Warn("RequireCapability: forbidden", map[string]any{
				"user_id":    user.ID,
				"role":       string(user.Role),
				"capability": string(capability),
			})
			return
		}
		c.Next()
	}
}
