package utils

import (
	"github.com/gin-gonic/gin"
)

// RequestIDKey is the gin context key holding the request correlation id
const RequestIDKey = "request_id"

// JSONResponse sends the {status, message, data} envelope
func JSONResponse(c *gin.Context, status int, data any, message string) {
	body := gin.H{
		"status":  status,
		"message": message,
		"data":    data,
	}
	withRequestID(c, body)
	c.JSON(status, body)
}

// JSONError sends an error envelope. The "error" field carries userMessage,
// which clients show verbatim; the internal error only goes to the logs.
func JSONError(c *gin.Context, status int, err error, userMessage string) {
	body := gin.H{
		"status":  status,
		"message": userMessage,
		"error":   userMessage,
	}
	withRequestID(c, body)
	if err != nil {
		_ = c.Error(err)
	}
	c.AbortWithStatusJSON(status, body)
}

func withRequestID(c *gin.Context, body gin.H) {
	if id := c.GetString(RequestIDKey); id != "" {
		body["request_id"] = id
	}
}
