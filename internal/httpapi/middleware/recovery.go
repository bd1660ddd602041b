package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-concierge/internal/common"
	"github.com/suPer8Hu/ai-concierge/internal/logger"
)

// Recovery turns a handler panic into the standard 500 envelope.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				if log != nil {
					log.Error("panic recovered", "path", c.Request.URL.Path, "request_id", c.GetString(RequestIDKey), "panic", r)
				}
				c.Abort()
				common.Fail(c, http.StatusInternalServerError, 50000, "internal server error")
			}
		}()
		c.Next()
	}
}
