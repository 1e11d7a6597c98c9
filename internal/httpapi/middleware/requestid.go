package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/suPer8Hu/mygpt/internal/common"
)

const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "request_id"
)

// RequestID reuses an incoming X-Request-ID or mints one, echoes it on the
// response and attaches a request-scoped logger to the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(RequestIDHeader)
		if rid == "" || len(rid) > 128 {
			rid = uuid.NewString()
		}
		c.Set(RequestIDKey, rid)
		c.Header(RequestIDHeader, rid)

		ctx := c.Request.Context()
		log := common.LoggerFromContext(ctx).With(RequestIDKey, rid)
		c.Request = c.Request.WithContext(common.ContextWithLogger(ctx, log))
		c.Next()
	}
}
