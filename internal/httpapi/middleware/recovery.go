package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/mygpt/internal/common"
)

func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				common.LoggerFromContext(c.Request.Context()).Error("panic recovered",
					"panic", r,
					"stack", string(debug.Stack()),
				)
				common.Fail(c, http.StatusInternalServerError, 50000, "internal error")
			}
		}()
		c.Next()
	}
}
