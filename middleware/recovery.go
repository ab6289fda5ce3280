package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/tobylas-w/ThaiTable-sub000/apperr"
)

// Recovery turns a panic into an INTERNAL error response.
func Recovery(exposeStack bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				c.Abort()
				respondError(c, apperr.Internal(fmt.Errorf("panic: %v", r)), exposeStack)
			}
		}()
		c.Next()
	}
}
