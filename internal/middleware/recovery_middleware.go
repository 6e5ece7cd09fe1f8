// internal/middleware/recovery_middleware.go
package middleware

import (
	"fmt"

	xerrors "frontdesk-service/internal/pkg/errors"
	"frontdesk-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RecoveryMiddleware turns a handler panic into a 500 envelope. The staff id
// is logged when the panic happens behind Auth.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			staffID, _ := GetStaffID(c)
			logger.Error("handler panic",
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.String("staff_id", staffID),
				zap.String("panic", fmt.Sprint(rec)),
				zap.Stack("stack"),
			)
			response.FromError(c, "request failed", fmt.Errorf("%w: panic", xerrors.ErrInternal))
			c.Abort()
		}()
		c.Next()
	}
}
