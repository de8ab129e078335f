package middleware

import (
	"net/http"

	"github.com/GriffinCanCode/AgentOS/devcontainer/internal/infrastructure/logging"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Recovery converts handler panics into 500 responses and logs them.
func Recovery(logger *logging.Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, err any) {
		logger.Error("panic serving request",
			zap.String("path", c.Request.URL.Path),
			zap.Any("panic", err))
		c.AbortWithStatus(http.StatusInternalServerError)
	})
}
