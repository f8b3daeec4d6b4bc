package middlewares

import (
	"crypto/subtle"
	"net/http"
	"os"

	"bitbucket.org/mmtopup/recon_backend/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware guards the operational API with the service key issued to the
// back-office. Identity of the human operator rides in a separate header so
// manual resolutions are attributable in the audit trail.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		expected := os.Getenv("RECON_API_KEY")
		if expected == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "RECON_API_KEY is not configured"})
			return
		}
		provided := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}

		if operator := c.GetHeader("X-Operator-Id"); operator != "" {
			ctx := utils.SetOperatorIdInContext(c.Request.Context(), operator)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}
}
