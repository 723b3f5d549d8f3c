package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// InternalAuthMiddleware создает Gin middleware для проверки межсервисного секрета.
// Внутренние эндпоинты (тестовый обход генерации) доступны только собственным
// сервисам, которые передают общий секрет в заголовке.
func InternalAuthMiddleware(secret string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		log := logger.With(zap.String("path", c.Request.URL.Path))

		token := c.GetHeader("X-Internal-Service-Token")
		if token == "" {
			log.Warn("X-Internal-Service-Token header missing")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Missing inter-service token"})
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			snippet := token
			if len(snippet) > 15 {
				snippet = snippet[:15] + "..."
			}
			log.Warn("Inter-service token mismatch", zap.String("tokenSnippet", snippet))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid inter-service token"})
			return
		}

		c.Next()
	}
}
