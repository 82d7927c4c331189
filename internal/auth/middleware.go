package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/orders-service/internal/domain"
)

const identityContextKey = "auth.identity"

// Middleware возвращает gin-обработчик, который проверяет bearer-токен и
// кладёт Identity в контекст запроса. Любая ошибка проверки завершает
// запрос статусом 401; последующие обработчики не выполняются.
func Middleware(secret []byte, logger *log.Entry) gin.HandlerFunc {
	if logger == nil {
		logger = log.WithField("component", "auth")
	}

	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c, "authorization header is required")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			abortUnauthorized(c, "bearer token not found")
			return
		}

		identity, err := Verify(secret, strings.TrimSpace(parts[1]))
		if err != nil {
			logger.WithError(err).Debug("token verification failed")
			abortUnauthorized(c, ErrInvalidToken.Error())
			return
		}

		c.Set(identityContextKey, identity)
		c.Next()
	}
}

// IdentityFromContext достаёт Identity, положенную Middleware.
func IdentityFromContext(c *gin.Context) (domain.Identity, bool) {
	value, ok := c.Get(identityContextKey)
	if !ok {
		return domain.Identity{}, false
	}
	identity, ok := value.(domain.Identity)
	return identity, ok
}

func abortUnauthorized(c *gin.Context, reason string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": reason})
}
