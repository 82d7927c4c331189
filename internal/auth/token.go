package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vladislavdragonenkov/orders-service/internal/domain"
)

// DefaultTokenTTL — срок жизни выпускаемых токенов.
const DefaultTokenTTL = time.Hour

// ErrInvalidToken возвращается при любой ошибке верификации: неверная
// подпись, истёкший срок, отсутствующий user_id.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims описывает полезную нагрузку bearer-токена.
type Claims struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Sign выпускает HS256-токен для пользователя. Используется тестовым
// эндпоинтом generate-token и интеграционными тестами.
func Sign(secret []byte, userID, name string, ttl time.Duration) (string, error) {
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now().UTC()
	claims := Claims{
		UserID: userID,
		Name:   name,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify проверяет подпись и срок токена и восстанавливает Identity.
// Исходная строка токена сохраняется для проброса в downstream-сервисы.
func Verify(secret []byte, tokenString string) (domain.Identity, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(
		tokenString,
		&claims,
		func(*jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !token.Valid {
		return domain.Identity{}, ErrInvalidToken
	}
	if claims.UserID == "" {
		return domain.Identity{}, ErrInvalidToken
	}

	return domain.Identity{
		UserID: claims.UserID,
		Name:   claims.Name,
		Token:  tokenString,
	}, nil
}
