package utils

import (
	"errors"
	"fmt"
	"time"

	"echotree/infrastructure/logger"

	"github.com/golang-jwt/jwt"
)

// GetCurrentTime is the clock used by the engine and the schedulers; timestamps are stored in UTC.
func GetCurrentTime() time.Time {
	return time.Now().UTC()
}

// SessionClaims builds the bearer claims the API expects: sub is the user, jti scopes submit tokens.
// A zero ttl issues a token without expiry.
func SessionClaims(subject, sessionID string, issuedAt time.Time, ttl time.Duration) map[string]interface{} {
	claims := map[string]interface{}{
		"sub": subject,
		"jti": sessionID,
		"iat": issuedAt.Unix(),
	}
	if ttl > 0 {
		claims["exp"] = issuedAt.Add(ttl).Unix()
	}
	return claims
}

// GenerateToken signs payload with HS256.
func GenerateToken(payload map[string]interface{}, secretKey string) (string, error) {
	if secretKey == "" {
		return "", errors.New("empty signing key")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims(payload))
	signed, err := token.SignedString([]byte(secretKey))
	if err != nil {
		logger.GetLogger().WithField("error", err).Error("Error while generate token")
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}
