package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"

	"echotree/domain/dto"
	"echotree/infrastructure/logger"
)

const (
	// UserIDKey holds the token subject.
	UserIDKey = "user_id"
	// SessionKey scopes submit tokens; it is the token id when present, otherwise the subject.
	SessionKey = "session_id"
)

// Auth validates an HS256 bearer token signed with secretKey.
func Auth(secretKey string) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		res := dto.Res{ResponseCode: "401", ResponseMessage: "Unauthorized"}

		authorization := ctx.Request.Header.Get("Authorization")
		raw, ok := strings.CutPrefix(authorization, "Bearer ")
		if !ok || raw == "" || secretKey == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, res)
			return
		}

		claims, token, err := getClaim(raw, secretKey)
		if err != nil || token == nil || !token.Valid {
			res.ResponseMessage = reason(err)
			logger.GetLogger().WithField("error", err).Debug("rejected bearer token")
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, res)
			return
		}
		if claims.Subject == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, res)
			return
		}

		session := claims.Id
		if session == "" {
			session = claims.Subject
		}
		ctx.Set(UserIDKey, claims.Subject)
		ctx.Set(SessionKey, session)
		ctx.Next()
	}
}

func reason(err error) string {
	var ve *jwt.ValidationError
	if errors.As(err, &ve) {
		switch {
		case ve.Errors&jwt.ValidationErrorMalformed != 0:
			return "That's not even a token"
		case ve.Errors&(jwt.ValidationErrorExpired|jwt.ValidationErrorNotValidYet) != 0:
			return "Timing is everything"
		default:
			return fmt.Sprintf("Couldn't handle this token: %v", err)
		}
	}
	return "Unauthorized"
}

func getClaim(raw, secretKey string) (*jwt.StandardClaims, *jwt.Token, error) {
	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return []byte(secretKey), nil
	})
	return claims, token, err
}
