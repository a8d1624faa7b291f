package controller

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github/itish2003/agriqa/logger"
	"github/itish2003/agriqa/services"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ContextUserID is the gin context key holding the authenticated user id.
const ContextUserID = "user_id"

// RequestLogger logs one line per request.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		kv := []interface{}{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"latency", time.Since(start).String(),
		}
		if status >= http.StatusInternalServerError {
			log.Error("request", kv...)
			return
		}
		log.Info("request", kv...)
	}
}

// HeaderNewToken carries a refreshed token when the presented one is close
// to expiry.
const HeaderNewToken = "X-New-Token"

// AuthMiddleware verifies bearer tokens signed with the shared secret and
// exposes their user_id claim. Tokens expiring within tokenTTL are
// re-issued in the X-New-Token header.
type AuthMiddleware struct {
	log       *logger.Logger
	secret    []byte
	algorithm string
	tokenTTL  time.Duration
}

func NewAuthMiddleware(log *logger.Logger, secret, algorithm string, tokenTTL time.Duration) *AuthMiddleware {
	if algorithm == "" {
		algorithm = jwt.SigningMethodHS256.Alg()
	}
	return &AuthMiddleware{
		log:       log.With("middleware", "AuthMiddleware"),
		secret:    []byte(secret),
		algorithm: algorithm,
		tokenTTL:  tokenTTL,
	}
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid token"})
			return
		}
		claims, userID, err := am.parse(tokenString)
		if err != nil {
			am.log.Debug("rejected token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		if fresh, ok := am.refresh(claims); ok {
			c.Header(HeaderNewToken, fresh)
		}
		c.Set(ContextUserID, userID)
		c.Next()
	}
}

func (am *AuthMiddleware) parse(tokenString string) (jwt.MapClaims, string, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return am.secret, nil
	}, jwt.WithValidMethods([]string{am.algorithm}))
	if err != nil {
		return nil, "", fmt.Errorf("parse token: %w", err)
	}
	userID, err := userIDClaim(claims)
	if err != nil {
		return nil, "", err
	}
	return claims, userID, nil
}

// refresh signs a copy of claims with a new expiry when the current one is
// less than tokenTTL away.
func (am *AuthMiddleware) refresh(claims jwt.MapClaims) (string, bool) {
	if am.tokenTTL <= 0 {
		return "", false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil || time.Until(exp.Time) >= am.tokenTTL {
		return "", false
	}
	fresh := make(jwt.MapClaims, len(claims))
	for k, v := range claims {
		fresh[k] = v
	}
	fresh["exp"] = jwt.NewNumericDate(time.Now().Add(am.tokenTTL))
	signed, err := jwt.NewWithClaims(jwt.GetSigningMethod(am.algorithm), fresh).SignedString(am.secret)
	if err != nil {
		am.log.Warn("could not refresh token", "error", err)
		return "", false
	}
	return signed, true
}

func userIDClaim(claims jwt.MapClaims) (string, error) {
	raw, ok := claims[ContextUserID]
	if !ok || raw == nil {
		return "", errors.New("token has no user_id claim")
	}
	var userID string
	switch v := raw.(type) {
	case string:
		userID = v
	case float64:
		userID = fmt.Sprintf("%.0f", v)
	default:
		userID = fmt.Sprint(v)
	}
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("empty user_id claim")
	}
	return userID, nil
}

func extractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

// respondError maps service errors to HTTP status codes.
func respondError(ctx *gin.Context, log *logger.Logger, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("request failed", "path", ctx.FullPath(), "error", err)
		msg = "internal server error"
	}
	ctx.JSON(status, gin.H{"error": msg})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrEmbeddingUnavailable),
		errors.Is(err, services.ErrIndexUnavailable),
		errors.Is(err, services.ErrModelUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
