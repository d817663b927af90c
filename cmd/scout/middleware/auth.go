// Package middleware provides gin middleware for the scout server.
package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/TFMV/scout/cmd/scout/config"
)

const userKey = "scout.user"

// AuthMiddleware authenticates requests with bearer tokens or JWTs.
type AuthMiddleware struct {
	config config.AuthConfig
	logger zerolog.Logger
}

// NewAuthMiddleware creates an auth middleware.
func NewAuthMiddleware(cfg config.AuthConfig, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{config: cfg, logger: logger}
}

// Handler enforces authentication when enabled.
func (m *AuthMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !m.config.Enabled {
			c.Next()
			return
		}

		user, err := m.authenticate(c)
		if err != nil {
			m.logger.Warn().Err(err).Str("path", c.Request.URL.Path).Msg("Authentication failed")
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

func (m *AuthMiddleware) authenticate(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return "", fmt.Errorf("missing bearer token")
	}
	token := strings.TrimPrefix(header, "Bearer ")

	switch m.config.Type {
	case "bearer":
		user, ok := m.config.Tokens[token]
		if !ok {
			return "", fmt.Errorf("invalid token")
		}
		return user, nil
	case "jwt":
		return m.authenticateJWT(token)
	default:
		return "", fmt.Errorf("unsupported auth type: %s", m.config.Type)
	}
}

func (m *AuthMiddleware) authenticateJWT(tokenString string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if m.config.JWT.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.config.JWT.Issuer))
	}
	if m.config.JWT.Audience != "" {
		opts = append(opts, jwt.WithAudience(m.config.JWT.Audience))
	}

	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		return []byte(m.config.JWT.Secret), nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("invalid jwt: %w", err)
	}

	subject, err := token.Claims.GetSubject()
	if err != nil || subject == "" {
		return "", fmt.Errorf("jwt has no subject")
	}
	return subject, nil
}

// GetUser returns the authenticated user for the request.
func GetUser(c *gin.Context) (string, bool) {
	user, ok := c.Get(userKey)
	if !ok {
		return "", false
	}
	s, ok := user.(string)
	return s, ok
}
