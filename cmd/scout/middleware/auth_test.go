package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TFMV/scout/cmd/scout/config"
)

func authedRouter(t *testing.T, m *AuthMiddleware, wantUser string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(m.Handler())
	r.POST("/v1/questions", func(c *gin.Context) {
		user, ok := GetUser(c)
		assert.True(t, ok)
		assert.Equal(t, wantUser, user)
		c.Status(http.StatusOK)
	})
	return r
}

func TestAuthDisabledPassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewAuthMiddleware(config.AuthConfig{Enabled: false}, zerolog.Nop())
	r := gin.New()
	r.Use(m.Handler())
	r.GET("/v1/questions", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/questions", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBearerAuth(t *testing.T) {
	m := NewAuthMiddleware(config.AuthConfig{
		Enabled: true,
		Type:    "bearer",
		Tokens:  map[string]string{"s3cret": "analyst"},
	}, zerolog.Nop())
	r := authedRouter(t, m, "analyst")

	req := httptest.NewRequest(http.MethodPost, "/v1/questions", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/questions", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/v1/questions", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestJWTAuth(t *testing.T) {
	secret := "test-secret"
	m := NewAuthMiddleware(config.AuthConfig{
		Enabled: true,
		Type:    "jwt",
		JWT:     config.JWTAuthConfig{Secret: secret, Issuer: "scout"},
	}, zerolog.Nop())
	r := authedRouter(t, m, "analyst")

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "analyst",
		Issuer:    "scout",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/questions", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestJWTAuthRejectsBadIssuer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	secret := "test-secret"
	m := NewAuthMiddleware(config.AuthConfig{
		Enabled: true,
		Type:    "jwt",
		JWT:     config.JWTAuthConfig{Secret: secret, Issuer: "scout"},
	}, zerolog.Nop())
	r := gin.New()
	r.Use(m.Handler())
	r.POST("/v1/questions", func(*gin.Context) {
		t.Fatal("handler must not run")
	})

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "analyst",
		Issuer:    "somebody-else",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/questions", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Recovery(zerolog.Nop()))
	r.GET("/", func(*gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
