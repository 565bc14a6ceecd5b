package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchrun/pkg/auth"
)

type keyStore map[string]auth.APIKeyInfo

func (k keyStore) ValidateKey(_ context.Context, key string) (*auth.APIKeyInfo, error) {
	info, ok := k[key]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return &info, nil
}
func (keyStore) CreateKey(context.Context, auth.APIKeyInfo) (string, error) { return "", nil }
func (keyStore) RevokeKey(context.Context, string) error                    { return nil }
func (keyStore) ListKeys(context.Context, string) ([]auth.APIKeyInfo, error) {
	return nil, nil
}

func authRouter(t *testing.T) (*gin.Engine, *auth.JWTService) {
	t.Helper()
	jwtSvc, err := auth.NewJWTService(auth.JWTConfig{SecretKey: "k", Issuer: "benchrun"})
	require.NoError(t, err)

	cfg := AuthConfig{
		JWTService:  jwtSvc,
		APIKeyStore: keyStore{"br_ci": {Name: "ci", OwnerID: "team", Role: auth.RoleViewer}},
		SkipPaths:   []string{"/open/*"},
	}
	router := gin.New()
	router.Use(AuthMiddleware(cfg))
	router.GET("/open/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/read", RequireRole(auth.RoleViewer, true), func(c *gin.Context) {
		claims, _ := GetUserFromContext(c)
		c.String(http.StatusOK, claims.UserID)
	})
	router.POST("/write", RequireRole(auth.RoleOperator, true), func(c *gin.Context) { c.Status(http.StatusOK) })
	return router, jwtSvc
}

func serve(router http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	router, jwtSvc := authRouter(t)
	opToken, err := jwtSvc.GenerateToken("u1", "ada", auth.RoleOperator)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/open/ping", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/read", nil).Code)
	assert.Equal(t, http.StatusUnauthorized,
		serve(router, http.MethodGet, "/read", map[string]string{AuthHeaderKey: "Bearer nope"}).Code)

	w := serve(router, http.MethodGet, "/read", map[string]string{AuthHeaderKey: "bearer " + opToken})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "u1", w.Body.String())

	w = serve(router, http.MethodGet, "/read", map[string]string{APIKeyHeaderKey: "br_ci"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "team", w.Body.String())

	assert.Equal(t, http.StatusForbidden,
		serve(router, http.MethodPost, "/write", map[string]string{APIKeyHeaderKey: "br_ci"}).Code)
	assert.Equal(t, http.StatusOK,
		serve(router, http.MethodPost, "/write", map[string]string{AuthHeaderKey: "Bearer " + opToken}).Code)
}

func TestRequireRole_NotEnforced(t *testing.T) {
	router := gin.New()
	router.GET("/", RequireRole(auth.RoleAdmin, false), func(c *gin.Context) { c.Status(http.StatusOK) })
	assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/", nil).Code)
}

func TestCanModify(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.True(t, CanModify(c, "anyone"), "no caller means auth is disabled")

	c.Set(ContextUserKey, &auth.Claims{UserID: "u1", Role: auth.RoleOperator})
	assert.True(t, CanModify(c, "u1"))
	assert.False(t, CanModify(c, "u2"))

	c.Set(ContextUserKey, &auth.Claims{UserID: "root", Role: auth.RoleAdmin})
	assert.True(t, CanModify(c, "u2"))
}

func TestMatchPath(t *testing.T) {
	assert.True(t, matchPath("/health", "/health"))
	assert.False(t, matchPath("/healthz", "/health"))
	assert.True(t, matchPath("/api/v1/runs", "/api/*"))
	assert.False(t, matchPath("/metrics", "/api/*"))
}
