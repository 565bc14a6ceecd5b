package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newLimiter(t *testing.T, perMinute, burst int) *RateLimiter {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return NewRateLimiter(ctx, RateLimiterConfig{
		RequestsPerMinute: perMinute,
		BurstSize:         burst,
		CleanupInterval:   time.Minute,
	})
}

func TestRateLimiter_AllowsBurst(t *testing.T) {
	limiter := newLimiter(t, 10, 5)
	for i := 0; i < 5; i++ {
		assert.True(t, limiter.Allow("client1"), "request %d", i+1)
	}
	assert.False(t, limiter.Allow("client1"))
}

func TestRateLimiter_SeparatesClients(t *testing.T) {
	limiter := newLimiter(t, 60, 1)
	assert.True(t, limiter.Allow("client1"))
	assert.True(t, limiter.Allow("client2"))
	assert.Equal(t, 2, limiter.Clients())
}

func TestRateLimiter_RefillsOverTime(t *testing.T) {
	limiter := newLimiter(t, 60, 1) // one per second
	now := time.Now()
	limiter.now = func() time.Time { return now }

	assert.True(t, limiter.Allow("client1"))
	assert.False(t, limiter.Allow("client1"))

	now = now.Add(1100 * time.Millisecond)
	assert.True(t, limiter.Allow("client1"))
}

func TestRateLimiter_CleanupDropsIdleClients(t *testing.T) {
	limiter := newLimiter(t, 60, 1)
	now := time.Now()
	limiter.now = func() time.Time { return now }

	limiter.Allow("idle")
	now = now.Add(30 * time.Second)
	limiter.Allow("busy")
	now = now.Add(45 * time.Second)

	limiter.cleanup()
	assert.Equal(t, 1, limiter.Clients())
}

func TestRateLimitMiddleware_Returns429(t *testing.T) {
	limiter := newLimiter(t, 60, 1)
	router := gin.New()
	router.Use(limiter.Middleware())
	router.GET("/test", func(c *gin.Context) { c.String(http.StatusOK, "ok") })

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.RemoteAddr = "192.168.1.1:1234"

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
}
