package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"benchrun/pkg/models"
)

func TestValidateTarget(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())

	tests := []struct {
		name   string
		kind   models.TargetKind
		source string
		url    string
		field  string
	}{
		{name: "source", kind: models.TargetSource, source: "package b"},
		{name: "https url", kind: models.TargetURL, url: "https://example.com/bench_test.go"},
		{name: "http url", kind: models.TargetURL, url: "http://10.0.0.1:8080/b.go"},
		{name: "empty source", kind: models.TargetSource, source: "  ", field: "source"},
		{name: "source with url", kind: models.TargetSource, source: "package b", url: "https://x/y", field: "url"},
		{name: "url with source", kind: models.TargetURL, source: "package b", url: "https://x/y", field: "source"},
		{name: "relative url", kind: models.TargetURL, url: "/b.go", field: "url"},
		{name: "file url", kind: models.TargetURL, url: "file:///etc/passwd", field: "url"},
		{name: "unknown kind", kind: "DOCKER", field: "kind"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateTarget(tt.kind, tt.source, tt.url)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateTarget_SourceTooLong(t *testing.T) {
	cfg := DefaultValidatorConfig()
	cfg.MaxSourceLength = 10
	v := NewValidator(cfg)
	assert.Error(t, v.ValidateTarget(models.TargetSource, "package toolong", ""))
}

func TestValidateArgs(t *testing.T) {
	cfg := DefaultValidatorConfig()
	cfg.MaxArgs = 2
	v := NewValidator(cfg)

	assert.NoError(t, v.ValidateArgs([]string{"--count", "3"}))
	assert.Error(t, v.ValidateArgs([]string{"a", "b", "c"}))
	assert.Error(t, v.ValidateArgs([]string{"a\x00"}))
}

func TestValidateName(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig())
	assert.NoError(t, v.ValidateName("nightly"))
	assert.Error(t, v.ValidateName(""))
	assert.Error(t, v.ValidateName(strings.Repeat("x", 257)))
}

func TestBodySizeLimitMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(BodySizeLimitMiddleware(8))
	router.POST("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("0123456789")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("ok")))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequestIDMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware(), SecurityHeadersMiddleware())
	router.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(ContextRequestIDKey)) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Len(t, w.Header().Get("X-Request-ID"), 36)
	assert.Equal(t, w.Header().Get("X-Request-ID"), w.Body.String())
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Body.String())
}
