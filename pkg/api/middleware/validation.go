package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"benchrun/pkg/models"
)

// ValidatorConfig holds validation configuration
type ValidatorConfig struct {
	MaxBodySize     int64    // Maximum request body size in bytes
	AllowedSchemes  []string // URL schemes a target may be fetched with
	MaxNameLength   int      // Maximum schedule name length
	MaxSourceLength int      // Maximum inline source length
	MaxArgs         int      // Maximum number of run args
}

// DefaultValidatorConfig returns safe defaults
func DefaultValidatorConfig() ValidatorConfig {
	return ValidatorConfig{
		MaxBodySize:     1 << 20, // 1MB
		AllowedSchemes:  []string{"http", "https"},
		MaxNameLength:   256,
		MaxSourceLength: 512 << 10,
		MaxArgs:         32,
	}
}

// Validator checks run targets before they are queued or scheduled.
type Validator struct {
	config ValidatorConfig
}

func NewValidator(config ValidatorConfig) *Validator {
	return &Validator{config: config}
}

// ValidateTarget checks that kind carries the matching payload.
func (v *Validator) ValidateTarget(kind models.TargetKind, source, rawURL string) error {
	switch kind {
	case models.TargetSource:
		if strings.TrimSpace(source) == "" {
			return &ValidationError{Field: "source", Message: "source is required"}
		}
		if len(source) > v.config.MaxSourceLength {
			return &ValidationError{Field: "source", Message: "source exceeds maximum length"}
		}
		if rawURL != "" {
			return &ValidationError{Field: "url", Message: "url must be empty for a source target"}
		}
	case models.TargetURL:
		if source != "" {
			return &ValidationError{Field: "source", Message: "source must be empty for a url target"}
		}
		return v.validateURL(rawURL)
	default:
		return &ValidationError{Field: "kind", Message: "kind must be SOURCE or URL"}
	}
	return nil
}

func (v *Validator) validateURL(rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return &ValidationError{Field: "url", Message: "url must be absolute"}
	}
	for _, s := range v.config.AllowedSchemes {
		if strings.EqualFold(u.Scheme, s) {
			return nil
		}
	}
	return &ValidationError{Field: "url", Message: "url scheme is not allowed"}
}

// ValidateArgs bounds the run arguments. Their meaning is checked by the
// converter when the run starts.
func (v *Validator) ValidateArgs(args []string) error {
	if len(args) > v.config.MaxArgs {
		return &ValidationError{Field: "args", Message: "too many args"}
	}
	for _, a := range args {
		if strings.ContainsRune(a, 0) {
			return &ValidationError{Field: "args", Message: "args must not contain NUL"}
		}
	}
	return nil
}

// ValidateName checks schedule names
func (v *Validator) ValidateName(name string) error {
	if len(name) == 0 {
		return &ValidationError{
			Field:   "name",
			Message: "name is required",
		}
	}
	if len(name) > v.config.MaxNameLength {
		return &ValidationError{
			Field:   "name",
			Message: "name exceeds maximum length",
		}
	}
	return nil
}

// ValidationError represents a validation failure
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// BodySizeLimitMiddleware limits request body size
func BodySizeLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "request body too large",
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// SecurityHeadersMiddleware adds security headers
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")
		c.Next()
	}
}

// RequestIDMiddleware propagates X-Request-ID or assigns a new one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(ContextRequestIDKey, requestID)
		c.Header("X-Request-ID", requestID)
		c.Next()
	}
}
