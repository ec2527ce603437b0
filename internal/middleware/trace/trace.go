package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// ContextKey type for context keys
type ContextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey ContextKey = "request_id"

	// HeaderRequestID carries the id in both directions.
	HeaderRequestID = "X-Request-ID"

	maxRequestIDLength = 64
)

// Middleware assigns request ids and counts requests.
type Middleware struct {
	metrics *counters
}

// Metrics tracks request metrics
type Metrics struct {
	TotalRequests       int64
	AverageResponseTime int64 // in microseconds
}

type counters struct {
	total       int64
	totalMicros int64
}

func NewMiddleware() *Middleware {
	return &Middleware{metrics: &counters{}}
}

// Gin returns a handler that reuses a well-formed incoming X-Request-ID or
// generates one, then exposes it on the gin context, the request context
// and the response header. It must run before the request logger.
func (m *Middleware) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(HeaderRequestID)
		if !validRequestID(requestID) {
			requestID = GenerateRequestID()
		}

		c.Set(string(RequestIDKey), requestID)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), RequestIDKey, requestID))
		c.Header(HeaderRequestID, requestID)

		c.Next()

		atomic.AddInt64(&m.metrics.total, 1)
		atomic.AddInt64(&m.metrics.totalMicros, time.Since(start).Microseconds())
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			return false
		}
	}
	return true
}

// GenerateRequestID creates a unique request ID for tracing
func GenerateRequestID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp if random fails
		return fmt.Sprintf("req_%d", time.Now().UnixNano())
	}
	return "req_" + hex.EncodeToString(bytes)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}

// FromGin returns the id set by Gin, or "".
func FromGin(c *gin.Context) string {
	return c.GetString(string(RequestIDKey))
}

// GetMetrics returns current metrics
func (m *Middleware) GetMetrics() Metrics {
	total := atomic.LoadInt64(&m.metrics.total)
	var avg int64
	if total > 0 {
		avg = atomic.LoadInt64(&m.metrics.totalMicros) / total
	}
	return Metrics{TotalRequests: total, AverageResponseTime: avg}
}
