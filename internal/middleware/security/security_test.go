package security

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"wealthywise/internal/log"
)

func TestHeaders(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Headers(DefaultHeadersConfig()))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", rr.Header().Get("Cache-Control"))
	assert.Contains(t, rr.Header().Get("Content-Security-Policy"), "default-src 'none'")
	assert.Empty(t, rr.Header().Get("Strict-Transport-Security"), "no HSTS over plain HTTP")

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	assert.Equal(t, "max-age=31536000; includeSubDomains", rr.Header().Get("Strict-Transport-Security"))
}

func TestDetectSuspiciousRequest(t *testing.T) {
	d := NewDetector(log.Discard())

	tests := []struct {
		name       string
		method     string
		target     string
		userAgent  string
		forwarded  string
		suspicious bool
	}{
		{"normal api call", http.MethodGet, "/v1/accounts", "ledgerctl/1.0", "", false},
		{"path traversal", http.MethodGet, "/v1/../../etc/passwd", "", "", true},
		{"dotenv probe", http.MethodGet, "/.env", "", "", true},
		{"traversal in query", http.MethodGet, "/v1/transactions?file=../secret", "", "", true},
		{"scanner agent", http.MethodGet, "/", "sqlmap/1.7", "", true},
		{"trace method", "TRACE", "/", "", "", true},
		{"long url", http.MethodGet, "/" + strings.Repeat("a", 2100), "", "", true},
		{"long forwarding chain", http.MethodGet, "/", "", "1.1.1.1,2.2.2.2,3.3.3.3,4.4.4.4,5.5.5.5,6.6.6.6,7.7.7.7", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.target, nil)
			if tt.userAgent != "" {
				req.Header.Set("User-Agent", tt.userAgent)
			}
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			reason := d.DetectSuspiciousRequest(req)
			assert.Equal(t, tt.suspicious, reason != "", "reason %q", reason)
		})
	}
}

func TestDetector_GinCountsButDoesNotBlock(t *testing.T) {
	gin.SetMode(gin.TestMode)
	d := NewDetector(nil)
	r := gin.New()
	r.Use(d.Gin())
	r.GET("/*path", func(c *gin.Context) { c.Status(http.StatusOK) })

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/wp-admin/setup", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/summary", nil))
	assert.Equal(t, int64(1), d.GetMetrics().SuspiciousRequests)
}
