package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"wealthywise/internal/log"
)

// requireUser rejects requests without a usable X-User-ID header and stores
// the id for handlers.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := sanitizeInput(c.GetHeader(headerUserID))
		if userID == "" {
			abortWithError(c, http.StatusUnauthorized, codeUnauthorized, "missing "+headerUserID+" header")
			return
		}
		if len(userID) > maxUserIDLen {
			abortWithError(c, http.StatusBadRequest, codeBadRequest, headerUserID+" header too long")
			return
		}
		c.Set(userIDKey, userID)
		ctx := c.Request.Context()
		c.Request = c.Request.WithContext(log.WithContext(ctx, log.FromContext(ctx).With(log.FieldUserID, userID)))
		c.Next()
	}
}

// requireAdmin checks the bearer token. With no token configured the admin
// API is closed.
func requireAdmin(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			abortWithError(c, http.StatusForbidden, codeForbidden, "admin API is disabled")
			return
		}
		auth := c.GetHeader("Authorization")
		scheme, given, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(given)), []byte(token)) != 1 {
			abortWithError(c, http.StatusUnauthorized, codeUnauthorized, "invalid admin token")
			return
		}
		c.Next()
	}
}

// maintenanceGate rejects writes with 503 while maintenance mode is on.
// Reads always pass. A settings read failure lets the request through.
func (s *Server) maintenanceGate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isWrite(c.Request.Method) {
			c.Next()
			return
		}
		ctx := c.Request.Context()
		st, err := s.settings.Load(ctx)
		if err != nil {
			log.FromContext(ctx).WarnContext(ctx, "Could not read maintenance flag", log.FieldError, err)
			c.Next()
			return
		}
		if st.MaintenanceMode {
			c.Header("Retry-After", "300")
			abortWithError(c, http.StatusServiceUnavailable, codeMaintenance, "the ledger is in maintenance mode, writes are disabled")
			return
		}
		c.Next()
	}
}

// invalidateOnWrite drops the user's cached figures after a successful write.
func (s *Server) invalidateOnWrite() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if !isWrite(c.Request.Method) || c.Writer.Status() >= 400 {
			return
		}
		if userID := currentUser(c); userID != "" {
			s.summaryCache.DeletePrefix(userCachePrefix(userID))
		}
	}
}
