package http

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	headerUserID = "X-User-ID"
	userIDKey    = "user_id"
	maxUserIDLen = 128
)

// currentUser returns the id stored by requireUser.
func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}

// sanitizeInput removes control characters except tab, newline and
// carriage return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}

// summaryCacheKey is the key of a user's unfiltered summary. Every key of
// a user starts with userCachePrefix.
func summaryCacheKey(userID string) string {
	return userCachePrefix(userID) + "summary"
}

func userCachePrefix(userID string) string {
	return userID + "|"
}

func isWrite(method string) bool {
	switch method {
	case "GET", "HEAD", "OPTIONS":
		return false
	}
	return true
}
