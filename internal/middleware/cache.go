package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore marks API responses as uncacheable. Editors hold their own
// snapshot and must never be served a stale tree by an intermediary.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
