package middleware

import "github.com/gin-gonic/gin"

// NoStoreMiddleware disables caching of every response. The redirect
// target's own caching policy is unaffected.
func NoStoreMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}
