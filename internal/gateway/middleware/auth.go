package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"velora-system/internal/auth"
	"velora-system/internal/utils"
)

const actorKey = "actor"

func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Authorization header required",
			})
			return
		}

		claims, err := utils.ParseToken(secret, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"message": "Invalid or expired token",
			})
			return
		}

		c.Set(actorKey, auth.Actor{ID: claims.UserId, Role: claims.Role})
		c.Next()
	}
}

// ActorFromContext returns the authenticated actor set by JWTAuth.
func ActorFromContext(c *gin.Context) (auth.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return auth.Actor{}, false
	}
	actor, ok := v.(auth.Actor)
	return actor, ok
}
