package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/lumenlearn/starpass/ports"
)

// Context keys set by RequireSession for downstream handlers.
const (
	ContextPublicKey = "publicKey"
	ContextUserID    = "userID"
)

// RequireSession guards routes behind a valid session cookie. A missing or
// invalid cookie is a plain 401; this middleware never errors internally on
// bad cookie contents.
func RequireSession(sessions ports.SessionCodec) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(SessionCookie)
		if err != nil || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		data, err := sessions.Read(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		c.Set(ContextPublicKey, data.PublicKey)
		c.Set(ContextUserID, data.UserID)

		c.Next()
	}
}
