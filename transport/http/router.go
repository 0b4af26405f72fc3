package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SetupRouter wires the auth endpoints onto a gin engine.
func SetupRouter(handlers *AuthHandlers) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	auth := router.Group("/auth")
	{
		auth.POST("/challenge", handlers.Challenge)
		auth.POST("/verify", handlers.Verify)
		auth.POST("/callback", handlers.Callback)
		auth.GET("/callback", handlers.Callback)
		auth.GET("/status", handlers.Status)
		auth.POST("/logout", handlers.Logout)
	}

	api := router.Group("/api")
	api.Use(RequireSession(handlers.sessions))
	{
		api.GET("/me", func(c *gin.Context) {
			publicKey, _ := c.Get(ContextPublicKey)
			userID, _ := c.Get(ContextUserID)
			c.JSON(http.StatusOK, gin.H{
				"public_key": publicKey,
				"user_id":    userID,
			})
		})
	}

	return router
}
