package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/wavechat/wavechat-backend/internal/handler"
	"github.com/wavechat/wavechat-backend/internal/middleware"
	"github.com/wavechat/wavechat-backend/pkg/jwt"
)

// Setup configures the REST and WebSocket routes
func Setup(
	router *gin.Engine,
	jwtManager *jwt.Manager,
	userHandler *handler.UserHandler,
	chatHandler *handler.ChatHandler,
	wsHandler *handler.WSHandler,
) {
	api := router.Group("/api")
	api.Use(middleware.JWTAuth(jwtManager))
	api.GET("/users", userHandler.ListUsers)
	api.GET("/chats/:userId", chatHandler.ListUserChats)

	// The socket authenticates itself at handshake; no REST middleware here
	router.GET("/ws", wsHandler.Connect)
}
