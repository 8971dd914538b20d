package router

import (
	"context"

	"marketplace_chat_service/internal/chat/app"
	"marketplace_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"
	"github.com/gofiber/websocket/v2"
)

// RegisterRoutes wires the conversation REST surface and the live channel.
// @title Marketplace Chat Service API
// @version 1.0
// @description Real-time 1:1 conversation API for the marketplace
// @host localhost:8080
// @BasePath /
func RegisterRoutes(r *fiber.App, httpHandler *app.ChatHTTPHandler, wsHandler *app.ChatWebsocketHandler) {
	r.Get("/swagger/*", swagger.HandlerDefault)

	api := r.Group("/api/v1", middlewares.JWTMiddleware())
	api.Get("/conversations", httpHandler.GetConversations)
	api.Get("/messages/:counterpartId", httpHandler.GetMessages)
	api.Post("/messages", httpHandler.PostMessage)
	api.Put("/messages/:id", httpHandler.PutMessage)
	api.Delete("/messages/:id", httpHandler.DeleteMessage)
	api.Post("/messages/:id/read", httpHandler.PostRead)
	api.Post("/messages/markAllRead/:counterpartId", httpHandler.PostMarkAllRead)

	// the upgrade passes the same JWT middleware; an unauthenticated client
	// never reaches the socket
	r.Get("/ws", middlewares.JWTMiddleware(), websocket.New(func(c *websocket.Conn) {
		wsHandler.HandleConnection(context.Background(), c)
	}))
}
