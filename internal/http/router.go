// README: HTTP router registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"travelflow/internal/http/handlers"
	"travelflow/internal/http/middleware"
)

// NewRouter builds the gin engine with middleware and every API route.
func NewRouter(deps ServerDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.RequestLogger())

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := r.Group("/api", middleware.Auth(deps.APIToken))

	itineraryHandler := handlers.NewItineraryHandler(deps.Itinerary)
	api.POST("/itineraries", itineraryHandler.Generate)
	api.GET("/itineraries/current", itineraryHandler.Current)
	api.DELETE("/itineraries/current", itineraryHandler.Reset)
	api.GET("/itineraries/history", itineraryHandler.History)
	api.GET("/itineraries/allowance", itineraryHandler.Allowance)

	chatHandler := handlers.NewChatHandler(deps.Chat, deps.Location)
	api.POST("/chat/conversations", chatHandler.Create)
	api.GET("/chat/conversations/:id/messages", chatHandler.Messages)
	api.POST("/chat/conversations/:id/messages", chatHandler.Send)
	api.POST("/chat/conversations/:id/stop", chatHandler.Stop)
	api.GET("/chat/conversations/:id/ws", chatHandler.Socket)

	locationHandler := handlers.NewLocationHandler(deps.Chat, deps.Location)
	api.POST("/chat/conversations/:id/location", locationHandler.Report)
	api.GET("/chat/conversations/:id/location", locationHandler.Status)

	return r
}
