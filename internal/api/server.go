package api

import (
	"log"

	"github.com/gin-gonic/gin"

	"postfetcher/internal/middleware"
)

// Router builds the HTTP surface: one inbound enqueue endpoint for the
// realtime subscriber plus read-only introspection.
func Router(h *Handler, inboundKey string) *gin.Engine {
	router := gin.Default()

	router.GET("/", func(c *gin.Context) {
		c.JSON(200, gin.H{"service": "postfetcher"})
	})

	router.GET("/queue", h.HandleQueueSummary)
	router.GET("/status", h.HandleStatus)

	protected := router.Group("/")
	protected.Use(middleware.APIKeyMiddleware(inboundKey))
	{
		protected.POST("/posts", h.HandleEnqueue)
	}

	return router
}

func Run(addr string, h *Handler, inboundKey string) {
	router := Router(h, inboundKey)
	log.Printf("Server started on %s", addr)
	if err := router.Run(addr); err != nil {
		log.Fatal(err)
	}
}
