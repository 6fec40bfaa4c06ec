package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/HuongNV13/moodle/cmd/moodlenet/container"
	"github.com/HuongNV13/moodle/cmd/moodlenet/handlers"
)

// RegisterAuthRoutes registers the delegated-authorization routes
func RegisterAuthRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewAuthHandler(c)

	auth := e.Group("/api/v1/moodlenet")
	{
		auth.POST("/authorize", h.Authorize) // POST /api/v1/moodlenet/authorize
		auth.GET("/callback", h.Callback)    // GET /api/v1/moodlenet/callback
	}
}
