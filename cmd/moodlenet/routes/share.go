package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/HuongNV13/moodle/cmd/moodlenet/container"
	"github.com/HuongNV13/moodle/cmd/moodlenet/handlers"
	"github.com/HuongNV13/moodle/common/middleware"
)

// RegisterShareRoutes registers the share and share-history routes
func RegisterShareRoutes(e *echo.Echo, c *container.Container) {
	share := handlers.NewShareHandler(c)
	progress := handlers.NewProgressHandler(c)

	cfg := c.Components.Config.MoodleNet
	limit := middleware.ShareRateLimitMiddleware(
		c.RateLimiter,
		cfg.ShareRateLimit,
		int(cfg.ShareRateWindow.Seconds()),
	)

	shares := e.Group("/api/v1/moodlenet/shares")
	{
		shares.POST("/activity", share.ShareActivity, limit)            // POST /api/v1/moodlenet/shares/activity
		shares.POST("/course", share.ShareCourse, limit)                // POST /api/v1/moodlenet/shares/course
		shares.POST("/course/partial", share.ShareCoursePartial, limit) // POST /api/v1/moodlenet/shares/course/partial
		shares.GET("/progress", progress.ListProgress)                  // GET /api/v1/moodlenet/shares/progress
	}
}
