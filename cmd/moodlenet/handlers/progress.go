package handlers

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/HuongNV13/moodle/cmd/moodlenet/container"
	"github.com/HuongNV13/moodle/cmd/moodlenet/middleware"
	"github.com/HuongNV13/moodle/cmd/moodlenet/service"
	"github.com/HuongNV13/moodle/common/bootstrap"
	"github.com/HuongNV13/moodle/common/models"
)

const (
	defaultPerPage = 20
	maxPerPage     = 50
)

// ProgressHandler serves the user's share history
type ProgressHandler struct {
	components *bootstrap.Components
	sender     *service.Sender
}

// NewProgressHandler creates a new progress handler
func NewProgressHandler(c *container.Container) *ProgressHandler {
	return &ProgressHandler{
		components: c.Components,
		sender:     c.Sender,
	}
}

// ListProgress lists the caller's share attempts, newest and most significant
// first
// GET /api/v1/moodlenet/shares/progress?page=0&perpage=20
func (h *ProgressHandler) ListProgress(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := middleware.RequireUserID(c)
	if err != nil {
		return err
	}

	page := queryInt(c, "page", 0)
	if page < 0 {
		page = 0
	}
	perPage := queryInt(c, "perpage", defaultPerPage)
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}

	shares, total, err := h.sender.ListProgress(ctx, userID, page, perPage)
	if err != nil {
		h.components.Logger.Error("failed to list share progress", "user_id", userID, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to list share progress",
		})
	}

	if shares == nil {
		shares = []*models.ShareProgress{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"shares":  shares,
		"total":   total,
		"page":    page,
		"perpage": perPage,
	})
}

func queryInt(c echo.Context, name string, defaultValue int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}
