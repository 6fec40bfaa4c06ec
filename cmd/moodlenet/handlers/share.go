package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/HuongNV13/moodle/cmd/moodlenet/container"
	"github.com/HuongNV13/moodle/cmd/moodlenet/middleware"
	"github.com/HuongNV13/moodle/cmd/moodlenet/service"
	"github.com/HuongNV13/moodle/common/bootstrap"
	"github.com/HuongNV13/moodle/common/models"
)

// ShareHandler handles outbound share requests
type ShareHandler struct {
	components *bootstrap.Components
	sender     *service.Sender
}

// NewShareHandler creates a new share handler
func NewShareHandler(c *container.Container) *ShareHandler {
	return &ShareHandler{
		components: c.Components,
		sender:     c.Sender,
	}
}

type shareRequest struct {
	IssuerID    int64   `json:"issuerid"`
	CourseID    int64   `json:"courseid"`
	CMID        int64   `json:"cmid,omitempty"`
	CMIDs       []int64 `json:"cmids,omitempty"`
	ShareFormat int     `json:"shareformat"`
}

// ShareActivity shares one activity to MoodleNet
// POST /api/v1/moodlenet/shares/activity
func (h *ShareHandler) ShareActivity(c echo.Context) error {
	userID, err := middleware.RequireUserID(c)
	if err != nil {
		return err
	}

	req, err := h.bindShareRequest(c)
	if req == nil {
		return err
	}
	if req.CMID <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "cmid is required",
		})
	}

	return h.share(c, userID, req, models.SingleActivity(req.CourseID, req.CMID))
}

// ShareCourse shares a whole course to MoodleNet
// POST /api/v1/moodlenet/shares/course
func (h *ShareHandler) ShareCourse(c echo.Context) error {
	userID, err := middleware.RequireUserID(c)
	if err != nil {
		return err
	}

	req, err := h.bindShareRequest(c)
	if req == nil {
		return err
	}

	return h.share(c, userID, req, models.WholeCourse(req.CourseID))
}

// ShareCoursePartial shares a subset of a course's activities to MoodleNet
// POST /api/v1/moodlenet/shares/course/partial
func (h *ShareHandler) ShareCoursePartial(c echo.Context) error {
	userID, err := middleware.RequireUserID(c)
	if err != nil {
		return err
	}

	req, err := h.bindShareRequest(c)
	if req == nil {
		return err
	}
	if len(req.CMIDs) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "cmids array is required and cannot be empty",
		})
	}

	return h.share(c, userID, req, models.PartialCourse(req.CourseID, req.CMIDs))
}

// bindShareRequest parses and validates the fields shared by all three share
// endpoints
func (h *ShareHandler) bindShareRequest(c echo.Context) (*shareRequest, error) {
	var req shareRequest
	if err := c.Bind(&req); err != nil {
		return nil, c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}
	if req.CourseID <= 0 {
		return nil, c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "courseid is required",
		})
	}
	if req.IssuerID <= 0 {
		return nil, c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "issuerid is required",
		})
	}
	return &req, nil
}

// share runs the pipeline, asynchronously by default or inline with ?wait=1
func (h *ShareHandler) share(c echo.Context, userID int64, req *shareRequest, selector models.ResourceSelector) error {
	ctx := c.Request().Context()
	format := models.ShareFormat(req.ShareFormat)

	h.components.Logger.Info("share requested",
		"user_id", userID,
		"issuer_id", req.IssuerID,
		"course_id", req.CourseID,
		"kind", string(selector.Kind),
	)

	var outcome *service.ShareOutcome
	var err error
	if c.QueryParam("wait") == "1" {
		outcome, err = h.sender.Share(ctx, userID, req.IssuerID, selector, format)
	} else {
		outcome, err = h.sender.ShareAsync(ctx, userID, req.IssuerID, selector, format)
	}
	if err != nil {
		h.components.Logger.Error("failed to start share", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to start share",
		})
	}

	return c.JSON(http.StatusOK, outcome)
}
