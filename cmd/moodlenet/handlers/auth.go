package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/HuongNV13/moodle/cmd/moodlenet/container"
	"github.com/HuongNV13/moodle/cmd/moodlenet/middleware"
	"github.com/HuongNV13/moodle/cmd/moodlenet/repository"
	"github.com/HuongNV13/moodle/common/bootstrap"
	"github.com/HuongNV13/moodle/common/clients"
	"github.com/HuongNV13/moodle/common/models"
	"github.com/HuongNV13/moodle/common/oauth"
)

// AuthHandler drives the delegated-authorization flow against the configured
// MoodleNet issuer
type AuthHandler struct {
	components *bootstrap.Components
	issuers    *repository.IssuerRepository
	sessions   oauth.SessionStore
	http       *clients.HTTPClient
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(c *container.Container) *AuthHandler {
	return &AuthHandler{
		components: c.Components,
		issuers:    c.IssuerRepo,
		sessions:   c.Sessions,
		http:       c.HTTPClient,
	}
}

type authorizeRequest struct {
	IssuerID  int64  `json:"issuerid"`
	ReturnURL string `json:"returnurl"`
}

// Authorize starts (or short-circuits) the authorization flow
// POST /api/v1/moodlenet/authorize
func (h *AuthHandler) Authorize(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := middleware.RequireUserID(c)
	if err != nil {
		return err
	}

	var req authorizeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
		})
	}
	if req.IssuerID <= 0 || req.ReturnURL == "" {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "issuerid and returnurl are required",
		})
	}

	client, err := h.client(ctx, req.IssuerID, userID)
	if err != nil {
		return h.issuerError(c, err)
	}

	loginURL, err := client.LoginURL(ctx, req.ReturnURL, clients.APIScopeCreateResource)
	if errors.Is(err, oauth.ErrAlreadyAuthenticated) {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "authenticated",
		})
	}
	if errors.Is(err, oauth.ErrIssuerDisabled) {
		return c.JSON(http.StatusForbidden, map[string]interface{}{
			"error": "issuer is not enabled",
		})
	}
	if err != nil {
		h.components.Logger.Error("failed to build login url", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to start authorization",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":   "redirect",
		"loginurl": loginURL,
	})
}

// Callback receives the external service's redirect and completes the flow
// GET /api/v1/moodlenet/callback?issuerid=&state=&code=|error=
func (h *AuthHandler) Callback(c echo.Context) error {
	ctx := c.Request().Context()

	userID, err := middleware.RequireUserID(c)
	if err != nil {
		return err
	}

	issuerID, err := strconv.ParseInt(c.QueryParam("issuerid"), 10, 64)
	if err != nil || issuerID <= 0 {
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": "issuerid is required",
		})
	}

	client, err := h.client(ctx, issuerID, userID)
	if err != nil {
		return h.issuerError(c, err)
	}

	err = client.HandleCallback(ctx, c.QueryParam("state"), c.QueryParam("code"), c.QueryParam("error"))
	switch {
	case errors.Is(err, oauth.ErrAccessDenied):
		return c.JSON(http.StatusOK, map[string]interface{}{
			"status": "denied",
		})
	case errors.Is(err, oauth.ErrStateMismatch), errors.Is(err, oauth.ErrNoPendingFlow):
		return c.JSON(http.StatusBadRequest, map[string]interface{}{
			"error": err.Error(),
		})
	case errors.Is(err, oauth.ErrIssuerDisabled):
		return c.JSON(http.StatusForbidden, map[string]interface{}{
			"error": "issuer is not enabled",
		})
	case err != nil:
		h.components.Logger.Error("callback handling failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "failed to handle callback",
		})
	}

	// Exchange the code right away so the next share attempt finds a token
	if err := client.CompleteFlowIfPending(ctx); err != nil {
		h.components.Logger.Warn("code exchange failed", "issuer_id", issuerID, "user_id", userID, "error", err)
		return c.JSON(http.StatusBadGateway, map[string]interface{}{
			"error": "code exchange failed",
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "authenticated",
	})
}

// client loads the issuer and binds an oauth client to it
func (h *AuthHandler) client(ctx context.Context, issuerID, userID int64) (*oauth.Client, error) {
	issuer, err := h.issuers.GetByID(ctx, issuerID)
	if err != nil {
		return nil, err
	}
	if issuer.ServiceType != models.ServiceTypeMoodleNet {
		return nil, repository.ErrNotFound
	}
	return oauth.NewClient(issuer, userID, h.sessions, h.http, h.components.Logger), nil
}

func (h *AuthHandler) issuerError(c echo.Context, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"error": "issuer not found",
		})
	}
	h.components.Logger.Error("failed to load issuer", "error", err)
	return c.JSON(http.StatusInternalServerError, map[string]interface{}{
		"error": "failed to load issuer",
	})
}
