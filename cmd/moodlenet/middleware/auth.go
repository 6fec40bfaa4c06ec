package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// UserIDKey is the context key for storing the authenticated user id
	UserIDKey ContextKey = "userid"
)

// ExtractUserID extracts the X-User-ID header and stores the parsed id in the
// request context. Requests without a valid id pass through unauthenticated;
// handlers that need an identity call RequireUserID.
func ExtractUserID() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := c.Request().Header.Get("X-User-ID")
			if raw != "" {
				if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
					c.Set(string(UserIDKey), id)
				}
			}
			return next(c)
		}
	}
}

// RequireUserID returns the authenticated user id or a 401 error
func RequireUserID(c echo.Context) (int64, error) {
	v := c.Get(string(UserIDKey))
	id, ok := v.(int64)
	if !ok || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "X-User-ID header is required")
	}
	return id, nil
}
