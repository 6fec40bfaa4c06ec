package middleware

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/HuongNV13/moodle/common/ratelimit"
)

// ShareRateLimitMiddleware bounds share attempts per user. Rate limit errors
// fail open so an unavailable Redis never blocks sharing.
func ShareRateLimitMiddleware(limiter *ratelimit.RateLimiter, limit int64, windowSec int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := strconv.ParseInt(c.Request().Header.Get("X-User-ID"), 10, 64)
			if err != nil || userID <= 0 {
				// Unauthenticated requests are rejected downstream
				return next(c)
			}

			result, err := limiter.CheckUserShareLimit(c.Request().Context(), userID, limit, windowSec)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				c.Response().Header().Set("Retry-After", strconv.FormatInt(result.RetryAfterSeconds, 10))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "share_rate_limit_exceeded",
					"message": "Too many share attempts. Please try again later.",
					"details": map[string]interface{}{
						"limit":       result.Limit,
						"retry_after": result.RetryAfterSeconds,
					},
				})
			}

			return next(c)
		}
	}
}

// GlobalShareRateLimitMiddleware protects the whole service from being
// saturated by packaging and upload work
func GlobalShareRateLimitMiddleware(limiter *ratelimit.RateLimiter, limit int64, windowSec int) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			result, err := limiter.CheckGlobalShareLimit(c.Request().Context(), limit, windowSec)
			if err != nil {
				return next(c)
			}

			if !result.Allowed {
				c.Response().Header().Set("Retry-After", strconv.FormatInt(result.RetryAfterSeconds, 10))
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":   "service_rate_limit_exceeded",
					"message": "The service is experiencing high load. Please try again later.",
				})
			}

			return next(c)
		}
	}
}
