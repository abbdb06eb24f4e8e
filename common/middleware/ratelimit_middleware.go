package middleware

import (
	"net/http"
	"os"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/weftlabs/weft/common/ratelimit"
)

// isInternalRequest checks if the request is from an internal service.
// Internal services set X-Internal-Service to the shared secret to
// bypass rate limits; an unset secret disables the bypass entirely.
func isInternalRequest(c echo.Context) bool {
	internalHeader := c.Request().Header.Get("X-Internal-Service")
	if internalHeader == "" {
		return false
	}

	expectedSecret := os.Getenv("INTERNAL_SERVICE_SECRET")
	if expectedSecret == "" {
		return false
	}

	return internalHeader == expectedSecret
}

// GlobalRateLimit caps total requests across all callers. It protects
// the service itself; per-owner fairness is enforced deeper in the
// stack when runs are created. Limiter errors fail open.
func GlobalRateLimit(limiter *ratelimit.RateLimiter, limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isInternalRequest(c) {
				return next(c)
			}

			result, err := limiter.CheckGlobalLimit(c.Request().Context(), limit)
			if err != nil {
				return next(c)
			}
			if !result.Allowed {
				return reject(c, "global_rate_limit_exceeded",
					"Service is experiencing high load. Please try again later.", result)
			}

			return next(c)
		}
	}
}

// UserRateLimit caps requests per authenticated user. Requests without
// an identity pass through; the identity middleware decides whether
// those are allowed at all. Limiter errors fail open.
func UserRateLimit(limiter *ratelimit.RateLimiter, limit int64, userIDFrom func(echo.Context) string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if isInternalRequest(c) {
				return next(c)
			}

			userID := userIDFrom(c)
			if userID == "" {
				return next(c)
			}

			result, err := limiter.CheckUserLimit(c.Request().Context(), userID, limit, ratelimit.DefaultUserConfig.WindowSeconds)
			if err != nil {
				return next(c)
			}
			if !result.Allowed {
				return reject(c, "user_rate_limit_exceeded",
					"You have exceeded your request quota. Please wait before trying again.", result)
			}

			return next(c)
		}
	}
}

// reject writes the 429 with enough detail for a client to back off
// sensibly rather than hammering the window shut.
func reject(c echo.Context, code, message string, result *ratelimit.RateLimitResult) error {
	c.Response().Header().Set("Retry-After", strconv.FormatInt(result.RetryAfterSeconds, 10))
	return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
		"error":   code,
		"message": message,
		"details": map[string]interface{}{
			"limit":               result.Limit,
			"current_count":       result.CurrentCount,
			"retry_after_seconds": result.RetryAfterSeconds,
		},
	})
}
