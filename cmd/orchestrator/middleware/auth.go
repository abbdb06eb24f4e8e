package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/weftlabs/weft/common/models"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// UserIDKey is the context key for the authenticated user id
	UserIDKey ContextKey = "user_id"
	// OrgIDKey is the context key for the caller's organization id
	OrgIDKey ContextKey = "org_id"
)

// ExtractIdentity reads the X-User-ID and X-Org-ID headers into the
// request context. Every resource a handler touches is scoped to this
// identity; a request without one only sees public endpoints.
//
// Usage:
//
//	e := echo.New()
//	e.Use(middleware.ExtractIdentity())
func ExtractIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if userID := c.Request().Header.Get("X-User-ID"); userID != "" {
				c.Set(string(UserIDKey), userID)
			}
			if orgID := c.Request().Header.Get("X-Org-ID"); orgID != "" {
				c.Set(string(OrgIDKey), orgID)
			}
			return next(c)
		}
	}
}

// RequireIdentity rejects requests without an X-User-ID header.
// Apply after ExtractIdentity on groups that must be authenticated.
func RequireIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if UserID(c) == "" {
				return c.JSON(http.StatusUnauthorized, map[string]interface{}{
					"error": "authentication required (X-User-ID header missing)",
				})
			}
			return next(c)
		}
	}
}

// UserID retrieves the authenticated user id from the request context.
// Returns empty string if not set.
func UserID(c echo.Context) string {
	if v, ok := c.Get(string(UserIDKey)).(string); ok {
		return v
	}
	return ""
}

// OrgID retrieves the organization id from the request context.
// Returns empty string if not set.
func OrgID(c echo.Context) string {
	if v, ok := c.Get(string(OrgIDKey)).(string); ok {
		return v
	}
	return ""
}

// Owner builds the resource scope for the current request
func Owner(c echo.Context) models.Owner {
	return models.Owner{
		UserID: UserID(c),
		OrgID:  OrgID(c),
	}
}
