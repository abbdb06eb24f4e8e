package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/weftlabs/weft/cmd/orchestrator/service"
	"github.com/weftlabs/weft/common/apperr"
	"github.com/weftlabs/weft/common/logger"
)

// statusClientClosedRequest is nginx's convention for a cancelled call;
// there is no stdlib constant for it.
const statusClientClosedRequest = 499

// respondError translates service errors into HTTP responses. Typed
// errors keep their kind in the body so clients can branch without
// parsing messages; anything untyped is a 500 with a generic body.
func respondError(c echo.Context, log *logger.Logger, err error) error {
	var rle *service.RateLimitError
	if errors.As(err, &rle) {
		c.Response().Header().Set("Retry-After", strconv.FormatInt(rle.RetryAfterSeconds, 10))
		return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
			"error": rle.Error(),
			"code":  "rate-limited",
			"details": map[string]interface{}{
				"tier":                rle.Tier,
				"limit":               rle.Limit,
				"current_count":       rle.CurrentCount,
				"retry_after_seconds": rle.RetryAfterSeconds,
			},
		})
	}

	var appErr *apperr.Error
	if !errors.As(err, &appErr) {
		log.Error("request failed", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]interface{}{
			"error": "internal server error",
			"code":  string(apperr.KindInternal),
		})
	}

	status := statusForKind(appErr.Kind)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "kind", appErr.Kind, "error", err)
	}

	return c.JSON(status, map[string]interface{}{
		"error": appErr.Message,
		"code":  string(appErr.Kind),
	})
}

func statusForKind(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthorized:
		return http.StatusForbidden
	case apperr.KindConflict, apperr.KindApprovalRejected:
		return http.StatusConflict
	case apperr.KindApprovalTimeout:
		return http.StatusRequestTimeout
	case apperr.KindToolFailure, apperr.KindModelFailure:
		return http.StatusBadGateway
	case apperr.KindCancelled:
		return statusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}
