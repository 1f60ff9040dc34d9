package v1

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/callsight/internal/errors"
	"github.com/hrygo/callsight/server/internal/observability"
)

type errorResponse struct {
	Code    apperrors.ErrorCode `json:"code"`
	Message string              `json:"message"`
}

// statusOf maps an error code to its HTTP status. Every *_FAILED code is a
// remote failure.
func statusOf(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeInvalidArgument:
		return http.StatusBadRequest
	case apperrors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// HTTPErrorHandler renders *apperrors.AppError and *echo.HTTPError as
// {"code", "message"} JSON.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	var resp errorResponse
	var status int
	var httpErr *echo.HTTPError
	switch {
	case errors.As(err, &httpErr):
		status = httpErr.Code
		resp = errorResponse{Code: codeForStatus(status), Message: http.StatusText(status)}
		if msg, ok := httpErr.Message.(string); ok {
			resp.Message = msg
		}
	default:
		code := apperrors.CodeOf(err, apperrors.ErrCodeInternal)
		status = statusOf(code)
		resp = errorResponse{Code: code, Message: apperrors.MessageOf(err, "internal error")}
	}

	if status >= http.StatusInternalServerError {
		observability.LoggerFromContext(c.Request().Context()).Error("request failed",
			"code", resp.Code,
			"error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, resp)
	}
	if err != nil {
		observability.LoggerFromContext(c.Request().Context()).Warn("failed to write error response", "error", err)
	}
}

func codeForStatus(status int) apperrors.ErrorCode {
	switch status {
	case http.StatusUnauthorized:
		return apperrors.ErrCodeUnauthorized
	case http.StatusNotFound:
		return apperrors.ErrCodeNotFound
	case http.StatusTooManyRequests:
		return apperrors.ErrCodeRateLimitExceeded
	}
	if status >= http.StatusInternalServerError {
		return apperrors.ErrCodeInternal
	}
	return apperrors.ErrCodeInvalidArgument
}
