package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"
)

func writeBadRequest(c *echo.Context, msg, param string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg, param, "")
}

func writeNotFound(c *echo.Context, msg string) error {
	return writeError(c, http.StatusNotFound, "not_found_error", msg, "", "")
}

func writeUnavailable(c *echo.Context, msg string) error {
	return writeError(c, http.StatusServiceUnavailable, "report_unavailable", msg, "", "report_unavailable")
}

func writeError(c *echo.Context, status int, errType, msg, param, code string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
			Code:    code,
			Param:   param,
		},
	})
}

// writeRequestError maps an invalid request to 400 and anything else to 503,
// since every other failure comes from reading the report.
func writeRequestError(c *echo.Context, err error) error {
	var ire invalidRequestError
	if errors.As(err, &ire) {
		return writeBadRequest(c, ire.msg, ire.param)
	}
	return writeUnavailable(c, err.Error())
}
