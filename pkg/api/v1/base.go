package apiv1

import (
	"errors"
	"net/http"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/labstack/echo/v4"
)

const (
	HttpServerBaseRoute string = "/api/v1"
	HttpServerRootRoute string = ""
)

// Response is the envelope of every API reply
type Response struct {
	Success bool     `json:"success"`
	Data    any      `json:"data,omitempty"`
	Error   string   `json:"error,omitempty"`
	Details []string `json:"details,omitempty"`
}

func SuccessResponse(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func ErrorResponse(c echo.Context, code int, message string) error {
	return c.JSON(code, Response{Success: false, Error: message})
}

// ErrorFromErr maps typed errors onto status codes
func ErrorFromErr(c echo.Context, err error) error {
	var validation *types.ValidationError
	var notFound *types.ErrAgentNotFound
	var authErr *types.AuthError
	var logNotFound *types.ErrExecutionLogNotFound

	switch {
	case errors.As(err, &validation):
		return c.JSON(http.StatusBadRequest, Response{Error: "invalid flow", Details: validation.Violations})
	case errors.As(err, &notFound), errors.As(err, &logNotFound):
		return ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.As(err, &authErr):
		return ErrorResponse(c, http.StatusUnauthorized, err.Error())
	}
	return ErrorResponse(c, http.StatusInternalServerError, err.Error())
}
