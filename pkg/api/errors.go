package api

import (
	"log/slog"

	echo "github.com/labstack/echo/v5"

	"github.com/codeready-toolchain/agentcore/pkg/apperr"
)

// errorBody is the {error: {kind, message, details?}} shape every non-2xx
// response carries (spec §7 "User-visible").
type errorBody struct {
	Error struct {
		Kind    apperr.Kind    `json:"kind"`
		Message string         `json:"message"`
		Details map[string]any `json:"details,omitempty"`
	} `json:"error"`
}

// writeError maps an error to its HTTP status and {error:{...}} body.
func writeError(c *echo.Context, err error) error {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	if kind == apperr.Internal {
		slog.Error("unexpected error", "error", err, "path", c.Request().URL.Path)
	}

	body := errorBody{}
	body.Error.Kind = kind
	body.Error.Message = err.Error()

	var appErr *apperr.Error
	if e, ok := err.(*apperr.Error); ok {
		appErr = e
	}
	if appErr != nil {
		body.Error.Message = appErr.Message
		body.Error.Details = appErr.Details
	}

	return c.JSON(status, body)
}
