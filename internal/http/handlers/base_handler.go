// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"campusride/internal/apperr"
	"campusride/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// isValidID accepts generated UUIDs and short caller-chosen IDs such as "d1".
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

// pathID reads an ID path parameter and writes a 400 when it is malformed.
func pathID(c *gin.Context, name string) (types.ID, bool) {
	v := c.Param(name)
	if !isValidID(v) {
		writeMessage(c, http.StatusBadRequest, "invalid "+name)
		return "", false
	}
	return types.ID(v), true
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeMessage(c, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeMessage(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

var statusByError = []struct {
	err    error
	status int
}{
	{apperr.ErrInvalidInput, http.StatusBadRequest},
	{apperr.ErrNotFound, http.StatusNotFound},
	{apperr.ErrInvalidTransition, http.StatusConflict},
	{apperr.ErrConflict, http.StatusConflict},
	{apperr.ErrUnavailable, http.StatusServiceUnavailable},
	{apperr.ErrOracleTimeout, http.StatusGatewayTimeout},
	{apperr.ErrForbidden, http.StatusForbidden},
	{apperr.ErrPaymentFailed, http.StatusPaymentRequired},
}

func statusFor(err error) int {
	for _, m := range statusByError {
		if errors.Is(err, m.err) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		writeMessage(c, status, "internal error")
		return
	}
	writeMessage(c, status, err.Error())
}
