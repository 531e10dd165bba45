// Package apierror translates upstream failures into the stable status and message the
// browser sees. Raw upstream bodies never leave this package.
package apierror

import (
	"fmt"
	"net/http"

	"github.com/jrsteele09/charger-dashboard/easee"
	"github.com/jrsteele09/charger-dashboard/internal/errors"
)

type Mapped struct {
	Status  int    `json:"status"`
	Message string `json:"error"`
}

func (m Mapped) Error() string {
	return m.Message
}

var (
	ErrAuthentication = Mapped{Status: http.StatusUnauthorized, Message: "Authentication failed. Please login again."}
	ErrAccessDenied   = Mapped{Status: http.StatusForbidden, Message: "Access denied for this account/charger."}
	ErrNotFound       = Mapped{Status: http.StatusNotFound, Message: "Resource not found on Easee."}
	ErrConflict       = Mapped{Status: http.StatusConflict, Message: "Operation conflicted with charger state. Try again."}
	ErrInvalidParams  = Mapped{Status: http.StatusUnprocessableEntity, Message: "Invalid parameters for Easee API."}
	ErrRateLimited    = Mapped{Status: http.StatusTooManyRequests, Message: "Rate limit reached. Please slow down."}
	ErrUnavailable    = Mapped{Status: http.StatusInternalServerError, Message: "Easee service temporarily unavailable."}
)

var byStatus = map[int]Mapped{
	http.StatusUnauthorized:        ErrAuthentication,
	http.StatusForbidden:           ErrAccessDenied,
	http.StatusNotFound:            ErrNotFound,
	http.StatusConflict:            ErrConflict,
	http.StatusUnprocessableEntity: ErrInvalidParams,
	http.StatusTooManyRequests:     ErrRateLimited,
}

// Map converts err into a status and user message. Errors without an upstream response
// map to 500.
func Map(err error) Mapped {
	if err == nil {
		return Mapped{Status: http.StatusOK}
	}

	var mapped Mapped
	if errors.As(err, &mapped) {
		return mapped
	}

	status := http.StatusInternalServerError
	code, message := "", err.Error()

	var ue *easee.Error
	if errors.As(err, &ue) {
		message = ue.Message
		code = ue.Code
		if ue.HasResponse() {
			status = ue.StatusCode
		}
	}

	if m, ok := byStatus[status]; ok {
		return m
	}
	if status >= http.StatusInternalServerError {
		return Mapped{Status: status, Message: ErrUnavailable.Message}
	}
	if code != "" {
		return Mapped{Status: status, Message: fmt.Sprintf("%s: %s", code, message)}
	}
	return Mapped{Status: status, Message: message}
}
