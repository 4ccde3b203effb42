package rest

import (
	"errors"
	"net/http"

	"github.com/KevinKickass/OpenFieldbusCore/internal/ecrt"
	"github.com/KevinKickass/OpenFieldbusCore/internal/fieldbus"
	"github.com/gin-gonic/gin"
)

// ErrorBody is the wire form of every gateway failure. Code is a short
// subsystem identifier; Fieldbus names the session error sentinel when the
// failure came out of the bus layer, so host applications can match on it
// instead of parsing the message.
type ErrorBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Fieldbus string `json:"fieldbus,omitempty"`
	Details  any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

func errorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// fieldbusCode names the sentinel behind err for API clients.
func fieldbusCode(err error) string {
	switch {
	case errors.Is(err, fieldbus.ErrMasterUnavailable):
		return "master_unavailable"
	case errors.Is(err, fieldbus.ErrNoMaster):
		return "no_master"
	case errors.Is(err, fieldbus.ErrAlreadyRequested):
		return "already_requested"
	case errors.Is(err, fieldbus.ErrInvalidHandle):
		return "invalid_handle"
	case errors.Is(err, fieldbus.ErrAlreadyActivated):
		return "already_activated"
	case errors.Is(err, fieldbus.ErrNotActivated):
		return "not_activated"
	case errors.Is(err, fieldbus.ErrReleased):
		return "released"
	case errors.Is(err, fieldbus.ErrConfigurationFailed):
		return "configuration_failed"
	case errors.Is(err, fieldbus.ErrPdoRegistrationFailed):
		return "pdo_registration_failed"
	case errors.Is(err, fieldbus.ErrActivationFailed):
		return "activation_failed"
	case errors.Is(err, fieldbus.ErrResetFailed):
		return "reset_failed"
	case errors.Is(err, fieldbus.ErrOffsetOutOfBounds):
		return "offset_out_of_bounds"
	case errors.Is(err, fieldbus.ErrEngineRunning):
		return "engine_running"
	case errors.Is(err, fieldbus.ErrEngineNotRunning):
		return "engine_not_running"
	case errors.Is(err, ecrt.ErrNotFound):
		return "slave_not_found"
	default:
		return ""
	}
}

// fieldbusError maps session errors to HTTP status codes and tags the
// envelope with the sentinel name.
func fieldbusError(c *gin.Context, code string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, fieldbus.ErrMasterUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, fieldbus.ErrInvalidHandle), errors.Is(err, ecrt.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, fieldbus.ErrOffsetOutOfBounds):
		status = http.StatusBadRequest
	case errors.Is(err, fieldbus.ErrNoMaster),
		errors.Is(err, fieldbus.ErrAlreadyRequested),
		errors.Is(err, fieldbus.ErrAlreadyActivated),
		errors.Is(err, fieldbus.ErrNotActivated),
		errors.Is(err, fieldbus.ErrReleased),
		errors.Is(err, fieldbus.ErrEngineRunning),
		errors.Is(err, fieldbus.ErrEngineNotRunning):
		status = http.StatusConflict
	}

	c.JSON(status, ErrorResponse{
		Error: ErrorBody{
			Code:     code,
			Message:  err.Error(),
			Fieldbus: fieldbusCode(err),
		},
	})
}
