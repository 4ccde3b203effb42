package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/KevinKickass/OpenFieldbusCore/internal/ecrt"
	"github.com/KevinKickass/OpenFieldbusCore/internal/fieldbus"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFieldbusErrorEnvelope(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name         string
		err          error
		wantStatus   int
		wantFieldbus string
	}{
		{"master unavailable", fieldbus.ErrMasterUnavailable, http.StatusServiceUnavailable, "master_unavailable"},
		{"invalid handle", fieldbus.ErrInvalidHandle, http.StatusNotFound, "invalid_handle"},
		{"unknown slave position", ecrt.ErrNotFound, http.StatusNotFound, "slave_not_found"},
		{"offset out of bounds", fieldbus.ErrOffsetOutOfBounds, http.StatusBadRequest, "offset_out_of_bounds"},
		{"already activated", fieldbus.ErrAlreadyActivated, http.StatusConflict, "already_activated"},
		{"not activated", fieldbus.ErrNotActivated, http.StatusConflict, "not_activated"},
		{"engine running", fieldbus.ErrEngineRunning, http.StatusConflict, "engine_running"},
		{"released", fieldbus.ErrReleased, http.StatusConflict, "released"},
		{"unclassified", assert.AnError, http.StatusInternalServerError, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			fieldbusError(c, "MASTER_OP", tt.err)
			assert.Equal(t, tt.wantStatus, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "MASTER_OP", resp.Error.Code)
			assert.Equal(t, tt.wantFieldbus, resp.Error.Fieldbus)
			assert.Equal(t, tt.err.Error(), resp.Error.Message)
		})
	}
}

func TestErrorResponseOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(errorResponse("AUTH_401", "Invalid credentials", nil))
	require.NoError(t, err)

	assert.JSONEq(t, `{"error":{"code":"AUTH_401","message":"Invalid credentials"}}`, string(data))
}
