package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "unit-test-secret-key-with-enough-length"

func TestGenerateAndValidateAccessToken(t *testing.T) {
	h := NewJWTHandler(testSecret, 15*time.Minute, 24*time.Hour)
	userID := uuid.New()

	token, err := h.GenerateAccessToken(userID, "alice", "technician")
	require.NoError(t, err)

	claims, err := h.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "technician", claims.Role)
	assert.Equal(t, "openfieldbuscore", claims.Issuer)
}

func TestValidateAccessTokenWrongSecret(t *testing.T) {
	h := NewJWTHandler(testSecret, 15*time.Minute, 24*time.Hour)
	other := NewJWTHandler("a-completely-different-secret-key-here", 15*time.Minute, 24*time.Hour)

	token, err := h.GenerateAccessToken(uuid.New(), "alice", "operator")
	require.NoError(t, err)

	_, err = other.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestValidateAccessTokenExpired(t *testing.T) {
	h := NewJWTHandler(testSecret, -time.Minute, 24*time.Hour)

	token, err := h.GenerateAccessToken(uuid.New(), "alice", "operator")
	require.NoError(t, err)

	_, err = h.ValidateAccessToken(token)
	assert.Error(t, err)
}

func TestValidateAccessTokenGarbage(t *testing.T) {
	h := NewJWTHandler(testSecret, 15*time.Minute, 24*time.Hour)

	_, err := h.ValidateAccessToken("not.a.jwt")
	assert.Error(t, err)
}

func TestGenerateRefreshToken(t *testing.T) {
	h := NewJWTHandler(testSecret, 15*time.Minute, 24*time.Hour)

	t1, err := h.GenerateRefreshToken()
	require.NoError(t, err)
	t2, err := h.GenerateRefreshToken()
	require.NoError(t, err)

	assert.Len(t, t1, 64) // hex encoded 32 bytes
	assert.NotEqual(t, t1, t2)
}

func TestRoleToPermissions(t *testing.T) {
	svc := &AuthService{}

	tests := []struct {
		role string
		want []Permission
	}{
		{"admin", []Permission{PermOperator, PermTechnician, PermAdmin}},
		{"technician", []Permission{PermOperator, PermTechnician}},
		{"operator", []Permission{PermOperator}},
		{"unknown", []Permission{PermOperator}},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.roleToPermissions(tt.role))
		})
	}
}
