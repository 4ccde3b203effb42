package auth

import (
	"runtime"
	"strings"
	"testing"

	"github.com/KevinKickass/OpenFieldbusCore/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fastHashParams keeps the key derivation cheap in tests.
var fastHashParams = config.AuthConfig{
	Argon2MemoryKiB:   8 * 1024,
	Argon2Iterations:  1,
	Argon2Parallelism: 1,
}

func TestHashAndVerifyPassword(t *testing.T) {
	ph := NewPasswordHasher(fastHashParams)

	hash, err := ph.HashPassword("correct-horse-battery-staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"))

	ok, err := ph.VerifyPassword("correct-horse-battery-staple", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = ph.VerifyPassword("wrong-password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHashPasswordUsesRandomSalt(t *testing.T) {
	ph := NewPasswordHasher(fastHashParams)

	h1, err := ph.HashPassword("same-password")
	require.NoError(t, err)
	h2, err := ph.HashPassword("same-password")
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)
}

func TestPasswordHasherParametersFromConfig(t *testing.T) {
	ph := NewPasswordHasher(config.AuthConfig{
		Argon2MemoryKiB:   32 * 1024,
		Argon2Iterations:  2,
		Argon2Parallelism: 4,
	})

	hash, err := ph.HashPassword("pw")
	require.NoError(t, err)
	assert.Contains(t, hash, "$m=32768,t=2,p=4$")
}

func TestPasswordHasherZeroConfigDefaults(t *testing.T) {
	ph := NewPasswordHasher(config.AuthConfig{})

	assert.Equal(t, uint32(64*1024), ph.memory)
	assert.Equal(t, uint32(3), ph.iterations)
	assert.Equal(t, uint8(runtime.NumCPU()), ph.parallelism)
}

func TestVerifyPasswordMalformedHash(t *testing.T) {
	ph := NewPasswordHasher(fastHashParams)

	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"wrong part count", "$argon2id$v=19$m=65536"},
		{"wrong algorithm", "$argon2i$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA"},
		{"bad parameters", "$argon2id$v=19$nonsense$c2FsdA$aGFzaA"},
		{"bad salt encoding", "$argon2id$v=19$m=65536,t=3,p=4$!!!$aGFzaA"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ph.VerifyPassword("pw", tt.hash)
			assert.Error(t, err)
		})
	}
}
