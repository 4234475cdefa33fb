package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashPassword_IsDeterministicUnsaltedSHA256(t *testing.T) {
	h1 := HashPassword("admin")
	h2 := HashPassword("admin")
	require.Equal(t, h1, h2)
	require.Len(t, h1, 64) // hex-encoded sha256 digest
}

func TestHashPassword_DifferentInputsDifferentHashes(t *testing.T) {
	require.NotEqual(t, HashPassword("admin"), HashPassword("not-admin"))
}
