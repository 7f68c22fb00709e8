package database

import (
	"testing"

	"github.com/fullpos/license-server/internal/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnsureJWTSecretGeneratesAndPersists(t *testing.T) {
	db := dbtest.Open(t)

	first, err := EnsureJWTSecret(db, "")
	require.NoError(t, err)
	assert.Len(t, first, 64)

	second, err := EnsureJWTSecret(db, "")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestEnsureJWTSecretPrefersConfigured(t *testing.T) {
	db := dbtest.Open(t)

	got, err := EnsureJWTSecret(db, "configured")
	require.NoError(t, err)
	assert.Equal(t, "configured", got)

	got, err = EnsureJWTSecret(db, "")
	require.NoError(t, err)
	assert.Equal(t, "configured", got)

	got, err = EnsureJWTSecret(db, "rotated")
	require.NoError(t, err)
	assert.Equal(t, "rotated", got)
}
