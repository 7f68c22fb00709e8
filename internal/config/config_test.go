package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DEFAULT_PROJECT_CODE", " default ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, "DEFAULT", cfg.DefaultProjectCode)
	assert.Equal(t, "FULLPOS", cfg.BusinessProjectCode)
	assert.Equal(t, 10, cfg.BackupRetention)
	assert.Equal(t, 2*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 5, cfg.TrialDays)
}

func TestLoadFileSecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jwt")
	require.NoError(t, os.WriteFile(path, []byte("from-file\n"), 0o600))

	t.Setenv("JWT_SECRET", "")
	t.Setenv("JWT_SECRET_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.JWTSecret)
}

func TestLoadFileSecretDoesNotOverrideValue(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "jwt")
	require.NoError(t, os.WriteFile(path, []byte("from-file"), 0o600))

	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("JWT_SECRET_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWTSecret)
}

func TestLoadMissingSecretFile(t *testing.T) {
	t.Setenv("LICENSE_SIGN_PRIVATE_KEY", "")
	t.Setenv("LICENSE_SIGN_PRIVATE_KEY_FILE", filepath.Join(t.TempDir(), "missing.pem"))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LICENSE_SIGN_PRIVATE_KEY_FILE")
}

func TestDSN(t *testing.T) {
	cfg := &Config{DBHost: "db", DBPort: 5433, DBUser: "u", DBPassword: "p", DBName: "n", DBSSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=n sslmode=disable TimeZone=UTC", cfg.DSN())
}
