package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	for _, key := range []string{
		"RISK_ENGINE_SERVER_PORT", "RISK_ENGINE_DATABASE_HOST", "RISK_ENGINE_LOGGING_LEVEL",
	} {
		os.Unsetenv(key)
	}
}

func TestNewManager_Defaults(t *testing.T) {
	resetViper(t)
	m, err := NewManager()
	require.NoError(t, err)

	cfg := m.GetConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "risk_engine", cfg.Database.Database)
	assert.False(t, cfg.Literature.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestManager_Validate_RejectsBadPort(t *testing.T) {
	resetViper(t)
	m, err := NewManager()
	require.NoError(t, err)

	m.config.Server.Port = 0
	assert.Error(t, m.Validate())
}

func TestManager_Validate_RejectsLiteratureEnabledWithoutBaseURL(t *testing.T) {
	resetViper(t)
	m, err := NewManager()
	require.NoError(t, err)

	m.config.Literature.Enabled = true
	m.config.Literature.BaseURL = ""
	assert.Error(t, m.Validate())
}

func TestManager_Validate_AcceptsDefaults(t *testing.T) {
	resetViper(t)
	m, err := NewManager()
	require.NoError(t, err)
	assert.NoError(t, m.Validate())
}

func TestManager_EnvironmentOverride(t *testing.T) {
	resetViper(t)
	os.Setenv("RISK_ENGINE_SERVER_PORT", "9090")
	defer os.Unsetenv("RISK_ENGINE_SERVER_PORT")

	m, err := NewManager()
	require.NoError(t, err)
	assert.Equal(t, 9090, m.GetServerConfig().Port)
}

func TestManager_GetDatabaseConnectionString(t *testing.T) {
	resetViper(t)
	m, err := NewManager()
	require.NoError(t, err)

	dsn := m.GetDatabaseConnectionString()
	assert.Contains(t, dsn, "host=localhost")
	assert.Contains(t, dsn, "dbname=risk_engine")
}
