package common

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validTestConfig() *Config {
	config := NewDefaultConfig()
	config.Portal.Username = "user@example.com"
	config.Portal.Password = "secret"
	return config
}

func TestNewDefaultConfig(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, 8086, config.Server.Port)
	assert.Equal(t, "https://portal.libreo.cloud", config.Portal.PortalURL)
	assert.Equal(t, "1m", config.Polling.UserInfoInterval)
	assert.Equal(t, "5m", config.Polling.SessionsInterval)
	assert.Equal(t, "20m", config.Polling.OrgsInterval)
}

func TestValidate_RequiresCredentials(t *testing.T) {
	config := NewDefaultConfig()
	assert.Error(t, config.Validate(), "missing credentials must be fatal")

	config = validTestConfig()
	assert.NoError(t, config.Validate())
}

func TestValidate_MinimumCredentialLengths(t *testing.T) {
	config := validTestConfig()
	config.Portal.Username = "abc"
	assert.Error(t, config.Validate())

	config = validTestConfig()
	config.Portal.Password = "abcd"
	assert.Error(t, config.Validate())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "libreo-bridge.toml")
	content := `
environment = "production"

[server]
port = 9090

[portal]
username = "user@example.com"
password = "secret"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	config, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "production", config.Environment)
	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "user@example.com", config.Portal.Username)
	// Untouched sections keep their defaults.
	assert.Equal(t, "https://id.libreo.cloud/api/login", config.Portal.LoginAPIURL)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LIBREO_USERNAME", "env-user@example.com")
	t.Setenv("LIBREO_SERVER_PORT", "7070")

	config, err := LoadFromFile("")
	require.NoError(t, err)

	assert.Equal(t, "env-user@example.com", config.Portal.Username)
	assert.Equal(t, 7070, config.Server.Port)
}

func TestHostHelpers(t *testing.T) {
	config := NewDefaultConfig()

	assert.Equal(t, "portal.libreo.cloud", config.PortalHost())
	assert.Equal(t, "id.libreo.cloud", config.IssuerHost())
}
