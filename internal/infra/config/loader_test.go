package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"toolgate/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "toolgate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "stdio", cfg.Transport)
	assert.Equal(t, domain.DefaultPlatformBaseURL, cfg.PlatformBaseURL)
	assert.Equal(t, domain.DefaultRemoteCallTimeout, cfg.RemoteCallTimeout)
	assert.Equal(t, domain.DefaultProxyCallTimeout, cfg.ProxyCallTimeout)
	assert.Equal(t, domain.DefaultMaxCharsPerItem, cfg.MaxCharsPerItem)
	assert.Equal(t, domain.DefaultMaxMemoryMbytes, cfg.MaxMemoryMbytes)
	assert.Empty(t, cfg.Actors)
	assert.False(t, cfg.AllowUnauthenticated)
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
token: apify_api_secret
transport: http
httpListenAddress: "0.0.0.0:9090"
platformBaseUrl: "https://api.example.com/"
actors:
  - " apify/rag-web-browser "
  - ""
  - apify/instagram-scraper
proxyServers:
  - "http://localhost:9000/mcp"
enableRentedActors: true
remoteCallTimeoutSeconds: 60
maxCharsPerItem: 1000
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "apify_api_secret", cfg.Token)
	assert.Equal(t, "http", cfg.Transport)
	assert.Equal(t, "0.0.0.0:9090", cfg.HTTPListenAddress)
	assert.Equal(t, "https://api.example.com", cfg.PlatformBaseURL, "trailing slash trimmed")
	assert.Equal(t, []string{"apify/rag-web-browser", "apify/instagram-scraper"}, cfg.Actors)
	assert.Equal(t, []string{"http://localhost:9000/mcp"}, cfg.ProxyServers)
	assert.True(t, cfg.EnableRentedActors)
	assert.Equal(t, 60*time.Second, cfg.RemoteCallTimeout)
	assert.Equal(t, 1000, cfg.MaxCharsPerItem)
	// Unset fields keep their defaults.
	assert.Equal(t, domain.DefaultProxyCallTimeout, cfg.ProxyCallTimeout)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("TOOLGATE_TOKEN", "env_token")
	t.Setenv("TOOLGATE_MAXCHARSPERITEM", "250")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "env_token", cfg.Token)
	assert.Equal(t, 250, cfg.MaxCharsPerItem)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown transport", "transport: grpc\n"},
		{"zero item budget", "maxCharsPerItem: 0\n"},
		{"negative memory", "maxMemoryMbytes: -1\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
