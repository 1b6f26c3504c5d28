package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token-123")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "token-123", cfg.DiscordToken)
	assert.Equal(t, "savedata.db", cfg.DBPath)
	assert.Equal(t, "settings.json", cfg.SettingsPath)
	assert.Equal(t, "+", cfg.CommandPrefix)
	assert.Equal(t, "http://localhost", cfg.WebDomain)
	assert.Equal(t, 5000, cfg.WebPort)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 120*time.Second, cfg.EvictionInterval)
}

func TestLoad_RequiresToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token-123")
	t.Setenv("WEB_DOMAIN", "https://jukebox.example.com")
	t.Setenv("WEB_PORT", "8080")
	t.Setenv("EVICTION_INTERVAL", "90s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.EvictionInterval)
	assert.Equal(t, "https://jukebox.example.com:8080", cfg.WebBaseURL())
}
