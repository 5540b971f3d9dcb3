package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wablast/internal/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("PORT", "")
	path := writeConfig(t, `
server:
  listen: ":8080"
paths:
  data_dir: "/var/lib/wablast"
channel:
  restart_cooldown: 10s
  default_country_code: "1"
campaign:
  batch_size: 5
  daily_limit: 50
  min_delay: 10s
  max_delay: 20s
  simulation_style: typing
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Listen)
	assert.Equal(t, "/var/lib/wablast/contacts", cfg.Paths.ContactsDir)
	assert.Equal(t, "/var/lib/wablast/reports", cfg.Paths.ReportsDir)
	assert.Equal(t, 10*time.Second, cfg.Channel.RestartCooldown)
	assert.Equal(t, "1", cfg.Channel.DefaultCountryCode)
	assert.Equal(t, "s.whatsapp.net", cfg.Channel.AddressServer)

	cc := cfg.CampaignDefaults()
	assert.Equal(t, 5, cc.BatchSize)
	assert.Equal(t, 50, cc.DailyLimit)
	assert.Equal(t, 10*time.Second, cc.MinDelay)
	assert.Equal(t, 20*time.Second, cc.MaxDelay)
	assert.Equal(t, 5*time.Second, cc.MinTypingDelay)
	assert.Equal(t, model.StyleTyping, cc.SimulationStyle)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("PORT", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, ":9724", cfg.Server.Listen)
	assert.Equal(t, "file:wablast.db?_foreign_keys=on", cfg.Storage.DSN)
	assert.Equal(t, 5*time.Second, cfg.Channel.RestartCooldown)
	assert.Equal(t, 20, cfg.Campaign.BatchSize)
	assert.Equal(t, 100, cfg.Campaign.DailyLimit)
	assert.Equal(t, 30*time.Second, cfg.Campaign.MinDelay)
	assert.Equal(t, 90*time.Second, cfg.Campaign.MaxDelay)
	assert.Equal(t, model.StyleRandom, cfg.Campaign.SimulationStyle)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("DB_DSN", "file:/tmp/other.db")
	t.Setenv("PORT", "8000")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "file:/tmp/other.db", cfg.Storage.DSN)
	assert.Equal(t, ":8000", cfg.Server.Listen)
}

func TestValidate(t *testing.T) {
	t.Setenv("DB_DSN", "")
	t.Setenv("PORT", "")
	path := writeConfig(t, `
campaign:
  batch_size: -1
  min_delay: 90s
  max_delay: 30s
  simulation_style: robot
logging:
  format: xml
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size")
	assert.Contains(t, err.Error(), "min 1m30s exceeds max 30s")
	assert.Contains(t, err.Error(), "robot")
	assert.Contains(t, err.Error(), "logging.format")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
