package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const validConfig = `
telegram:
  token: "123:abc"
  run_mode: longpoll
promo:
  base_url: "https://promo.example.com/"
  settle_delay_ms: 200
`

func TestLoadConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, "longpoll", cfg.Telegram.RunMode)

	// Normalization strips the trailing slash and fills endpoint defaults.
	assert.Equal(t, "https://promo.example.com", cfg.Promo.BaseURL)
	assert.Equal(t, "/getgift", cfg.Promo.ClaimPath)
	assert.Equal(t, "/sendgift", cfg.Promo.RedeemPath)

	assert.Equal(t, 30*time.Second, cfg.Promo.SessionTTL())
	assert.Equal(t, 200*time.Millisecond, cfg.Promo.SettleDelay())
	assert.Equal(t, time.Minute, cfg.Promo.SweepInterval())

	require.NotNil(t, cfg.CoreConfig())
	assert.Equal(t, cfg.Telegram.Token, cfg.CoreConfig().Telegram.Token)
}

func TestLoadConfigSettleDelayDefault(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
telegram:
  token: "123:abc"
promo:
  base_url: "https://promo.example.com"
`))
	require.NoError(t, err)
	assert.Equal(t, 200*time.Millisecond, cfg.Promo.SettleDelay())
}

func TestLoadConfigSettleDelayDisabled(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
telegram:
  token: "123:abc"
promo:
  base_url: "https://promo.example.com"
  settle_delay_ms: -1
`))
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), cfg.Promo.SettleDelay())
}

func TestLoadConfigMissingToken(t *testing.T) {
	_, err := Load(writeConfig(t, `
telegram:
  run_mode: longpoll
promo:
  base_url: "https://promo.example.com"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token")
}

func TestLoadConfigMissingPromoBaseURL(t *testing.T) {
	_, err := Load(writeConfig(t, `
telegram:
  token: "123:abc"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "promo.base_url")
}

func TestLoadConfigStorageNeedsDatabase(t *testing.T) {
	_, err := Load(writeConfig(t, validConfig+`
storage:
  enabled: true
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database")
}
