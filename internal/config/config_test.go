package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scip/internal/risk"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_DefaultsAndEnv(t *testing.T) {
	t.Setenv("SCIP_TEST_SECRET", "0123456789abcdef0123")
	path := writeConfig(t, `
server:
  port: "9090"
auth:
  jwt_secret: ${SCIP_TEST_SECRET}
anchor:
  backend: http
  url: http://ledger:8545
  timeout: 2s
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "0123456789abcdef0123", cfg.Auth.JWTSecret)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "http", cfg.Anchor.Backend)
	assert.Equal(t, 2*time.Second, cfg.Anchor.Timeout)
	assert.Equal(t, 2, cfg.Anchor.MaxRetries)
	assert.Equal(t, risk.DefaultPolicy().Indicators, cfg.Risk.Indicators)
	assert.Equal(t, 75.0, cfg.Risk.Threshold)
}

func TestLoadConfig_CustomIndicators(t *testing.T) {
	path := writeConfig(t, `
auth:
  jwt_secret: "0123456789abcdef"
risk:
  base_score: 10
  threshold: 60
  indicators:
    - pattern: "eval("
      weight: 20
    - pattern: "exec("
      weight: 25
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 60.0, cfg.Risk.Threshold)
	assert.Equal(t, []risk.Indicator{{Pattern: "eval(", Weight: 20}, {Pattern: "exec(", Weight: 25}}, cfg.Risk.Indicators)
}

func TestLoadConfig_IndicatorsAbsentOrEmpty(t *testing.T) {
	absent := writeConfig(t, `
auth:
  jwt_secret: "0123456789abcdef"
risk:
  threshold: 60
`)
	cfg, err := LoadConfig(absent)
	require.NoError(t, err)
	assert.Equal(t, risk.DefaultPolicy().Indicators, cfg.Risk.Indicators)

	empty := writeConfig(t, `
auth:
  jwt_secret: "0123456789abcdef"
risk:
  indicators: []
`)
	cfg, err = LoadConfig(empty)
	require.NoError(t, err)
	assert.Empty(t, cfg.Risk.Indicators)
	assert.Equal(t, 75.0, cfg.Risk.Threshold)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]string{
		"short secret":    "auth:\n  jwt_secret: short\n",
		"bad driver":      "auth:\n  jwt_secret: 0123456789abcdef\ndatabase:\n  driver: mysql\n",
		"bad anchor":      "auth:\n  jwt_secret: 0123456789abcdef\nanchor:\n  backend: tsa\n",
		"bad threshold":   "auth:\n  jwt_secret: 0123456789abcdef\nrisk:\n  threshold: 150\n",
		"redis sans addr": "auth:\n  jwt_secret: 0123456789abcdef\nredis:\n  enabled: true\n  addr: \"\"\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}
