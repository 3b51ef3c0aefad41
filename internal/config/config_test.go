package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "bombadil", cfg.MQTT.Host)
	assert.Equal(t, 1883, cfg.MQTT.Port)
	assert.Equal(t, "artisan", cfg.MQTT.Topic)
	assert.Equal(t, "artisan", cfg.MQTT.User)
	assert.Equal(t, "cafe", cfg.MQTT.Password)
	assert.Equal(t, "localhost:8765", cfg.Listen.Addr())
	assert.Equal(t, []string{"ET", "BT"}, cfg.Channels)
	assert.Equal(t, time.Second, cfg.Reconnect.InitialBackoff)
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxBackoff)
	assert.Equal(t, 5*time.Second, cfg.Session.WriteTimeout)
	assert.Equal(t, int64(64<<10), cfg.Session.MaxMessageBytes)
	assert.Equal(t, 60, cfg.Accept.RateLimit)
	assert.Equal(t, 16, cfg.Accept.MaxSessionsPerRemote)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Empty(t, cfg.DatabaseURL)
	assert.False(t, cfg.PrintConfig)
}

func TestLoadShortFlags(t *testing.T) {
	cfg, err := Load([]string{"-H", "roaster.local", "-u", "roaster", "-p", "secret", "--debug", "--print-config"})
	require.NoError(t, err)

	assert.Equal(t, "roaster.local", cfg.MQTT.Host)
	assert.Equal(t, "roaster", cfg.MQTT.User)
	assert.Equal(t, "secret", cfg.MQTT.Password)
	assert.True(t, cfg.Log.Debug)
	assert.True(t, cfg.PrintConfig)
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mqtt:
  host: from-file
  topic: roast/telemetry
listen:
  port: 9000
channels: [ET, BT, Burner]
reconnect:
  max_backoff: 10s
`), 0o600))

	t.Setenv("ARTISAN_MQTT_HOST", "from-env")

	cfg, err := Load([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.MQTT.Host)
	assert.Equal(t, "roast/telemetry", cfg.MQTT.Topic)
	assert.Equal(t, 9000, cfg.Listen.Port)
	assert.Equal(t, []string{"ET", "BT", "Burner"}, cfg.Channels)
	assert.Equal(t, 10*time.Second, cfg.Reconnect.MaxBackoff)
}

func TestLoadFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("ARTISAN_MQTT_HOST", "from-env")
	t.Setenv("ARTISAN_LISTEN_PORT", "9100")

	cfg, err := Load([]string{"--host", "from-flag"})
	require.NoError(t, err)

	assert.Equal(t, "from-flag", cfg.MQTT.Host)
	assert.Equal(t, 9100, cfg.Listen.Port)
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
}

func TestLoadUnknownFlag(t *testing.T) {
	_, err := Load([]string{"--no-such-flag"})
	require.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, err := Load([]string{"--qos", "3"})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = Load([]string{"--log-format", "xml"})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidateCollectsProblems(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)

	cfg.MQTT.Host = " "
	cfg.Channels = nil
	cfg.Reconnect.MaxBackoff = cfg.Reconnect.InitialBackoff / 2

	err = cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "mqtt.host is required")
	assert.Contains(t, err.Error(), "at least one channel is required")
	assert.Contains(t, err.Error(), "reconnect.max_backoff")
}

func TestYAMLRedactsSecrets(t *testing.T) {
	cfg, err := Load([]string{"--database-url", "postgres://bridge:hunter2@db:5432/ops"})
	require.NoError(t, err)

	out, err := cfg.YAML()
	require.NoError(t, err)

	text := string(out)
	assert.NotContains(t, text, "cafe")
	assert.NotContains(t, text, "hunter2")
	assert.Contains(t, text, "postgres://bridge:********@db:5432/ops")

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	assert.Contains(t, decoded, "mqtt")
	assert.NotContains(t, decoded, "PrintConfig")

	// rendering must not mutate the receiver
	assert.Equal(t, "cafe", cfg.MQTT.Password)
}
