package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("POSTGRES_URL", "postgres://storefront@localhost/storefront")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("MP_ACCESS_TOKEN", "token")
	t.Setenv("MP_TIMEOUT", "5s")
	t.Setenv("NOTIFY_ADMIN_NUMBER", "5511999999999")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres://storefront@localhost/storefront", cfg.Postgres.URL)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.BrokerList())
	assert.Equal(t, "token", cfg.MP.AccessToken)
	assert.Equal(t, 5*time.Second, cfg.MP.Timeout)
	assert.Equal(t, "5511999999999", cfg.Notify.AdminNumber)

	assert.Equal(t, "order.events", cfg.Kafka.Topic)
	assert.Equal(t, "America/Sao_Paulo", cfg.MP.TimeZone)
	assert.Equal(t, "evolution", cfg.Notify.Provider)
	assert.Equal(t, time.Hour, cfg.Reaper.TTL)
}

func TestLoad_FileThenEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "storefront.yaml")
	content := []byte(`
port: "9000"
postgres:
  url: postgres://from-file
notify:
  provider: callmebot
`)
	require.NoError(t, os.WriteFile(path, content, 0o600))

	t.Setenv("POSTGRES_URL", "postgres://from-env")
	t.Setenv("PORT", "")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "postgres://from-env", cfg.Postgres.URL)
	assert.Equal(t, "callmebot", cfg.Notify.Provider)
}

func TestLoad_ValidationErrors(t *testing.T) {
	t.Setenv("POSTGRES_URL", "")
	t.Setenv("NOTIFY_PROVIDER", "carrier-pigeon")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "POSTGRES_URL is required")
	assert.Contains(t, err.Error(), "NOTIFY_PROVIDER")
}

func TestRequireGateway(t *testing.T) {
	cfg := &Config{}
	err := cfg.RequireGateway()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MP_ACCESS_TOKEN")

	cfg.MP.AccessToken = "token"
	cfg.MP.NotificationURL = "https://shop.example/webhook"
	assert.NoError(t, cfg.RequireGateway())
}

func TestRequireSession(t *testing.T) {
	cfg := &Config{Session: SessionConfig{Secret: "short"}}
	assert.Error(t, cfg.RequireSession())

	cfg.Session.Secret = "0123456789abcdef"
	assert.NoError(t, cfg.RequireSession())
}

func TestLoad_TelemetrySettings(t *testing.T) {
	t.Setenv("POSTGRES_URL", "postgres://x")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4317")
	t.Setenv("OTEL_SAMPLE_RATIO", "0.25")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "collector:4317", cfg.OTel.Endpoint)
	assert.InDelta(t, 0.25, cfg.OTel.SampleRatio, 1e-9)

	t.Setenv("OTEL_SAMPLE_RATIO", "2")
	_, err = Load("")
	assert.ErrorContains(t, err, "OTEL_SAMPLE_RATIO")
}
