// Package config loads storefront configuration from an optional YAML file and
// the environment.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024

type Config struct {
	Port      string          `koanf:"port"`
	Postgres  PostgresConfig  `koanf:"postgres"`
	Kafka     KafkaConfig     `koanf:"kafka"`
	Session   SessionConfig   `koanf:"session"`
	MP        GatewayConfig   `koanf:"mp"`
	Notify    NotifyConfig    `koanf:"notify"`
	Evolution EvolutionConfig `koanf:"evolution"`
	CallMeBot CallMeBotConfig `koanf:"callmebot"`
	Reaper    ReaperConfig    `koanf:"reaper"`
	OTel      OTelConfig      `koanf:"otel"`
}

type PostgresConfig struct {
	URL string `koanf:"url"`
}

type KafkaConfig struct {
	Brokers string `koanf:"brokers"`
	Topic   string `koanf:"topic"`
	Group   string `koanf:"group"`
}

func (k KafkaConfig) BrokerList() []string {
	if k.Brokers == "" {
		return nil
	}
	var brokers []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

type SessionConfig struct {
	Secret string `koanf:"secret"`
	Secure bool   `koanf:"secure"`
}

// GatewayConfig configures the Mercado Pago client.
type GatewayConfig struct {
	AccessToken     string        `koanf:"access_token"`
	BaseAPIURL      string        `koanf:"base_api_url"`
	NotificationURL string        `koanf:"notification_url"`
	ApplicationURL  string        `koanf:"application_url"`
	TimeZone        string        `koanf:"time_zone"`
	PayerEmail      string        `koanf:"payer_email"`
	Timeout         time.Duration `koanf:"timeout"`
}

type NotifyConfig struct {
	Provider    string        `koanf:"provider"`
	AdminNumber string        `koanf:"admin_number"`
	Timeout     time.Duration `koanf:"timeout"`
}

type EvolutionConfig struct {
	BaseURL  string `koanf:"base_url"`
	APIKey   string `koanf:"api_key"`
	Instance string `koanf:"instance"`
}

type CallMeBotConfig struct {
	APIURL string `koanf:"api_url"`
	APIKey string `koanf:"api_key"`
	Phone  string `koanf:"phone"`
}

type ReaperConfig struct {
	Interval time.Duration `koanf:"interval"`
	TTL      time.Duration `koanf:"ttl"`
}

// OTelConfig keeps the standard OTEL_EXPORTER_OTLP_ENDPOINT variable working.
type OTelConfig struct {
	Endpoint    string  `koanf:"exporter_otlp_endpoint"`
	SampleRatio float64 `koanf:"sample_ratio"`
}

// Load reads configPath when non-empty, then applies environment overrides.
//
// Environment variables map to keys by splitting on the first underscore:
//
//	POSTGRES_URL       -> postgres.url
//	MP_ACCESS_TOKEN    -> mp.access_token
//	NOTIFY_ADMIN_NUMBER -> notify.admin_number
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath != "" {
		content, err := readConfigFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// envKey maps SECTION_FIELD_NAME to section.field_name. Empty variables are
// skipped so they never mask file values or defaults.
func envKey(key, value string) (string, any) {
	if value == "" {
		return "", nil
	}
	lower := strings.ToLower(key)
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower, value
	}
	return parts[0] + "." + parts[1], value
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}

	return io.ReadAll(f)
}

func applyDefaults(cfg *Config) {
	if cfg.Port == "" {
		cfg.Port = "8081"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "order.events"
	}
	if cfg.Kafka.Group == "" {
		cfg.Kafka.Group = "notification-worker"
	}
	if cfg.MP.BaseAPIURL == "" {
		cfg.MP.BaseAPIURL = "https://api.mercadopago.com"
	}
	if cfg.MP.TimeZone == "" {
		cfg.MP.TimeZone = "America/Sao_Paulo"
	}
	if cfg.MP.Timeout == 0 {
		cfg.MP.Timeout = 30 * time.Second
	}
	if cfg.Notify.Provider == "" {
		cfg.Notify.Provider = "evolution"
	}
	if cfg.Reaper.Interval == 0 {
		cfg.Reaper.Interval = 5 * time.Minute
	}
	if cfg.Reaper.TTL == 0 {
		cfg.Reaper.TTL = time.Hour
	}
}

func (c *Config) Validate() error {
	var errs []error
	if c.Postgres.URL == "" {
		errs = append(errs, errors.New("POSTGRES_URL is required"))
	}
	if _, err := time.LoadLocation(c.MP.TimeZone); err != nil {
		errs = append(errs, fmt.Errorf("MP_TIME_ZONE %q: %w", c.MP.TimeZone, err))
	}
	switch c.Notify.Provider {
	case "evolution", "callmebot", "none":
	default:
		errs = append(errs, fmt.Errorf("NOTIFY_PROVIDER must be evolution, callmebot or none, got %q", c.Notify.Provider))
	}
	if c.OTel.SampleRatio < 0 || c.OTel.SampleRatio > 1 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATIO must be between 0 and 1, got %v", c.OTel.SampleRatio))
	}
	if c.Reaper.TTL < 0 || c.Reaper.Interval < 0 {
		errs = append(errs, errors.New("reaper durations must be positive"))
	}
	return errors.Join(errs...)
}

// RequireGateway reports missing gateway settings. Cash-only deployments can
// run without them.
func (c *Config) RequireGateway() error {
	var errs []error
	if strings.TrimSpace(c.MP.AccessToken) == "" {
		errs = append(errs, errors.New("MP_ACCESS_TOKEN is required"))
	}
	if strings.TrimSpace(c.MP.NotificationURL) == "" {
		errs = append(errs, errors.New("MP_NOTIFICATION_URL is required"))
	}
	return errors.Join(errs...)
}

// RequireSession reports a missing cookie signing secret.
func (c *Config) RequireSession() error {
	if len(c.Session.Secret) < 16 {
		return errors.New("SESSION_SECRET must be at least 16 bytes")
	}
	return nil
}
