package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBSchema    string   `mapstructure:"DB_SCHEMA"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string   `mapstructure:"REDIS_URL"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthSigningKey string `mapstructure:"AUTH_SIGNING_KEY"`
	AuthIssuer     string `mapstructure:"AUTH_ISSUER"`
	AuthAudience   string `mapstructure:"AUTH_AUDIENCE"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	// Emergency alert fan-out. NotifyConcurrency 1 sends to one recipient at a
	// time; higher values opt into a bounded worker group.
	NotifyConcurrency  int           `mapstructure:"NOTIFY_CONCURRENCY"`
	NotifySendTimeout  time.Duration `mapstructure:"NOTIFY_SEND_TIMEOUT"`
	SMSGatewayURL      string        `mapstructure:"SMS_GATEWAY_URL"`
	EmailGatewayURL    string        `mapstructure:"EMAIL_GATEWAY_URL"`
	GatewaySecret      string        `mapstructure:"GATEWAY_SECRET"`
	GatewayTimeout     time.Duration `mapstructure:"GATEWAY_TIMEOUT"`
	AlertResolvePolicy string        `mapstructure:"ALERT_RESOLVE_POLICY"`

	// Realtime rooms.
	RealtimeBackend string `mapstructure:"REALTIME_BACKEND"`
	RealtimeChannel string `mapstructure:"REALTIME_CHANNEL"`
}

var envKeys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_SCHEMA", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL", "CORS_ORIGINS",
	"AUTH_SIGNING_KEY", "AUTH_ISSUER", "AUTH_AUDIENCE",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	"NOTIFY_CONCURRENCY", "NOTIFY_SEND_TIMEOUT", "SMS_GATEWAY_URL", "EMAIL_GATEWAY_URL",
	"GATEWAY_SECRET", "GATEWAY_TIMEOUT", "ALERT_RESOLVE_POLICY",
	"REALTIME_BACKEND", "REALTIME_CHANNEL",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_SCHEMA", "clinic")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("NOTIFY_CONCURRENCY", 1)
	v.SetDefault("NOTIFY_SEND_TIMEOUT", "0s")
	v.SetDefault("GATEWAY_TIMEOUT", "10s")
	v.SetDefault("ALERT_RESOLVE_POLICY", "overwrite")
	v.SetDefault("REALTIME_BACKEND", "local")
	v.SetDefault("REALTIME_CHANNEL", "clinic:realtime")

	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	// .env is optional
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate rejects configurations the server cannot run safely with. Outside
// development a signing key is needed to identify the actor behind each alert,
// and production must point at real SMS/email gateways.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" {
		return fmt.Errorf("AUTH_SIGNING_KEY is required when ENV=%q", c.Env)
	}

	if c.NotifyConcurrency < 1 {
		return fmt.Errorf("NOTIFY_CONCURRENCY must be at least 1, got %d", c.NotifyConcurrency)
	}
	if c.NotifySendTimeout < 0 {
		return fmt.Errorf("NOTIFY_SEND_TIMEOUT must not be negative")
	}

	switch c.AlertResolvePolicy {
	case "strict", "overwrite":
	default:
		return fmt.Errorf("ALERT_RESOLVE_POLICY must be \"strict\" or \"overwrite\", got %q", c.AlertResolvePolicy)
	}

	switch c.RealtimeBackend {
	case "local":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when REALTIME_BACKEND is \"redis\"")
		}
	default:
		return fmt.Errorf("REALTIME_BACKEND must be \"local\" or \"redis\", got %q", c.RealtimeBackend)
	}

	if c.IsProduction() {
		if c.SMSGatewayURL == "" {
			return fmt.Errorf("SMS_GATEWAY_URL is required in production")
		}
		if c.EmailGatewayURL == "" {
			return fmt.Errorf("EMAIL_GATEWAY_URL is required in production")
		}
	}

	return nil
}
