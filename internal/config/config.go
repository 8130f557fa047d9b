package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Auth     AuthConfig     `yaml:"auth"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Sweeper  SweeperConfig  `yaml:"sweeper"`
	Limits   LimitsConfig   `yaml:"limits"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type AuthConfig struct {
	// TokenSecret signs access tokens; QRSecret signs per-ticket QR tokens.
	TokenSecret      string `yaml:"token_secret"`
	QRSecret         string `yaml:"qr_secret"`
	AccessTTLMinutes int    `yaml:"access_ttl_minutes"`
}

type GatewayConfig struct {
	BaseURL       string `yaml:"base_url"`
	KeyID         string `yaml:"key_id"`
	KeySecret     string `yaml:"key_secret"`
	WebhookSecret string `yaml:"webhook_secret"`
	TimeoutSecs   int    `yaml:"timeout_seconds"`
}

type SweeperConfig struct {
	IntervalMinutes int `yaml:"interval_minutes"`
}

type LimitsConfig struct {
	MaxCallsPerMinute int `yaml:"max_calls_per_minute"`
}

// AccessTTL returns the bearer-token lifetime. Default 120 minutes.
func (a AuthConfig) AccessTTL() time.Duration {
	if a.AccessTTLMinutes <= 0 {
		return 120 * time.Minute
	}
	return time.Duration(a.AccessTTLMinutes) * time.Minute
}

// Timeout returns the gateway HTTP timeout. Default 15s per the
// create-order contract.
func (g GatewayConfig) Timeout() time.Duration {
	if g.TimeoutSecs <= 0 {
		return 15 * time.Second
	}
	return time.Duration(g.TimeoutSecs) * time.Second
}

// Interval returns the background sweep cadence. Default 5 minutes.
func (s SweeperConfig) Interval() time.Duration {
	if s.IntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(s.IntervalMinutes) * time.Minute
}

// LoadConfig reads the YAML config file, then applies environment
// overrides so deployments can keep secrets out of the file.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return &cfg, nil
}

// FromEnv builds a config from the environment alone.
func FromEnv() *Config {
	var cfg Config
	cfg.applyEnv()
	return &cfg
}

func (c *Config) applyEnv() {
	setStr(&c.Server.Port, "PORT")
	setStr(&c.Server.Env, "APP_ENV")
	setStr(&c.Database.URL, "DATABASE_URL")
	setStr(&c.Redis.Addr, "REDIS_ADDR")
	setStr(&c.Redis.Password, "REDIS_PASSWORD")
	setInt(&c.Redis.DB, "REDIS_DB")
	setStr(&c.Auth.TokenSecret, "TOKEN_SECRET")
	setStr(&c.Auth.QRSecret, "QR_SECRET")
	setInt(&c.Auth.AccessTTLMinutes, "ACCESS_TTL_MINUTES")
	setStr(&c.Gateway.BaseURL, "GATEWAY_BASE_URL")
	setStr(&c.Gateway.KeyID, "GATEWAY_KEY_ID")
	setStr(&c.Gateway.KeySecret, "GATEWAY_KEY_SECRET")
	setStr(&c.Gateway.WebhookSecret, "GATEWAY_WEBHOOK_SECRET")
	setInt(&c.Gateway.TimeoutSecs, "GATEWAY_TIMEOUT_SECONDS")
	setInt(&c.Sweeper.IntervalMinutes, "SWEEP_INTERVAL_MINUTES")
	setInt(&c.Limits.MaxCallsPerMinute, "MAX_CALLS_PER_MINUTE")

	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}
