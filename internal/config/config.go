package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	// Bloque app (opcional en YAML). Si no está, queda vacío.
	App struct {
		// dev | staging | prod
		Env string `yaml:"app_env"`
	} `yaml:"app"`

	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`

	Storage struct {
		DSN      string `yaml:"dsn"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		Kind  string `yaml:"kind"` // memory | redis
		Redis struct {
			Addr   string `yaml:"addr"`
			DB     int    `yaml:"db"`
			Prefix string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
	} `yaml:"cache"`

	JWT struct {
		Issuer string `yaml:"issuer"`
		// Secreto HS256. Nunca en YAML en prod; usar JWT_SECRET.
		Secret     string `yaml:"secret"`
		AccessTTL  string `yaml:"access_ttl"`
		RefreshTTL string `yaml:"refresh_ttl"`
	} `yaml:"jwt"`

	OAuth struct {
		CodeTTL string `yaml:"code_ttl"`
	} `yaml:"oauth"`

	Webhook struct {
		Timeout       string `yaml:"timeout"`
		BaseDelay     string `yaml:"base_delay"`
		MaxAttempts   int    `yaml:"max_attempts"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"webhook"`

	Sweep struct {
		Interval      string `yaml:"interval"`
		RetryInterval string `yaml:"retry_interval"`
	} `yaml:"sweep"`
}

// Load lee el YAML (opcional: path vacío arranca solo con env) y aplica
// defaults, overrides de entorno y validación.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	// sane defaults
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.JWT.AccessTTL == "" {
		c.JWT.AccessTTL = "1h"
	}
	if c.JWT.RefreshTTL == "" {
		c.JWT.RefreshTTL = "720h" // 30d
	}
	if c.OAuth.CodeTTL == "" {
		c.OAuth.CodeTTL = "10m"
	}
	if c.Webhook.Timeout == "" {
		c.Webhook.Timeout = "10s"
	}
	if c.Webhook.BaseDelay == "" {
		c.Webhook.BaseDelay = "60s"
	}
	if c.Webhook.MaxAttempts == 0 {
		c.Webhook.MaxAttempts = 3
	}
	if c.Webhook.RetentionDays == 0 {
		c.Webhook.RetentionDays = 30
	}
	if c.Sweep.Interval == "" {
		c.Sweep.Interval = "5m"
	}
	if c.Sweep.RetryInterval == "" {
		c.Sweep.RetryInterval = "15s"
	}

	// validate string durations
	for _, s := range []string{
		c.Cache.Memory.DefaultTTL,
		c.JWT.AccessTTL,
		c.JWT.RefreshTTL,
		c.OAuth.CodeTTL,
		c.Webhook.Timeout,
		c.Webhook.BaseDelay,
		c.Sweep.Interval,
		c.Sweep.RetryInterval,
	} {
		if _, err := time.ParseDuration(s); err != nil {
			return nil, err
		}
	}
	if c.Storage.Postgres.ConnMaxLifetime != "" {
		if _, err := time.ParseDuration(c.Storage.Postgres.ConnMaxLifetime); err != nil {
			return nil, err
		}
	}

	// Overrides por env + salvaguarda prod
	c.applyEnvOverrides()

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate: lo mínimo para arrancar sin sorpresas a mitad de request.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Storage.DSN) == "" {
		return fmt.Errorf("config: storage.dsn is required")
	}
	if strings.TrimSpace(c.JWT.Issuer) == "" {
		return fmt.Errorf("config: jwt.issuer is required")
	}
	if strings.TrimSpace(c.JWT.Secret) == "" {
		return fmt.Errorf("config: jwt secret is required (jwt.secret or JWT_SECRET)")
	}
	if strings.EqualFold(c.App.Env, "prod") && len(c.JWT.Secret) < 32 {
		return fmt.Errorf("config: jwt secret too short for prod (min 32 bytes)")
	}
	switch c.Cache.Kind {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown cache.kind %q", c.Cache.Kind)
	}
	if c.Cache.Kind == "redis" && strings.TrimSpace(c.Cache.Redis.Addr) == "" {
		return fmt.Errorf("config: cache.redis.addr is required when cache.kind=redis")
	}
	return nil
}

// applyEnvOverrides: pisa config.yaml con variables de entorno.
func (c *Config) applyEnvOverrides() {
	// APP
	if v, ok := getEnvStr("APP_ENV"); ok {
		c.App.Env = strings.ToLower(v)
	}

	// SERVER
	if v, ok := getEnvStr("SERVER_ADDR"); ok {
		c.Server.Addr = v
	}

	// STORAGE
	if v, ok := getEnvStr("STORAGE_DSN"); ok {
		c.Storage.DSN = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_OPEN_CONNS"); ok {
		c.Storage.Postgres.MaxOpenConns = v
	}
	if v, ok := getEnvInt("POSTGRES_MAX_IDLE_CONNS"); ok {
		c.Storage.Postgres.MaxIdleConns = v
	}

	// CACHE
	if v, ok := getEnvStr("CACHE_KIND"); ok {
		c.Cache.Kind = strings.ToLower(v)
	}
	if v, ok := getEnvStr("REDIS_ADDR"); ok {
		c.Cache.Redis.Addr = v
	}
	if v, ok := getEnvInt("REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvStr("REDIS_PREFIX"); ok {
		c.Cache.Redis.Prefix = v
	}

	// JWT
	if v, ok := getEnvStr("JWT_ISSUER"); ok {
		c.JWT.Issuer = v
	}
	if v, ok := getEnvStr("JWT_SECRET"); ok {
		c.JWT.Secret = v
	}
	if v, ok := getEnvDur("JWT_ACCESS_TTL"); ok {
		c.JWT.AccessTTL = v.String()
	}
	if v, ok := getEnvDur("JWT_REFRESH_TTL"); ok {
		c.JWT.RefreshTTL = v.String()
	}

	// WEBHOOK
	if v, ok := getEnvInt("WEBHOOK_MAX_ATTEMPTS"); ok {
		c.Webhook.MaxAttempts = v
	}
	if v, ok := getEnvDur("WEBHOOK_BASE_DELAY"); ok {
		c.Webhook.BaseDelay = v.String()
	}
}

// ---- Duraciones ya validadas en Load ----

func (c *Config) AccessTTL() time.Duration  { return mustDur(c.JWT.AccessTTL) }
func (c *Config) RefreshTTL() time.Duration { return mustDur(c.JWT.RefreshTTL) }
func (c *Config) CodeTTL() time.Duration    { return mustDur(c.OAuth.CodeTTL) }

func (c *Config) WebhookTimeout() time.Duration   { return mustDur(c.Webhook.Timeout) }
func (c *Config) WebhookBaseDelay() time.Duration { return mustDur(c.Webhook.BaseDelay) }

func (c *Config) SweepInterval() time.Duration      { return mustDur(c.Sweep.Interval) }
func (c *Config) SweepRetryInterval() time.Duration { return mustDur(c.Sweep.RetryInterval) }

func mustDur(s string) time.Duration {
	d, _ := time.ParseDuration(s)
	return d
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvDur(key string) (time.Duration, bool) {
	if s, ok := getEnvStr(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d, true
		}
	}
	return 0, false
}
