package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                 string        `mapstructure:"PORT"`
	Env                  string        `mapstructure:"ENV"`
	DatabaseURL          string        `mapstructure:"DATABASE_URL"`
	DBMaxConns           int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns           int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir        string        `mapstructure:"MIGRATIONS_DIR"`
	RedisURL             string        `mapstructure:"REDIS_URL"`
	RedisChannel         string        `mapstructure:"REDIS_CHANNEL"`
	JWTSigningKey        string        `mapstructure:"JWT_SIGNING_KEY"`
	TokenTTL             time.Duration `mapstructure:"TOKEN_TTL"`
	CookieSecure         bool          `mapstructure:"COOKIE_SECURE"`
	CORSOrigins          []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS         float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst       int           `mapstructure:"RATE_LIMIT_BURST"`
	RequestTimeout       time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	UploadDir            string        `mapstructure:"UPLOAD_DIR"`
	UploadStore          string        `mapstructure:"UPLOAD_STORE"`
	MaxUploadBytes       int64         `mapstructure:"MAX_UPLOAD_BYTES"`
	NotificationTTL      time.Duration `mapstructure:"NOTIFICATION_TTL"`
	NotificationSweep    time.Duration `mapstructure:"NOTIFICATION_SWEEP_INTERVAL"`
	NotificationPageSize int           `mapstructure:"NOTIFICATION_PAGE_SIZE"`
}

// devSigningKey is only accepted while ENV=development.
const devSigningKey = "edhub-development-signing-key"

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("REDIS_CHANNEL", "edhub:events")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("UPLOAD_DIR", "./uploads")
	v.SetDefault("UPLOAD_STORE", "disk")
	v.SetDefault("MAX_UPLOAD_BYTES", 50*1024*1024)
	v.SetDefault("NOTIFICATION_TTL", "720h")
	v.SetDefault("NOTIFICATION_SWEEP_INTERVAL", "1h")
	v.SetDefault("NOTIFICATION_PAGE_SIZE", 50)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"MIGRATIONS_DIR", "REDIS_URL", "REDIS_CHANNEL", "JWT_SIGNING_KEY",
		"TOKEN_TTL", "COOKIE_SECURE", "CORS_ORIGINS", "RATE_LIMIT_RPS",
		"RATE_LIMIT_BURST", "REQUEST_TIMEOUT", "UPLOAD_DIR", "UPLOAD_STORE",
		"MAX_UPLOAD_BYTES", "NOTIFICATION_TTL",
		"NOTIFICATION_SWEEP_INTERVAL", "NOTIFICATION_PAGE_SIZE",
	} {
		_ = v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) == 1 && strings.Contains(cfg.CORSOrigins[0], ",") {
		cfg.CORSOrigins = strings.Split(cfg.CORSOrigins[0], ",")
	}
	if cfg.CORSOrigins == nil {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.JWTSigningKey == "" {
		log.Println("WARNING: JWT_SIGNING_KEY is not set; using the built-in development key.")
		cfg.JWTSigningKey = devSigningKey
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

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if c.JWTSigningKey == "" {
		return fmt.Errorf("JWT_SIGNING_KEY is required outside development")
	}
	if !c.IsDev() && c.JWTSigningKey == devSigningKey {
		return fmt.Errorf("JWT_SIGNING_KEY must not use the development key (ENV=%q)", c.Env)
	}
	if len(c.JWTSigningKey) < 16 {
		return fmt.Errorf("JWT_SIGNING_KEY must be at least 16 characters, got %d", len(c.JWTSigningKey))
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive")
	}
	if c.NotificationTTL <= 0 {
		return fmt.Errorf("NOTIFICATION_TTL must be positive")
	}
	if c.NotificationSweep <= 0 {
		return fmt.Errorf("NOTIFICATION_SWEEP_INTERVAL must be positive")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}
	if c.NotificationPageSize <= 0 {
		return fmt.Errorf("NOTIFICATION_PAGE_SIZE must be positive")
	}
	if c.UploadStore != "disk" && c.UploadStore != "memory" {
		return fmt.Errorf("UPLOAD_STORE must be disk or memory, got %q", c.UploadStore)
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}
	if c.IsProduction() && !c.CookieSecure {
		return fmt.Errorf("COOKIE_SECURE must be enabled in production")
	}
	return nil
}
