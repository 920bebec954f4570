package config

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	RedisURL    string   `mapstructure:"REDIS_URL"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	JWTSigningKey  string        `mapstructure:"JWT_SIGNING_KEY"`
	JWTIssuer      string        `mapstructure:"JWT_ISSUER"`
	AccessTokenTTL time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	OTPTTL         time.Duration `mapstructure:"OTP_TTL"`

	// Sign-in endpoints are limited per client IP.
	AuthRatePerMinute int `mapstructure:"AUTH_RATE_PER_MINUTE"`
	AuthRateBurst     int `mapstructure:"AUTH_RATE_BURST"`

	SearchCacheTTL time.Duration `mapstructure:"SEARCH_CACHE_TTL"`
	PageSize       int           `mapstructure:"PAGE_SIZE"`
	MaxPageSize    int           `mapstructure:"MAX_PAGE_SIZE"`
	HospitalCode   string        `mapstructure:"HOSPITAL_CODE"`

	SendGridAPIKey string `mapstructure:"SENDGRID_API_KEY"`
	MailFrom       string `mapstructure:"MAIL_FROM"`

	LogFile       string `mapstructure:"LOG_FILE"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	LogMaxSizeMB  int    `mapstructure:"LOG_MAX_SIZE_MB"`
	LogMaxBackups int    `mapstructure:"LOG_MAX_BACKUPS"`
	LogMaxAgeDays int    `mapstructure:"LOG_MAX_AGE_DAYS"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "REDIS_URL", "CORS_ORIGINS",
	"JWT_SIGNING_KEY", "JWT_ISSUER", "ACCESS_TOKEN_TTL", "OTP_TTL",
	"AUTH_RATE_PER_MINUTE", "AUTH_RATE_BURST",
	"SEARCH_CACHE_TTL", "PAGE_SIZE", "MAX_PAGE_SIZE", "HOSPITAL_CODE",
	"SENDGRID_API_KEY", "MAIL_FROM",
	"LOG_FILE", "LOG_LEVEL", "LOG_MAX_SIZE_MB", "LOG_MAX_BACKUPS", "LOG_MAX_AGE_DAYS",
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("JWT_ISSUER", "hms")
	v.SetDefault("ACCESS_TOKEN_TTL", "12h")
	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("AUTH_RATE_PER_MINUTE", 10)
	v.SetDefault("AUTH_RATE_BURST", 10)
	v.SetDefault("SEARCH_CACHE_TTL", "60s")
	v.SetDefault("PAGE_SIZE", 10)
	v.SetDefault("MAX_PAGE_SIZE", 100)
	v.SetDefault("HOSPITAL_CODE", "01")
	v.SetDefault("MAIL_FROM", "no-reply@hms.local")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_MAX_SIZE_MB", 10)
	v.SetDefault("LOG_MAX_BACKUPS", 5)
	v.SetDefault("LOG_MAX_AGE_DAYS", 28)

	for _, k := range keys {
		_ = v.BindEnv(k)
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

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

var hospitalCodePattern = regexp.MustCompile(`^[A-Z0-9]{1,4}$`)

// Validate refuses configurations that would run unsafely or generate
// malformed identifiers.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Env != "development" && c.Env != "production" {
		return fmt.Errorf("ENV must be \"development\" or \"production\", got %q", c.Env)
	}
	if !c.IsDev() && len(c.JWTSigningKey) < 32 {
		return fmt.Errorf("JWT_SIGNING_KEY of at least 32 bytes is required outside development")
	}
	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}
	if c.OTPTTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive")
	}
	if c.AuthRatePerMinute <= 0 || c.AuthRateBurst <= 0 {
		return fmt.Errorf("AUTH_RATE_PER_MINUTE and AUTH_RATE_BURST must be positive")
	}
	if c.PageSize <= 0 || c.MaxPageSize < c.PageSize {
		return fmt.Errorf("PAGE_SIZE must be positive and not exceed MAX_PAGE_SIZE")
	}
	if !hospitalCodePattern.MatchString(c.HospitalCode) {
		return fmt.Errorf("HOSPITAL_CODE must be 1-4 uppercase letters or digits, got %q", c.HospitalCode)
	}
	return nil
}

// SigningKey returns the JWT key, falling back to a fixed development key.
func (c *Config) SigningKey() []byte {
	if c.JWTSigningKey == "" && c.IsDev() {
		return []byte("hms-development-signing-key-not-for-production")
	}
	return []byte(c.JWTSigningKey)
}
