package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

const (
	// EnvDevelopment は開発環境を表すAPP_ENVの値。
	EnvDevelopment = "development"
	// EnvProduction は本番環境を表すAPP_ENVの値。
	EnvProduction = "production"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`

	// App
	AppEnv   string `env:"APP_ENV, default=production"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	// Session
	SessionSecret string `env:"SESSION_SECRET"`
	SessionStore  string `env:"SESSION_STORE, default=memory"`
	SessionMaxAge int    `env:"SESSION_MAX_AGE, default=86400"`

	// Redis（SESSION_STORE=redisの場合のみ使用）
	Redis RedisConfig

	// Mail
	SMTP SMTPConfig

	// Password tokens
	PasswordTokenTTL time.Duration `env:"PASSWORD_TOKEN_TTL, default=1h"`
	TokenRetention   time.Duration `env:"TOKEN_RETENTION, default=720h"`

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL, default=120"`
	RateLimitAuth    int `env:"RATE_LIMIT_AUTH, default=10"`

	// Server
	ServerPort string `env:"SERVER_PORT, default=8080"`
	BaseURL    string `env:"BASE_URL"`

	// Cookie
	CookieSecure bool // APP_ENVとBASE_URLから導出する
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// CORS
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN, default=http://localhost:3000"`
}

// RedisConfig はRedisセッションストアの接続設定。
type RedisConfig struct {
	Addr string `env:"REDIS_ADDR, default=localhost:6379"`
	DB   int    `env:"REDIS_DB, default=0"`
}

// SMTPConfig はメール送信の設定。Hostが空の場合はメールを送らずログに記録する。
type SMTPConfig struct {
	Host     string `env:"SMTP_HOST"`
	Port     int    `env:"SMTP_PORT, default=587"`
	Username string `env:"SMTP_USERNAME"`
	Password string `env:"SMTP_PASSWORD"`
	From     string `env:"MAIL_FROM, default=no-reply@localhost"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	return LoadContext(context.Background())
}

// LoadContext はLoadのcontext指定版。
func LoadContext(ctx context.Context) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	// Required fields
	var missing []string
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cfg.CookieSecure = cfg.AppEnv == EnvProduction || strings.HasPrefix(cfg.BaseURL, "https://")
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.AppEnv {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("APP_ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.AppEnv)
	}
	switch c.SessionStore {
	case "memory", "postgres", "redis":
	default:
		return fmt.Errorf("SESSION_STORE must be memory, postgres or redis, got %q", c.SessionStore)
	}
	if c.SessionMaxAge <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE must be positive, got %d", c.SessionMaxAge)
	}
	if c.PasswordTokenTTL <= 0 {
		return fmt.Errorf("PASSWORD_TOKEN_TTL must be positive, got %s", c.PasswordTokenTTL)
	}
	if c.RateLimitGeneral <= 0 || c.RateLimitAuth <= 0 {
		return fmt.Errorf("rate limits must be positive, got general=%d auth=%d", c.RateLimitGeneral, c.RateLimitAuth)
	}
	return nil
}

// IsDevelopment は開発環境で起動しているかを返す。
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}
