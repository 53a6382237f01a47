// Package config は環境変数と .env ファイルからサービス設定を読み込む。
//
// 設定は起動時に一度だけ読み込まれ、以後変更されない。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// EnvProduction は本番環境を表す。
	EnvProduction = "production"
	// EnvDevelopment は開発環境を表す。
	EnvDevelopment = "development"

	// DevSecret は開発環境で JWT_SECRET が未設定の場合に使う署名鍵。
	DevSecret = "dev-secret-key"

	// DriverSQLite は組み込みSQLiteドライバ名。
	DriverSQLite = "sqlite"
	// DriverPostgres はPostgreSQL (pgx) ドライバ名。
	DriverPostgres = "pgx"

	// DefaultSQLiteURL はSQLite使用時に DATABASE_URL が未設定の場合の接続先。
	DefaultSQLiteURL = "file:cloudmart.db?_pragma=foreign_keys(1)"
)

// ErrMissingSecret は本番環境で署名鍵が設定されていないことを表す。
var ErrMissingSecret = errors.New("config: 本番環境では JWT_SECRET が必須です")

// ErrMissingDatabaseURL はPostgreSQL使用時に接続先が設定されていないことを表す。
var ErrMissingDatabaseURL = errors.New("config: DATABASE_DRIVER=pgx の場合は DATABASE_URL が必須です")

// Config はサービスの設定。
type Config struct {
	Service     string
	Port        int
	Environment string

	LogLevel  string
	LogFormat string

	JWTSecret  string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	BcryptCost int

	DatabaseDriver string
	DatabaseURL    string

	UserServiceURL    string
	ProductServiceURL string
	OrderServiceURL   string

	RateLimitPerMinute int
	CORSOrigins        []string

	// UsingDevSecret は JWT_SECRET が未設定でDevSecretを使用していることを表す。
	UsingDevSecret bool
}

// IsProduction は本番環境かどうかを返す。
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}

// Addr はリッスンアドレスを返す。
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Load はサービスの設定を読み込む。
// カレントディレクトリに .env があれば先に読み込むが、既存の環境変数は上書きしない。
func Load(service string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("config: .env の読み込みに失敗: %w", err)
		}
	}
	return load(service, newViper(service))
}

func newViper(service string) *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", defaultPort(service))
	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("JWT_EXPIRES_IN", "24h")
	v.SetDefault("JWT_REFRESH_EXPIRES_IN", "7d")
	v.SetDefault("BCRYPT_SALT_ROUNDS", 10)
	v.SetDefault("DATABASE_DRIVER", DriverSQLite)
	v.SetDefault("USER_SERVICE_URL", "http://localhost:3001")
	v.SetDefault("PRODUCT_SERVICE_URL", "http://localhost:3002")
	v.SetDefault("ORDER_SERVICE_URL", "http://localhost:3003")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 100)
	v.SetDefault("CORS_ORIGINS", "*")
	return v
}

// defaultPort はサービスごとのデフォルトポートを返す。
func defaultPort(service string) int {
	switch service {
	case "user-service":
		return 3001
	default:
		return 3000
	}
}

func load(service string, v *viper.Viper) (*Config, error) {
	cfg := &Config{
		Service:            service,
		Port:               v.GetInt("PORT"),
		Environment:        strings.ToLower(v.GetString("APP_ENV")),
		LogLevel:           v.GetString("LOG_LEVEL"),
		LogFormat:          v.GetString("LOG_FORMAT"),
		JWTSecret:          v.GetString("JWT_SECRET"),
		BcryptCost:         v.GetInt("BCRYPT_SALT_ROUNDS"),
		DatabaseDriver:     strings.ToLower(v.GetString("DATABASE_DRIVER")),
		DatabaseURL:        v.GetString("DATABASE_URL"),
		UserServiceURL:     strings.TrimRight(v.GetString("USER_SERVICE_URL"), "/"),
		ProductServiceURL:  strings.TrimRight(v.GetString("PRODUCT_SERVICE_URL"), "/"),
		OrderServiceURL:    strings.TrimRight(v.GetString("ORDER_SERVICE_URL"), "/"),
		RateLimitPerMinute: v.GetInt("RATE_LIMIT_PER_MINUTE"),
		CORSOrigins:        splitList(v.GetString("CORS_ORIGINS")),
	}

	var err error
	if cfg.AccessTTL, err = ParseTTL(v.GetString("JWT_EXPIRES_IN")); err != nil {
		return nil, fmt.Errorf("config: JWT_EXPIRES_IN が不正です: %w", err)
	}
	if cfg.RefreshTTL, err = ParseTTL(v.GetString("JWT_REFRESH_EXPIRES_IN")); err != nil {
		return nil, fmt.Errorf("config: JWT_REFRESH_EXPIRES_IN が不正です: %w", err)
	}

	if cfg.JWTSecret == "" {
		if cfg.IsProduction() {
			return nil, ErrMissingSecret
		}
		cfg.JWTSecret = DevSecret
		cfg.UsingDevSecret = true
	}

	switch cfg.DatabaseDriver {
	case DriverSQLite:
		if cfg.DatabaseURL == "" {
			cfg.DatabaseURL = DefaultSQLiteURL
		}
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, ErrMissingDatabaseURL
		}
	default:
		return nil, fmt.Errorf("config: 未対応の DATABASE_DRIVER です: %q", cfg.DatabaseDriver)
	}

	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("config: PORT が不正です: %d", cfg.Port)
	}
	return cfg, nil
}

// ParseTTL は "24h" や "7d" 形式の有効期間をパースする。
// time.ParseDuration の書式に加えて日単位の "d" を受け付ける。
func ParseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, fmt.Errorf("日数の形式が不正です: %q", s)
		}
		if n <= 0 {
			return 0, fmt.Errorf("有効期間は正の値である必要があります: %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("有効期間は正の値である必要があります: %q", s)
	}
	return d, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
