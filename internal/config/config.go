package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type HTTPConfig struct {
	Host           string
	Port           int
	AllowedOrigins []string
}

type DBConfig struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime string
}

type AuthConfig struct {
	AccessSecret string
}

type PlatformConfig struct {
	CustodyAccount    string
	Owner             string
	FeeCollector      string
	FeeBP             uint32
	WhitelistedTokens []string
	MaxApplications   int
	LedgerGenesis     time.Time
	LedgerUnit        time.Duration
}

type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
}

type RedisConfig struct {
	URL            string
	IdempotencyTTL time.Duration
}

type Config struct {
	Environment string
	HTTP        HTTPConfig
	DB          DBConfig
	Auth        AuthConfig
	Platform    PlatformConfig
	Kafka       KafkaConfig
	Redis       RedisConfig
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("app")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("./deploy")
	v.AddConfigPath("./internal/config")
	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_HOST", "0.0.0.0")
	v.SetDefault("HTTP_PORT", 7090)
	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_CONN_MAX_LIFETIME", "30m")
	v.SetDefault("PLATFORM_FEE_BP", 0)
	v.SetDefault("MARKETPLACE_MAX_APPLICATIONS", 50)
	v.SetDefault("LEDGER_GENESIS", "2024-01-01T00:00:00Z")
	v.SetDefault("LEDGER_UNIT_SECONDS", 5)
	v.SetDefault("KAFKA_TOPIC_PREFIX", "decentpay.")
	v.SetDefault("IDEMPOTENCY_TTL", "24h")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")

	_ = v.ReadInConfig()

	genesis, err := time.Parse(time.RFC3339, strings.TrimSpace(v.GetString("LEDGER_GENESIS")))
	if err != nil {
		return nil, fmt.Errorf("LEDGER_GENESIS: %w", err)
	}
	idempotencyTTL, err := time.ParseDuration(v.GetString("IDEMPOTENCY_TTL"))
	if err != nil {
		return nil, fmt.Errorf("IDEMPOTENCY_TTL: %w", err)
	}

	cfg := &Config{
		Environment: v.GetString("APP_ENV"),
		HTTP: HTTPConfig{
			Host:           v.GetString("HTTP_HOST"),
			Port:           v.GetInt("HTTP_PORT"),
			AllowedOrigins: parseList(v.GetString("CORS_ALLOWED_ORIGINS")),
		},
		DB: DBConfig{
			Driver:          strings.ToLower(strings.TrimSpace(v.GetString("STORE_DRIVER"))),
			DSN:             v.GetString("DB_DSN"),
			MaxOpenConns:    v.GetInt("DB_MAX_OPEN_CONNS"),
			MaxIdleConns:    v.GetInt("DB_MAX_IDLE_CONNS"),
			ConnMaxLifetime: v.GetString("DB_CONN_MAX_LIFETIME"),
		},
		Auth: AuthConfig{
			AccessSecret: v.GetString("JWT_ACCESS_SECRET"),
		},
		Platform: PlatformConfig{
			CustodyAccount:    strings.TrimSpace(v.GetString("CUSTODY_ACCOUNT")),
			Owner:             strings.TrimSpace(v.GetString("ADMIN_OWNER")),
			FeeCollector:      strings.TrimSpace(v.GetString("ADMIN_FEE_COLLECTOR")),
			FeeBP:             v.GetUint32("PLATFORM_FEE_BP"),
			WhitelistedTokens: parseList(v.GetString("WHITELISTED_TOKENS")),
			MaxApplications:   v.GetInt("MARKETPLACE_MAX_APPLICATIONS"),
			LedgerGenesis:     genesis,
			LedgerUnit:        time.Duration(v.GetInt("LEDGER_UNIT_SECONDS")) * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:     parseList(v.GetString("KAFKA_BROKERS")),
			TopicPrefix: v.GetString("KAFKA_TOPIC_PREFIX"),
		},
		Redis: RedisConfig{
			URL:            strings.TrimSpace(v.GetString("REDIS_URL")),
			IdempotencyTTL: idempotencyTTL,
		},
	}

	if cfg.Platform.FeeCollector == "" {
		cfg.Platform.FeeCollector = cfg.Platform.Owner
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	switch cfg.DB.Driver {
	case StoreDriverPostgres:
		if cfg.DB.DSN == "" {
			return fmt.Errorf("DB_DSN is required")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q", StoreDriverPostgres, StoreDriverMemory)
	}
	if cfg.Auth.AccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.Platform.CustodyAccount == "" {
		return fmt.Errorf("CUSTODY_ACCOUNT is required")
	}
	if cfg.Platform.Owner == "" {
		return fmt.Errorf("ADMIN_OWNER is required")
	}
	if cfg.Platform.FeeBP > 1000 {
		return fmt.Errorf("PLATFORM_FEE_BP must not exceed 1000")
	}
	if cfg.Platform.LedgerUnit <= 0 {
		return fmt.Errorf("LEDGER_UNIT_SECONDS must be positive")
	}
	return nil
}

func parseList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	items := strings.Split(raw, ",")
	result := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item != "" {
			result = append(result, item)
		}
	}
	return result
}
