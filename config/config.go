package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration, shared by the fuelctl client and
// the devserver stub.
type Config struct {
	Authority AuthorityConfig `mapstructure:"authority"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Log       LogConfig       `mapstructure:"log"`
	DevServer DevServerConfig `mapstructure:"devserver"`
}

// AuthorityConfig points the client at the Remote Ledger Authority.
type AuthorityConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StorageConfig selects the durable key-value store backing the session token
// and selected-card snapshot.
type StorageConfig struct {
	Backend string      `mapstructure:"backend"` // file, redis
	Dir     string      `mapstructure:"dir"`     // file backend: state directory ("" = default)
	Redis   RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// DevServerConfig configures the local authority stub.
type DevServerConfig struct {
	Host     string         `mapstructure:"host"`
	Port     int            `mapstructure:"port"`
	Mode     string         `mapstructure:"mode"`  // debug, release, test
	Store    string         `mapstructure:"store"` // memory, postgres
	JWT      JWTConfig      `mapstructure:"jwt"`
	Database DatabaseConfig `mapstructure:"database"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: FUELCARD.
// Nested keys use underscore: FUELCARD_AUTHORITY_BASE_URL, FUELCARD_LOG_LEVEL, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("authority.base_url", "http://localhost:3000")
	v.SetDefault("authority.timeout", "15s")
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.dir", "")
	v.SetDefault("storage.redis.host", "localhost")
	v.SetDefault("storage.redis.port", 6379)
	v.SetDefault("storage.redis.password", "")
	v.SetDefault("storage.redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("devserver.host", "0.0.0.0")
	v.SetDefault("devserver.port", 3000)
	v.SetDefault("devserver.mode", "debug")
	v.SetDefault("devserver.store", "memory")
	v.SetDefault("devserver.jwt.secret", "dev-only-secret")
	v.SetDefault("devserver.jwt.expiry", "24h")
	v.SetDefault("devserver.jwt.issuer", "fuelcard-devserver")
	v.SetDefault("devserver.database.host", "localhost")
	v.SetDefault("devserver.database.port", 5432)
	v.SetDefault("devserver.database.user", "postgres")
	v.SetDefault("devserver.database.password", "postgres")
	v.SetDefault("devserver.database.dbname", "fuelcards")
	v.SetDefault("devserver.database.sslmode", "disable")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: FUELCARD_AUTHORITY_BASE_URL -> authority.base_url
	v.SetEnvPrefix("FUELCARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file is optional; env vars can suffice.
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
