package config

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/goforj/normcache"
	"github.com/goforj/normcache/snapstore"
)

const (
	EnvEndpoint      = "HASURA_ENDPOINT"
	EnvAdminSecret   = "HASURA_ADMIN_SECRET"
	EnvEncryptionKey = "NORMCACHE_ENCRYPTION_KEY"
)

type AppConfig struct {
	Version    int                   `yaml:"version"`
	Type       string                `yaml:"type"`
	Field      string                `yaml:"field"`
	Hasura     HasuraConfig          `yaml:"hasura"`
	ListFields []normcache.ListField `yaml:"list_fields"`
	Snapshots  SnapshotConfig        `yaml:"snapshots"`
	Log        LogConfig             `yaml:"log"`
}

type HasuraConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	AdminSecret string        `yaml:"admin_secret"`
	IDType      string        `yaml:"id_type"`
	OrderBy     string        `yaml:"order_by"`
	Columns     []string      `yaml:"columns"`
	Timeout     time.Duration `yaml:"timeout"`
}

type SnapshotConfig struct {
	Driver     snapstore.Driver `yaml:"driver"`
	Revalidate time.Duration    `yaml:"revalidate"`
	Prefix     string           `yaml:"prefix"`
	Dir        string           `yaml:"dir"`

	RedisAddr string `yaml:"redis_addr"`

	SQLDriver string `yaml:"sql_driver"`
	SQLDSN    string `yaml:"sql_dsn"`
	SQLTable  string `yaml:"sql_table"`

	NATSURL    string `yaml:"nats_url"`
	NATSBucket string `yaml:"nats_bucket"`

	DynamoEndpoint string `yaml:"dynamo_endpoint"`
	DynamoRegion   string `yaml:"dynamo_region"`
	DynamoTable    string `yaml:"dynamo_table"`

	Compression   snapstore.CompressionCodec `yaml:"compression"`
	MaxValueBytes int                        `yaml:"max_value_bytes"`
	// EncryptionKey is base64; prefer NORMCACHE_ENCRYPTION_KEY over committing it.
	EncryptionKey string `yaml:"encryption_key"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when no file is given.
func Default() AppConfig {
	return AppConfig{
		Version: 1,
		Type:    "users",
		Hasura: HasuraConfig{
			Endpoint: "http://localhost:8080/v1/graphql",
			Timeout:  10 * time.Second,
		},
		Snapshots: SnapshotConfig{
			Driver:     snapstore.DriverMemory,
			Revalidate: time.Second,
		},
		Log: LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads path over Default, applies environment overrides and validates. An empty
// path skips the file.
func Load(path string) (*AppConfig, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading app config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("loading app config: %w", err)
		}
	}
	applyEnv(&cfg, os.Getenv)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("loading app config: %w", err)
	}
	return &cfg, nil
}

func applyEnv(cfg *AppConfig, getenv func(string) string) {
	if v := getenv(EnvEndpoint); v != "" {
		cfg.Hasura.Endpoint = v
	}
	if v := getenv(EnvAdminSecret); v != "" {
		cfg.Hasura.AdminSecret = v
	}
	if v := getenv(EnvEncryptionKey); v != "" {
		cfg.Snapshots.EncryptionKey = v
	}
}

func validate(cfg *AppConfig) error {
	if cfg.Version != 1 {
		return fmt.Errorf("unsupported version: %d", cfg.Version)
	}
	if _, err := normcache.Identify(cfg.Type, "_"); err != nil {
		return fmt.Errorf("invalid type %q", cfg.Type)
	}
	if strings.TrimSpace(cfg.Hasura.Endpoint) == "" {
		return fmt.Errorf("hasura endpoint is required")
	}
	if cfg.Snapshots.Revalidate <= 0 {
		return fmt.Errorf("snapshots revalidate must be positive")
	}

	switch cfg.Snapshots.Driver {
	case snapstore.DriverNull, snapstore.DriverMemory, snapstore.DriverFile:
	case snapstore.DriverRedis:
		if cfg.Snapshots.RedisAddr == "" {
			return fmt.Errorf("snapshots redis_addr is required for the redis driver")
		}
	case snapstore.DriverSQL:
		if cfg.Snapshots.SQLDriver == "" || cfg.Snapshots.SQLDSN == "" {
			return fmt.Errorf("snapshots sql_driver and sql_dsn are required for the sql driver")
		}
	case snapstore.DriverNATS:
		if cfg.Snapshots.NATSURL == "" || cfg.Snapshots.NATSBucket == "" {
			return fmt.Errorf("snapshots nats_url and nats_bucket are required for the nats driver")
		}
	case snapstore.DriverDynamo:
	default:
		return fmt.Errorf("unknown snapshots driver: %s", cfg.Snapshots.Driver)
	}

	switch cfg.Snapshots.Compression {
	case snapstore.CompressionNone, snapstore.CompressionGzip:
	default:
		return fmt.Errorf("unknown snapshots compression: %s", cfg.Snapshots.Compression)
	}
	if _, err := cfg.Snapshots.Key(); err != nil {
		return err
	}
	if _, err := cfg.Log.SlogLevel(); err != nil {
		return err
	}
	if f := strings.ToLower(cfg.Log.Format); f != "" && f != "text" && f != "json" {
		return fmt.Errorf("unknown log format: %s", cfg.Log.Format)
	}

	if _, err := normcache.NewRouter(cfg.ListFields...); err != nil {
		return fmt.Errorf("list fields: %w", err)
	}
	return nil
}

// Key decodes EncryptionKey. An empty key returns nil.
func (s SnapshotConfig) Key() ([]byte, error) {
	if s.EncryptionKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(s.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("snapshots encryption_key must be base64: %w", err)
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, fmt.Errorf("snapshots encryption_key must decode to 16, 24 or 32 bytes, got %d", len(key))
	}
}

// SlogLevel maps Level onto slog. Empty means info.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level: %s", l.Level)
	}
}
