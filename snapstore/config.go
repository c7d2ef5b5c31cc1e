package snapstore

import (
	"os"
	"path/filepath"
	"time"
)

const (
	defaultPrefix                = "normcache"
	defaultSnapshotTTL           = time.Second
	defaultMemoryCleanupInterval = time.Minute
	defaultSQLTable              = "normcache_snapshots"
	defaultDynamoTable           = "normcache_snapshots"
	defaultDynamoRegion          = "us-east-1"
)

func defaultFileDir() string {
	return filepath.Join(os.TempDir(), "normcache-snapshots")
}

// Config controls how a Store is constructed.
type Config struct {
	Driver Driver

	// DefaultTTL is used when a call provides ttl <= 0.
	DefaultTTL time.Duration

	// MemoryCleanupInterval controls in-process eviction of expired snapshots.
	MemoryCleanupInterval time.Duration

	// Prefix namespaces keys on shared backends.
	Prefix string

	// RedisClient is required when DriverRedis is used.
	RedisClient RedisClient

	// FileDir controls where the file driver writes snapshots.
	FileDir string

	// SQLDriverName is the database/sql driver: "sqlite", "pgx" or "mysql".
	SQLDriverName string
	SQLDSN        string
	SQLTable      string

	// NATSKeyValue is required when DriverNATS is used.
	NATSKeyValue NATSKeyValue
	// NATSBucketTTL trusts the bucket's own TTL instead of embedding expiry.
	NATSBucketTTL bool

	// DynamoClient overrides the client built from DynamoEndpoint/DynamoRegion.
	DynamoClient   DynamoAPI
	DynamoEndpoint string
	DynamoRegion   string
	DynamoTable    string

	// Compression compresses stored snapshots.
	Compression CompressionCodec
	// MaxValueBytes rejects snapshots larger than this many bytes (0 = unlimited).
	MaxValueBytes int
	// EncryptionKey seals snapshots with AES-GCM (16, 24 or 32 bytes).
	EncryptionKey []byte
}

func (c Config) withDefaults() Config {
	if c.Driver == "" {
		c.Driver = DriverMemory
	}
	if c.DefaultTTL <= 0 {
		c.DefaultTTL = defaultSnapshotTTL
	}
	if c.MemoryCleanupInterval <= 0 {
		c.MemoryCleanupInterval = defaultMemoryCleanupInterval
	}
	if c.Prefix == "" {
		c.Prefix = defaultPrefix
	}
	if c.FileDir == "" {
		c.FileDir = defaultFileDir()
	}
	if c.SQLTable == "" {
		c.SQLTable = defaultSQLTable
	}
	if c.DynamoTable == "" {
		c.DynamoTable = defaultDynamoTable
	}
	if c.DynamoRegion == "" {
		c.DynamoRegion = defaultDynamoRegion
	}
	return c
}
