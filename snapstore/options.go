package snapstore

import "time"

// Option mutates Config when constructing a store.
type Option func(Config) Config

// WithDefaultTTL overrides the fallback TTL used when ttl <= 0.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(cfg Config) Config {
		cfg.DefaultTTL = ttl
		return cfg
	}
}

// WithMemoryCleanupInterval overrides the sweep interval for the memory driver.
func WithMemoryCleanupInterval(interval time.Duration) Option {
	return func(cfg Config) Config {
		cfg.MemoryCleanupInterval = interval
		return cfg
	}
}

// WithPrefix sets the key prefix for shared backends.
func WithPrefix(prefix string) Option {
	return func(cfg Config) Config {
		cfg.Prefix = prefix
		return cfg
	}
}

// WithRedisClient sets the redis client; required when using DriverRedis.
func WithRedisClient(client RedisClient) Option {
	return func(cfg Config) Config {
		cfg.RedisClient = client
		return cfg
	}
}

// WithFileDir sets the directory used by the file driver.
func WithFileDir(dir string) Option {
	return func(cfg Config) Config {
		cfg.FileDir = dir
		return cfg
	}
}

// WithSQL configures the sql driver.
func WithSQL(driverName, dsn, table string) Option {
	return func(cfg Config) Config {
		cfg.SQLDriverName = driverName
		cfg.SQLDSN = dsn
		cfg.SQLTable = table
		return cfg
	}
}

// WithNATSKeyValue sets the key-value bucket used by the nats driver.
func WithNATSKeyValue(kv NATSKeyValue, bucketTTL bool) Option {
	return func(cfg Config) Config {
		cfg.NATSKeyValue = kv
		cfg.NATSBucketTTL = bucketTTL
		return cfg
	}
}

// WithDynamoClient injects a DynamoDB client.
func WithDynamoClient(client DynamoAPI) Option {
	return func(cfg Config) Config {
		cfg.DynamoClient = client
		return cfg
	}
}

// WithDynamoEndpoint points the dynamodb driver at endpoint (e.g. DynamoDB Local).
func WithDynamoEndpoint(endpoint, region string) Option {
	return func(cfg Config) Config {
		cfg.DynamoEndpoint = endpoint
		cfg.DynamoRegion = region
		return cfg
	}
}

// WithDynamoTable sets the dynamodb table name.
func WithDynamoTable(table string) Option {
	return func(cfg Config) Config {
		cfg.DynamoTable = table
		return cfg
	}
}

// WithCompression compresses stored values.
func WithCompression(codec CompressionCodec) Option {
	return func(cfg Config) Config {
		cfg.Compression = codec
		return cfg
	}
}

// WithMaxValueBytes rejects values larger than n bytes.
func WithMaxValueBytes(n int) Option {
	return func(cfg Config) Config {
		cfg.MaxValueBytes = n
		return cfg
	}
}

// WithEncryptionKey seals values with AES-GCM.
func WithEncryptionKey(key []byte) Option {
	return func(cfg Config) Config {
		cfg.EncryptionKey = key
		return cfg
	}
}
