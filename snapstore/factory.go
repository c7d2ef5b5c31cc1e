package snapstore

import (
	"context"
	"fmt"
)

// New returns a store for cfg.Driver, wrapped with encryption and shaping when
// configured. Construction failures are reported by every call on the returned store,
// and by Err.
//
// Example: file store with gzip
//
//	ctx := context.Background()
//	store := snapstore.New(ctx, snapstore.Config{
//		Driver:      snapstore.DriverFile,
//		FileDir:     "/tmp/snapshots",
//		Compression: snapstore.CompressionGzip,
//	})
//	fmt.Println(store.Driver()) // file
func New(ctx context.Context, cfg Config) Store {
	cfg = cfg.withDefaults()
	base, err := newBase(ctx, cfg)
	if err != nil {
		return &errorStore{driver: cfg.Driver, err: err}
	}
	sealed, err := newEncryptingStore(base, cfg.EncryptionKey)
	if err != nil {
		return &errorStore{driver: cfg.Driver, err: err}
	}
	return newShapingStore(sealed, cfg.Compression, cfg.MaxValueBytes)
}

// NewWith builds a store for driver from functional options.
func NewWith(ctx context.Context, driver Driver, opts ...Option) Store {
	cfg := Config{Driver: driver}
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return New(ctx, cfg)
}

// NewMemory is a convenience for an in-process store.
func NewMemory(ctx context.Context, opts ...Option) Store {
	return NewWith(ctx, DriverMemory, opts...)
}

// NewFile is a convenience for a filesystem store rooted at dir.
func NewFile(ctx context.Context, dir string, opts ...Option) Store {
	return NewWith(ctx, DriverFile, append([]Option{WithFileDir(dir)}, opts...)...)
}

// NewRedis is a convenience for a redis store.
func NewRedis(ctx context.Context, client RedisClient, opts ...Option) Store {
	return NewWith(ctx, DriverRedis, append([]Option{WithRedisClient(client)}, opts...)...)
}

// Err returns the construction error of a store built by New, if any.
func Err(s Store) error {
	if es, ok := s.(*errorStore); ok {
		return es.err
	}
	return nil
}

func newBase(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverNull:
		return newNullStore(), nil
	case DriverMemory:
		return newMemoryStore(cfg.DefaultTTL, cfg.MemoryCleanupInterval), nil
	case DriverFile:
		return newFileStore(cfg.FileDir, cfg.DefaultTTL)
	case DriverRedis:
		return newRedisStore(cfg.RedisClient, cfg.DefaultTTL, cfg.Prefix), nil
	case DriverSQL:
		return newSQLStore(ctx, cfg)
	case DriverNATS:
		return newNATSStore(cfg.NATSKeyValue, cfg.DefaultTTL, cfg.Prefix, cfg.NATSBucketTTL), nil
	case DriverDynamo:
		return newDynamoStore(ctx, cfg)
	default:
		return nil, fmt.Errorf("snapstore: unknown driver %q", cfg.Driver)
	}
}
