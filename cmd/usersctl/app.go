package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"

	"github.com/goforj/normcache"
	"github.com/goforj/normcache/backend/hasura"
	"github.com/goforj/normcache/internal/config"
	"github.com/goforj/normcache/internal/render"
	"github.com/goforj/normcache/snapstore"
)

type globalOptions struct {
	configPath string
	output     string
}

// newBackend is swapped in tests.
var newBackend = func(cfg *config.AppConfig, logger *slog.Logger) (normcache.Backend, error) {
	return hasura.New(hasura.Config{
		Endpoint:    cfg.Hasura.Endpoint,
		AdminSecret: cfg.Hasura.AdminSecret,
		HTTPClient:  &http.Client{Timeout: cfg.Hasura.Timeout},
		Columns:     cfg.Hasura.Columns,
		IDType:      cfg.Hasura.IDType,
		OrderBy:     cfg.Hasura.OrderBy,
		Logger:      logger,
	})
}

// app is one command invocation: a fresh cache seeded from the snapshot store, and the
// coordinator and seeder that feed it.
type app struct {
	cfg     *config.AppConfig
	logger  *slog.Logger
	cache   *normcache.Cache
	coord   *normcache.Coordinator
	seeder  *normcache.Seeder
	format  render.Format
	out     io.Writer
	closers []func()
}

func newApp(ctx context.Context, opts *globalOptions, stdout, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	format, err := render.ParseFormat(opts.output)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cfg.Log, stderr)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, format: format, out: stdout}
	backend, err := newBackend(cfg, logger)
	if err != nil {
		return nil, err
	}
	snapshots, err := a.openSnapshots(ctx)
	if err != nil {
		a.close()
		return nil, err
	}

	field := cfg.Field
	if field == "" {
		field = cfg.Type
	}
	a.cache, err = normcache.NewCache(
		normcache.WithListFields(cfg.ListFields...),
		normcache.WithLogger(logger),
	)
	if err != nil {
		a.close()
		return nil, err
	}
	a.coord = normcache.NewCoordinator(a.cache, backend, cfg.Type, normcache.WithField(field))
	a.seeder = normcache.NewSeeder(backend, snapshots,
		normcache.WithSeedType(cfg.Type),
		normcache.WithSeedField(field),
		normcache.WithRevalidate(cfg.Snapshots.Revalidate),
		normcache.WithSeedObserver(a.cache.Observer()),
	)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
	if a.cache != nil {
		_ = a.cache.Close()
	}
}

// load seeds the cache from the snapshot store, or from the backend when refresh is set.
func (a *app) load(ctx context.Context, refresh bool) error {
	if refresh {
		return a.coord.Refresh(ctx)
	}
	return a.seeder.Seed(ctx, a.cache)
}

func (a *app) renderList() error {
	return render.Entities(a.out, a.cache.List(a.coord.Field()), a.columns(), a.format)
}

func (a *app) columns() []string {
	var cols []string
	for _, c := range a.cfg.Hasura.Columns {
		if c != "id" {
			cols = append(cols, c)
		}
	}
	return cols
}

func (a *app) openSnapshots(ctx context.Context) (snapstore.Store, error) {
	sc := a.cfg.Snapshots
	key, err := sc.Key()
	if err != nil {
		return nil, err
	}
	scfg := snapstore.Config{
		Driver:         sc.Driver,
		DefaultTTL:     sc.Revalidate,
		Prefix:         sc.Prefix,
		FileDir:        sc.Dir,
		SQLDriverName:  sc.SQLDriver,
		SQLDSN:         sc.SQLDSN,
		SQLTable:       sc.SQLTable,
		DynamoEndpoint: sc.DynamoEndpoint,
		DynamoRegion:   sc.DynamoRegion,
		DynamoTable:    sc.DynamoTable,
		Compression:    sc.Compression,
		MaxValueBytes:  sc.MaxValueBytes,
		EncryptionKey:  key,
	}

	switch sc.Driver {
	case snapstore.DriverRedis:
		client := redis.NewClient(&redis.Options{Addr: sc.RedisAddr})
		a.closers = append(a.closers, func() { _ = client.Close() })
		scfg.RedisClient = client
	case snapstore.DriverNATS:
		kv, closeNATS, err := openKeyValue(sc.NATSURL, sc.NATSBucket)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, closeNATS)
		scfg.NATSKeyValue = kv
	}

	store := snapstore.New(ctx, scfg)
	if err := snapstore.Err(store); err != nil {
		return nil, fmt.Errorf("open %s snapshot store: %w", sc.Driver, err)
	}
	a.closers = append(a.closers, func() { _ = snapstore.Close(store) })
	return store, nil
}

func openKeyValue(url, bucket string) (nats.KeyValue, func(), error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{Bucket: bucket, History: 1})
	}
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("open bucket %s: %w", bucket, err)
	}
	return kv, nc.Close, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
