package snapstore_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goforj/normcache/snapstore"
	"github.com/goforj/normcache/snapstore/snapstoretest"
)

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	key := bytes.Repeat([]byte{7}, 32)

	cases := []struct {
		name  string
		store func(t *testing.T) snapstore.Store
		opts  snapstoretest.Options
	}{
		{
			name: "memory",
			store: func(t *testing.T) snapstore.Store {
				return snapstore.NewMemory(ctx)
			},
		},
		{
			name: "null",
			store: func(t *testing.T) snapstore.Store {
				return snapstore.NewWith(ctx, snapstore.DriverNull)
			},
			opts: snapstoretest.Options{NullSemantics: true},
		},
		{
			name: "file",
			store: func(t *testing.T) snapstore.Store {
				return snapstore.NewFile(ctx, t.TempDir())
			},
		},
		{
			name: "sqlite",
			store: func(t *testing.T) snapstore.Store {
				dsn := "file:" + filepath.Join(t.TempDir(), "snapshots.db")
				store := snapstore.NewWith(ctx, snapstore.DriverSQL, snapstore.WithSQL("sqlite", dsn, ""))
				t.Cleanup(func() { _ = snapstore.Close(store) })
				return store
			},
		},
		{
			name: "redis",
			store: func(t *testing.T) snapstore.Store {
				return snapstore.NewRedis(ctx, newStubRedis(), snapstore.WithPrefix("contract"))
			},
		},
		{
			name: "nats",
			store: func(t *testing.T) snapstore.Store {
				return snapstore.NewWith(ctx, snapstore.DriverNATS, snapstore.WithNATSKeyValue(newStubKV(), false))
			},
		},
		{
			name: "dynamodb",
			store: func(t *testing.T) snapstore.Store {
				return snapstore.NewWith(ctx, snapstore.DriverDynamo, snapstore.WithDynamoClient(newStubDynamo()))
			},
		},
		{
			name: "memory gzip",
			store: func(t *testing.T) snapstore.Store {
				return snapstore.NewMemory(ctx, snapstore.WithCompression(snapstore.CompressionGzip))
			},
		},
		{
			name: "file encrypted gzip",
			store: func(t *testing.T) snapstore.Store {
				return snapstore.NewFile(ctx, t.TempDir(),
					snapstore.WithEncryptionKey(key),
					snapstore.WithCompression(snapstore.CompressionGzip),
				)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := tc.store(t)
			if err := snapstore.Err(store); err != nil {
				t.Fatalf("construct store: %v", err)
			}
			snapstoretest.RunStoreContract(t, store, tc.opts)
		})
	}
}

func TestNewUnknownDriverReturnsErrorStore(t *testing.T) {
	ctx := context.Background()
	store := snapstore.NewWith(ctx, snapstore.Driver("bogus"))
	if snapstore.Err(store) == nil {
		t.Fatalf("expected construction error")
	}
	if store.Driver() != "bogus" {
		t.Fatalf("expected driver identity kept, got %q", store.Driver())
	}
	if _, _, err := store.Get(ctx, "k"); err == nil {
		t.Fatalf("expected get to report construction error")
	}
	if err := store.Set(ctx, "k", []byte("v"), 0); err == nil {
		t.Fatalf("expected set to report construction error")
	}
	if err := store.Delete(ctx, "k"); err == nil {
		t.Fatalf("expected delete to report construction error")
	}
	if err := store.Flush(ctx); err == nil {
		t.Fatalf("expected flush to report construction error")
	}
}

func TestNewRejectsBadEncryptionKey(t *testing.T) {
	store := snapstore.NewMemory(context.Background(), snapstore.WithEncryptionKey([]byte("short")))
	if !errors.Is(snapstore.Err(store), snapstore.ErrEncryptionKey) {
		t.Fatalf("expected ErrEncryptionKey, got %v", snapstore.Err(store))
	}
}

func TestSQLStoreRejectsBadConfig(t *testing.T) {
	ctx := context.Background()
	cases := map[string]snapstore.Option{
		"missing dsn":    snapstore.WithSQL("sqlite", "", ""),
		"unknown driver": snapstore.WithSQL("oracle", "dsn", ""),
		"bad table":      snapstore.WithSQL("sqlite", "file::memory:", "snap; DROP TABLE x"),
	}
	for name, opt := range cases {
		if snapstore.Err(snapstore.NewWith(ctx, snapstore.DriverSQL, opt)) == nil {
			t.Fatalf("%s: expected construction error", name)
		}
	}
}

func TestRedisStoreNilClientErrors(t *testing.T) {
	ctx := context.Background()
	store := snapstore.NewRedis(ctx, nil)
	if _, _, err := store.Get(ctx, "k"); err == nil {
		t.Fatalf("expected get error when redis client is nil")
	}
	if err := store.Set(ctx, "k", []byte("v"), 0); err == nil {
		t.Fatalf("expected set error when redis client is nil")
	}
	if err := store.Flush(ctx); err == nil {
		t.Fatalf("expected flush error when redis client is nil")
	}
}

func TestRedisStorePrefixesKeysAndSurfacesErrors(t *testing.T) {
	ctx := context.Background()
	client := newStubRedis()
	store := snapstore.NewRedis(ctx, client, snapstore.WithPrefix("pfx"))

	if err := store.Set(ctx, "seed:users", []byte("x"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, ok := client.store["pfx:seed:users"]; !ok {
		t.Fatalf("expected prefixed key, got %v", client.store)
	}

	client.getErr = errors.New("boom")
	if _, _, err := store.Get(ctx, "seed:users"); err == nil {
		t.Fatalf("expected get error to surface")
	}
}

func TestRedisStoreFlushLeavesOtherPrefixes(t *testing.T) {
	ctx := context.Background()
	client := newStubRedis()
	a := snapstore.NewRedis(ctx, client, snapstore.WithPrefix("a"))
	b := snapstore.NewRedis(ctx, client, snapstore.WithPrefix("b"))

	_ = a.Set(ctx, "k", []byte("1"), time.Minute)
	_ = b.Set(ctx, "k", []byte("2"), time.Minute)
	if err := a.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if _, ok, _ := a.Get(ctx, "k"); ok {
		t.Fatalf("expected a flushed")
	}
	if body, ok, _ := b.Get(ctx, "k"); !ok || string(body) != "2" {
		t.Fatalf("expected b untouched, got ok=%v body=%q", ok, body)
	}
}

func TestNATSStoreNilKeyValueErrors(t *testing.T) {
	ctx := context.Background()
	store := snapstore.NewWith(ctx, snapstore.DriverNATS)
	if _, _, err := store.Get(ctx, "k"); err == nil {
		t.Fatalf("expected get error when nats key-value is nil")
	}
	if err := store.Delete(ctx, "k"); err == nil {
		t.Fatalf("expected delete error when nats key-value is nil")
	}
}

func TestNATSStoreBucketTTLStoresRawValue(t *testing.T) {
	ctx := context.Background()
	kv := newStubKV()
	store := snapstore.NewWith(ctx, snapstore.DriverNATS, snapstore.WithNATSKeyValue(kv, true))

	if err := store.Set(ctx, "seed", []byte("raw"), 0); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got := kv.raw(""); string(got) != "raw" {
		t.Fatalf("expected raw value in bucket, got %q", got)
	}
	if body, ok, err := store.Get(ctx, "seed"); err != nil || !ok || string(body) != "raw" {
		t.Fatalf("unexpected get: ok=%v err=%v body=%q", ok, err, body)
	}
}

func TestDynamoStoreCreatesTableAndBatchesFlush(t *testing.T) {
	ctx := context.Background()
	client := newStubDynamo()
	store := snapstore.NewWith(ctx, snapstore.DriverDynamo, snapstore.WithDynamoClient(client))
	if err := snapstore.Err(store); err != nil {
		t.Fatalf("construct: %v", err)
	}
	if !client.created {
		t.Fatalf("expected table to be created")
	}

	for i := 0; i < 30; i++ {
		if err := store.Set(ctx, strings.Repeat("k", i+1), []byte("v"), time.Minute); err != nil {
			t.Fatalf("set %d failed: %v", i, err)
		}
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if client.batches != 2 {
		t.Fatalf("expected 2 batch writes for 30 items, got %d", client.batches)
	}
	if len(client.items) != 0 {
		t.Fatalf("expected table empty, got %d items", len(client.items))
	}
}

func TestFileStoreFlushKeepsForeignFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := snapstore.NewFile(ctx, dir)

	foreign := filepath.Join(dir, "README")
	if err := os.WriteFile(foreign, []byte("keep"), 0o644); err != nil {
		t.Fatalf("write foreign file: %v", err)
	}
	if err := store.Set(ctx, "seed:users", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if err := store.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if _, err := os.Stat(foreign); err != nil {
		t.Fatalf("expected foreign file kept: %v", err)
	}
}

func TestFileStoreCorruptFileIsReported(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store := snapstore.NewFile(ctx, dir)
	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Fatalf("expected one snapshot file, got %d", len(entries))
	}
	if err := os.WriteFile(filepath.Join(dir, entries[0].Name()), []byte("garbage"), 0o644); err != nil {
		t.Fatalf("corrupt file: %v", err)
	}
	if _, _, err := store.Get(ctx, "k"); !errors.Is(err, snapstore.ErrCorruptSnapshotFile) {
		t.Fatalf("expected ErrCorruptSnapshotFile, got %v", err)
	}
	if _, ok, err := store.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expected corrupt file removed, ok=%v err=%v", ok, err)
	}
}

func TestMaxValueBytes(t *testing.T) {
	ctx := context.Background()
	store := snapstore.NewMemory(ctx, snapstore.WithMaxValueBytes(4))
	if err := store.Set(ctx, "k", []byte("12345"), 0); !errors.Is(err, snapstore.ErrValueTooLarge) {
		t.Fatalf("expected ErrValueTooLarge, got %v", err)
	}
	if err := store.Set(ctx, "k", []byte("1234"), 0); err != nil {
		t.Fatalf("expected value at limit accepted: %v", err)
	}
}

func TestEncryptedStoreRejectsPlaintext(t *testing.T) {
	ctx := context.Background()
	client := newStubRedis()
	plain := snapstore.NewRedis(ctx, client)
	sealed := snapstore.NewRedis(ctx, client, snapstore.WithEncryptionKey(bytes.Repeat([]byte{1}, 16)))

	if err := plain.Set(ctx, "k", []byte("plaintext"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if _, _, err := sealed.Get(ctx, "k"); !errors.Is(err, snapstore.ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}

	if err := sealed.Set(ctx, "k", []byte("secret"), time.Minute); err != nil {
		t.Fatalf("sealed set failed: %v", err)
	}
	if raw := client.store["normcache:k"]; strings.Contains(raw, "secret") {
		t.Fatalf("expected ciphertext at rest, got %q", raw)
	}
}

func TestEncryptedStoreRejectsMalformedSealedValues(t *testing.T) {
	ctx := context.Background()
	client := newStubRedis()
	plain := snapstore.NewRedis(ctx, client)
	sealed := snapstore.NewRedis(ctx, client, snapstore.WithEncryptionKey(bytes.Repeat([]byte{1}, 16)))

	cases := map[string][]byte{
		"short nonce":     append([]byte("ENC1\x05"), bytes.Repeat([]byte{9}, 20)...),
		"long nonce":      append([]byte("ENC1\x20"), bytes.Repeat([]byte{9}, 64)...),
		"truncated":       append([]byte("ENC1\x0c"), bytes.Repeat([]byte{9}, 4)...),
		"bad ciphertext":  append([]byte("ENC1\x0c"), bytes.Repeat([]byte{9}, 40)...),
		"header only":     []byte("ENC1\x0c"),
		"empty nonce len": append([]byte("ENC1\x00"), bytes.Repeat([]byte{9}, 20)...),
	}
	for name, body := range cases {
		if err := plain.Set(ctx, "k", body, time.Minute); err != nil {
			t.Fatalf("%s: set failed: %v", name, err)
		}
		if _, ok, err := sealed.Get(ctx, "k"); ok || !errors.Is(err, snapstore.ErrDecryptFailed) {
			t.Fatalf("%s: expected ErrDecryptFailed, got ok=%v err=%v", name, ok, err)
		}
	}
}

func TestCloseReleasesSQLPoolThroughWrappers(t *testing.T) {
	ctx := context.Background()
	dsn := "file:" + filepath.Join(t.TempDir(), "snapshots.db")
	store := snapstore.NewWith(ctx, snapstore.DriverSQL,
		snapstore.WithSQL("sqlite", dsn, ""),
		snapstore.WithCompression(snapstore.CompressionGzip),
		snapstore.WithEncryptionKey(bytes.Repeat([]byte{2}, 16)),
	)
	if err := snapstore.Err(store); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := snapstore.Close(store); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, _, err := store.Get(ctx, "k"); err == nil {
		t.Fatalf("expected get on a closed sql store to fail")
	}

	if err := snapstore.Close(snapstore.NewMemory(ctx)); err != nil {
		t.Fatalf("memory store close: %v", err)
	}
}
