package snapstore_test

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
)

// stubRedis is an in-memory RedisClient.
type stubRedis struct {
	mu    sync.Mutex
	store map[string]string
	ttl   map[string]time.Time

	getErr error
}

func newStubRedis() *stubRedis {
	return &stubRedis{store: map[string]string{}, ttl: map[string]time.Time{}}
}

func (c *stubRedis) expireIfNeeded(key string) {
	if deadline, ok := c.ttl[key]; ok && time.Now().After(deadline) {
		delete(c.ttl, key)
		delete(c.store, key)
	}
}

func (c *stubRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	if c.getErr != nil {
		cmd.SetErr(c.getErr)
		return cmd
	}
	c.expireIfNeeded(key)
	if val, ok := c.store[key]; ok {
		cmd.SetVal(val)
		return cmd
	}
	cmd.SetErr(redis.Nil)
	return cmd
}

func (c *stubRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := redis.NewStatusCmd(ctx)
	body, _ := value.([]byte)
	c.store[key] = string(body)
	if expiration > 0 {
		c.ttl[key] = time.Now().Add(expiration)
	} else {
		delete(c.ttl, key)
	}
	cmd.SetVal("OK")
	return cmd
}

func (c *stubRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := redis.NewIntCmd(ctx)
	var removed int64
	for _, key := range keys {
		if _, ok := c.store[key]; ok {
			delete(c.store, key)
			delete(c.ttl, key)
			removed++
		}
	}
	cmd.SetVal(removed)
	return cmd
}

func (c *stubRedis) Scan(ctx context.Context, _ uint64, match string, _ int64) *redis.ScanCmd {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := redis.NewScanCmd(ctx, nil)
	prefix := strings.TrimSuffix(match, "*")
	var keys []string
	for key := range c.store {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	cmd.SetVal(keys, 0)
	return cmd
}

// stubKV is an in-memory NATSKeyValue.
type stubKV struct {
	mu      sync.Mutex
	rev     uint64
	entries map[string]*stubKVEntry
}

func newStubKV() *stubKV {
	return &stubKV{entries: map[string]*stubKVEntry{}}
}

func (s *stubKV) Get(key string) (nats.KeyValueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, nats.ErrKeyNotFound
	}
	if entry.op != nats.KeyValuePut {
		return nil, nats.ErrKeyDeleted
	}
	cp := *entry
	cp.value = bytes.Clone(entry.value)
	return &cp, nil
}

func (s *stubKV) Put(key string, value []byte) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rev++
	s.entries[key] = &stubKVEntry{key: key, value: bytes.Clone(value), revision: s.rev, op: nats.KeyValuePut}
	return s.rev, nil
}

func (s *stubKV) Delete(key string, _ ...nats.DeleteOpt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rev++
	s.entries[key] = &stubKVEntry{key: key, revision: s.rev, op: nats.KeyValueDelete}
	return nil
}

func (s *stubKV) Purge(key string, _ ...nats.DeleteOpt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *stubKV) ListKeys(_ ...nats.WatchOpt) (nats.KeyLister, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return nil, nats.ErrNoKeysFound
	}
	keys := make(chan string, len(s.entries))
	for key := range s.entries {
		keys <- key
	}
	close(keys)
	errs := make(chan error)
	close(errs)
	return &stubKeyLister{keys: keys, errs: errs}, nil
}

func (s *stubKV) raw(key string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, entry := range s.entries {
		if strings.HasSuffix(k, key) {
			return entry.value
		}
	}
	return nil
}

type stubKVEntry struct {
	key      string
	value    []byte
	revision uint64
	op       nats.KeyValueOp
}

func (e *stubKVEntry) Bucket() string             { return "snapshots" }
func (e *stubKVEntry) Key() string                { return e.key }
func (e *stubKVEntry) Value() []byte              { return e.value }
func (e *stubKVEntry) Revision() uint64           { return e.revision }
func (e *stubKVEntry) Created() time.Time         { return time.Time{} }
func (e *stubKVEntry) Delta() uint64              { return 0 }
func (e *stubKVEntry) Operation() nats.KeyValueOp { return e.op }

type stubKeyLister struct {
	keys chan string
	errs chan error
}

func (l *stubKeyLister) Keys() <-chan string { return l.keys }
func (l *stubKeyLister) Error() <-chan error { return l.errs }
func (l *stubKeyLister) Stop() error         { return nil }

// stubDynamo is an in-memory DynamoAPI. The table starts missing so construction
// exercises table creation.
type stubDynamo struct {
	mu      sync.Mutex
	items   map[string]map[string]types.AttributeValue
	created bool
	batches int
}

func newStubDynamo() *stubDynamo {
	return &stubDynamo{items: map[string]map[string]types.AttributeValue{}}
}

func (d *stubDynamo) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	item, ok := d.items[in.Key["k"].(*types.AttributeValueMemberS).Value]
	if !ok {
		return &dynamodb.GetItemOutput{}, nil
	}
	return &dynamodb.GetItemOutput{Item: item}, nil
}

func (d *stubDynamo) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.items[in.Item["k"].(*types.AttributeValueMemberS).Value] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (d *stubDynamo) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.items, in.Key["k"].(*types.AttributeValueMemberS).Value)
	return &dynamodb.DeleteItemOutput{}, nil
}

func (d *stubDynamo) BatchWriteItem(_ context.Context, in *dynamodb.BatchWriteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.batches++
	for _, writes := range in.RequestItems {
		for _, wr := range writes {
			if wr.DeleteRequest != nil {
				delete(d.items, wr.DeleteRequest.Key["k"].(*types.AttributeValueMemberS).Value)
			}
		}
	}
	return &dynamodb.BatchWriteItemOutput{}, nil
}

func (d *stubDynamo) Scan(_ context.Context, _ *dynamodb.ScanInput, _ ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var items []map[string]types.AttributeValue
	for k := range d.items {
		items = append(items, map[string]types.AttributeValue{"k": &types.AttributeValueMemberS{Value: k}})
	}
	return &dynamodb.ScanOutput{Items: items}, nil
}

func (d *stubDynamo) CreateTable(_ context.Context, _ *dynamodb.CreateTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.created = true
	return &dynamodb.CreateTableOutput{}, nil
}

func (d *stubDynamo) DescribeTable(_ context.Context, _ *dynamodb.DescribeTableInput, _ ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.created {
		return nil, &types.ResourceNotFoundException{}
	}
	return &dynamodb.DescribeTableOutput{}, nil
}
