package snapstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

const natsEnvelopeMarker = "snap-v1"

var errNATSUnavailable = errors.New("snapstore: nats key-value unavailable")

// NATSKeyValue captures the subset of nats.KeyValue used by the store.
type NATSKeyValue interface {
	Get(key string) (nats.KeyValueEntry, error)
	Put(key string, value []byte) (uint64, error)
	Delete(key string, opts ...nats.DeleteOpt) error
	Purge(key string, opts ...nats.DeleteOpt) error
	ListKeys(opts ...nats.WatchOpt) (nats.KeyLister, error)
}

type natsStore struct {
	kv         NATSKeyValue
	defaultTTL time.Duration
	prefix     string
	bucketTTL  bool
}

// natsEnvelope carries the expiry alongside the value when the bucket has no TTL of its own.
type natsEnvelope struct {
	Marker    string `json:"m"`
	Value     []byte `json:"v"`
	ExpiresAt int64  `json:"ea"`
}

func newNATSStore(kv NATSKeyValue, defaultTTL time.Duration, prefix string, bucketTTL bool) Store {
	if defaultTTL <= 0 {
		defaultTTL = defaultSnapshotTTL
	}
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &natsStore{
		kv:         kv,
		defaultTTL: defaultTTL,
		prefix:     prefix,
		bucketTTL:  bucketTTL,
	}
}

func (s *natsStore) Driver() Driver {
	return DriverNATS
}

func (s *natsStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if s.kv == nil {
		return nil, false, errNATSUnavailable
	}
	subject := s.subject(key)
	entry, err := s.kv.Get(subject)
	if isNATSMiss(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if op := entry.Operation(); op == nats.KeyValueDelete || op == nats.KeyValuePurge {
		return nil, false, nil
	}
	if s.bucketTTL {
		return cloneBytes(entry.Value()), true, nil
	}

	var env natsEnvelope
	if err := json.Unmarshal(entry.Value(), &env); err != nil || env.Marker != natsEnvelopeMarker {
		return nil, false, fmt.Errorf("snapstore: decode nats envelope for %q", key)
	}
	if time.Now().UnixMilli() > env.ExpiresAt {
		_ = s.kv.Purge(subject)
		return nil, false, nil
	}
	return cloneBytes(env.Value), true, nil
}

func (s *natsStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if s.kv == nil {
		return errNATSUnavailable
	}
	body := cloneBytes(value)
	if !s.bucketTTL {
		if ttl <= 0 {
			ttl = s.defaultTTL
		}
		var err error
		body, err = json.Marshal(natsEnvelope{
			Marker:    natsEnvelopeMarker,
			Value:     value,
			ExpiresAt: time.Now().Add(ttl).UnixMilli(),
		})
		if err != nil {
			return fmt.Errorf("marshal nats envelope: %w", err)
		}
	}
	_, err := s.kv.Put(s.subject(key), body)
	return err
}

func (s *natsStore) Delete(_ context.Context, key string) error {
	if s.kv == nil {
		return errNATSUnavailable
	}
	if err := s.kv.Delete(s.subject(key)); err != nil && !isNATSMiss(err) {
		return err
	}
	return nil
}

// Flush purges every key under the store prefix.
func (s *natsStore) Flush(_ context.Context) error {
	if s.kv == nil {
		return errNATSUnavailable
	}
	lister, err := s.kv.ListKeys(nats.IgnoreDeletes())
	if err != nil {
		if errors.Is(err, nats.ErrNoKeysFound) {
			return nil
		}
		return err
	}
	defer func() { _ = lister.Stop() }()

	scope := s.scope()
	for key := range lister.Keys() {
		if !strings.HasPrefix(key, scope) {
			continue
		}
		if err := s.kv.Purge(key); err != nil && !isNATSMiss(err) {
			return err
		}
	}
	return nil
}

// subject maps key onto a NATS-safe name; base64 keeps ':' and spaces out of subjects.
func (s *natsStore) subject(key string) string {
	return s.scope() + encodeNATSKeyPart(key)
}

func (s *natsStore) scope() string {
	return "p." + encodeNATSKeyPart(s.prefix) + ".k."
}

func isNATSMiss(err error) bool {
	return errors.Is(err, nats.ErrKeyNotFound) || errors.Is(err, nats.ErrKeyDeleted)
}

func encodeNATSKeyPart(part string) string {
	if part == "" {
		return "_"
	}
	return base64.RawURLEncoding.EncodeToString([]byte(part))
}
