package normcache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/goforj/normcache/snapstore"
)

// seedRecord is the stored form of one list fetch.
type seedRecord struct {
	TypeTag     string    `json:"type"`
	Field       string    `json:"field"`
	GeneratedAt time.Time `json:"generated_at"`
	Entities    []Entity  `json:"entities"`
}

// Seeder produces the initial list for a type ahead of any interactive session. The
// backend is queried at most once per revalidate window; in between, loads are served
// from the snapshot store.
type Seeder struct {
	backend    Backend
	snapshots  snapstore.Store
	typeTag    string
	field      string
	prefix     string
	revalidate time.Duration
	observer   Observer
	group      singleflight.Group
	now        func() time.Time
}

// SeederOption mutates a Seeder at construction.
type SeederOption func(*Seeder)

// WithSeedType sets the entity type to list. Defaults to "users".
func WithSeedType(typeTag string) SeederOption {
	return func(s *Seeder) {
		if typeTag != "" {
			s.typeTag = typeTag
		}
	}
}

// WithSeedField sets the list field Seed fills. Defaults to the type tag.
func WithSeedField(field string) SeederOption {
	return func(s *Seeder) {
		s.field = field
	}
}

// WithRevalidate sets how long a fetched list is served before the next load refetches.
func WithRevalidate(d time.Duration) SeederOption {
	return func(s *Seeder) {
		if d > 0 {
			s.revalidate = d
		}
	}
}

// WithSeedObserver reports loads to o.
func WithSeedObserver(o Observer) SeederOption {
	return func(s *Seeder) {
		s.observer = o
	}
}

// NewSeeder returns a seeder reading through snapshots. A nil store means every load
// goes to the backend.
func NewSeeder(backend Backend, snapshots snapstore.Store, opts ...SeederOption) *Seeder {
	s := &Seeder{
		backend:    backend,
		snapshots:  snapshots,
		typeTag:    defaultTypeTag,
		prefix:     defaultSeedPrefix,
		revalidate: defaultRevalidate,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.field == "" {
		s.field = s.typeTag
	}
	if s.snapshots == nil {
		s.snapshots = snapstore.NewWith(context.Background(), snapstore.DriverNull)
	}
	return s
}

// Field returns the list field Seed fills.
func (s *Seeder) Field() string { return s.field }

// Load returns the list for the seeder's type, newest first as the backend orders it.
// Concurrent misses share one backend call.
func (s *Seeder) Load(ctx context.Context) ([]Entity, error) {
	start := time.Now()
	rec, err := s.load(ctx, false)
	observe(s.observer, ctx, OpLoadSeed, "", err == nil, err, start)
	if err != nil {
		return nil, err
	}
	return rec.Entities, nil
}

// Regenerate refetches from the backend regardless of the stored snapshot.
func (s *Seeder) Regenerate(ctx context.Context) ([]Entity, error) {
	start := time.Now()
	rec, err := s.load(ctx, true)
	observe(s.observer, ctx, OpLoadSeed, "", err == nil, err, start)
	if err != nil {
		return nil, err
	}
	return rec.Entities, nil
}

// Seed loads the list and seeds it into c.
func (s *Seeder) Seed(ctx context.Context, c *Cache) error {
	entities, err := s.Load(ctx)
	if err != nil {
		return err
	}
	return c.Seed(ctx, s.field, entities)
}

func (s *Seeder) key() string {
	return s.prefix + ":" + s.typeTag + ":" + s.field
}

func (s *Seeder) load(ctx context.Context, force bool) (seedRecord, error) {
	key := s.key()
	if !force {
		rec, ok, err := s.read(ctx, key)
		if err != nil {
			return seedRecord{}, err
		}
		if ok {
			return rec, nil
		}
	}

	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.fetch(ctx, key)
	})
	if err != nil {
		return seedRecord{}, err
	}
	rec := v.(seedRecord)
	// Callers sharing a flight must not alias each other's entities.
	out := rec
	out.Entities = make([]Entity, len(rec.Entities))
	for i, e := range rec.Entities {
		out.Entities[i] = e.Clone()
	}
	return out, nil
}

func (s *Seeder) read(ctx context.Context, key string) (seedRecord, bool, error) {
	body, ok, err := s.snapshots.Get(ctx, key)
	if err != nil {
		return seedRecord{}, false, fmt.Errorf("read seed snapshot: %w", err)
	}
	if !ok {
		return seedRecord{}, false, nil
	}
	var rec seedRecord
	if err := json.Unmarshal(body, &rec); err != nil {
		// A snapshot written by an incompatible version is treated as a miss.
		_ = s.snapshots.Delete(ctx, key)
		return seedRecord{}, false, nil
	}
	return rec, true, nil
}

func (s *Seeder) fetch(ctx context.Context, key string) (seedRecord, error) {
	entities, err := s.backend.ListEntities(ctx, s.typeTag)
	if err != nil {
		return seedRecord{}, classifyFailure(OpLoadSeed, err)
	}
	for i := range entities {
		if entities[i].TypeTag == "" {
			entities[i].TypeTag = s.typeTag
		}
		if _, err := entities[i].Identity(); err != nil {
			return seedRecord{}, &ReconciliationError{Op: OpLoadSeed, Entity: entities[i], Err: err}
		}
	}
	rec := seedRecord{
		TypeTag:     s.typeTag,
		Field:       s.field,
		GeneratedAt: s.now().UTC(),
		Entities:    entities,
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return seedRecord{}, fmt.Errorf("encode seed snapshot: %w", err)
	}
	if err := s.snapshots.Set(ctx, key, body, s.revalidate); err != nil {
		return seedRecord{}, fmt.Errorf("write seed snapshot: %w", err)
	}
	return rec, nil
}
