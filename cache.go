package normcache

import (
	"context"
	"iter"
	"slices"
	"sync"
	"time"
)

// Cache owns one Store and one Index and applies Policy steps to them atomically.
// It is created explicitly, passed by reference to whoever reads or mutates it, and
// torn down with Close; there is no package-level instance.
type Cache struct {
	mu       sync.RWMutex
	store    *Store
	index    *Index
	policy   *Policy
	observer Observer
	version  uint64
	closed   bool

	subMu   sync.Mutex
	subs    map[uint64]func(ChangeEvent)
	nextSub uint64
}

// NewCache creates an empty cache.
//
// Example: create, delete, list
//
//	ctx := context.Background()
//	c, _ := normcache.NewCache()
//	_, _ = c.Created(ctx, normcache.Entity{TypeTag: "users", ID: "1", Attributes: map[string]any{"name": "Alice"}})
//	_ = c.Deleted(ctx, "users:1")
//	fmt.Println(len(c.Keys("users"))) // 0
func NewCache(opts ...Option) (*Cache, error) {
	var cfg Config
	for _, opt := range opts {
		cfg = opt(cfg)
	}
	return NewCacheWithConfig(cfg)
}

// NewCacheWithConfig creates an empty cache from cfg.
func NewCacheWithConfig(cfg Config) (*Cache, error) {
	cfg = cfg.withDefaults()
	router, err := NewRouter(cfg.ListFields...)
	if err != nil {
		return nil, err
	}
	return &Cache{
		store:    NewStore(),
		index:    NewIndex(),
		policy:   NewPolicy(router),
		observer: cfg.Observer,
		subs:     make(map[uint64]func(ChangeEvent)),
	}, nil
}

// Observer returns the observer the cache reports to, or nil.
func (c *Cache) Observer() Observer {
	return c.observer
}

// Created applies a create result: the entity is stored and prepended to its list
// fields. A repeated create merges and does not add a second list entry.
func (c *Cache) Created(ctx context.Context, result Entity) (Identity, error) {
	start := time.Now()
	key, event, err := c.apply(OpCreated, func() (Identity, bool, error) {
		return c.policy.OnCreated(c.store, c.index, result)
	})
	observe(c.observer, ctx, OpCreated, key, event != nil, err, start)
	c.notify(event)
	return key, err
}

// Updated merges an update result into the stored entity. List fields are untouched.
func (c *Cache) Updated(ctx context.Context, result Entity) (Identity, error) {
	start := time.Now()
	key, event, err := c.apply(OpUpdated, func() (Identity, bool, error) {
		return c.policy.OnUpdated(c.store, result)
	})
	observe(c.observer, ctx, OpUpdated, key, event != nil, err, start)
	c.notify(event)
	return key, err
}

// Deleted removes key from every list field and from the store. Unknown identities
// are a no-op.
func (c *Cache) Deleted(ctx context.Context, key Identity) error {
	start := time.Now()
	_, event, err := c.apply(OpDeleted, func() (Identity, bool, error) {
		return key, c.policy.OnDeleted(c.store, c.index, key), nil
	})
	observe(c.observer, ctx, OpDeleted, key, event != nil, err, start)
	c.notify(event)
	return err
}

// Seed replaces field with entities in the given order, storing or merging each one.
// Either every entity is applied or none is.
func (c *Cache) Seed(ctx context.Context, field string, entities []Entity) error {
	start := time.Now()
	_, event, err := c.apply(OpSeeded, func() (Identity, bool, error) {
		keys := make([]Identity, 0, len(entities))
		for _, e := range entities {
			key, err := e.Identity()
			if err != nil {
				return "", false, &ReconciliationError{Op: OpSeeded, Entity: e, Err: err}
			}
			keys = append(keys, key)
		}
		changed := false
		for _, e := range entities {
			if _, putChanged, _ := c.store.put(e); putChanged {
				changed = true
			}
		}
		if c.index.Replace(field, keys) {
			changed = true
		}
		return "", changed, nil
	})
	observe(c.observer, ctx, OpSeeded, "", event != nil, err, start)
	c.notify(event)
	return err
}

// Entity returns the stored entity for key.
func (c *Cache) Entity(key Identity) (Entity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store.Get(key)
}

// Keys returns the identities currently in field.
func (c *Cache) Keys(field string) []Identity {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.Keys(field)
}

// Fields returns the known list field names.
func (c *Cache) Fields() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index.Fields()
}

// List resolves field into entities. Each iteration reads a consistent view taken
// when the iteration starts, so the sequence can be ranged over repeatedly.
func (c *Cache) List(field string) iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		c.mu.RLock()
		var rows []Entity
		for e := range c.index.ToOrderedList(field, c.store) {
			rows = append(rows, e)
		}
		c.mu.RUnlock()
		for _, e := range rows {
			if !yield(e) {
				return
			}
		}
	}
}

// Snapshot copies the current entities and list fields.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

// Subscribe registers fn for change events. Events are delivered synchronously, in
// order, after the step that produced them has fully applied. A step notifies the
// subscribers registered at the moment it applied; fn sees steps applied after
// Subscribe returns.
func (c *Cache) Subscribe(fn func(ChangeEvent)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()
	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// Close drops all state and subscribers. Later steps fail with ErrClosed.
func (c *Cache) Close() error {
	c.mu.Lock()
	c.closed = true
	c.store.Flush()
	c.index = NewIndex()
	c.mu.Unlock()

	c.subMu.Lock()
	c.subs = make(map[uint64]func(ChangeEvent))
	c.subMu.Unlock()
	return nil
}

// pendingEvent is a change event together with the subscribers registered when the
// step applied. Only they receive it, and they always receive a full snapshot.
type pendingEvent struct {
	event ChangeEvent
	subs  []func(ChangeEvent)
}

func (c *Cache) apply(op Op, step func() (Identity, bool, error)) (Identity, *pendingEvent, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return "", nil, ErrClosed
	}
	key, changed, err := step()
	if err != nil || !changed {
		return key, nil, err
	}
	c.version++
	pending := &pendingEvent{
		event: ChangeEvent{Op: op, Identity: key},
		subs:  c.subscribers(),
	}
	if len(pending.subs) > 0 {
		pending.event.Snapshot = c.snapshotLocked()
	} else {
		pending.event.Snapshot.Version = c.version
	}
	return key, pending, nil
}

func (c *Cache) notify(pending *pendingEvent) {
	if pending == nil {
		return
	}
	for _, fn := range pending.subs {
		fn(pending.event)
	}
}

// subscribers returns the registered callbacks in subscription order.
func (c *Cache) subscribers() []func(ChangeEvent) {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	ids := make([]uint64, 0, len(c.subs))
	for id := range c.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	subs := make([]func(ChangeEvent), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, c.subs[id])
	}
	return subs
}

func (c *Cache) snapshotLocked() Snapshot {
	return Snapshot{
		Version:  c.version,
		Entities: c.store.entities(),
		Lists:    c.index.clone(),
	}
}
