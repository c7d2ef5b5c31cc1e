package normcache

import (
	"context"
	"time"
)

// Backend is the authoritative query/mutation service.
// Create and update return the full entity, including generated fields.
type Backend interface {
	ListEntities(ctx context.Context, typeTag string) ([]Entity, error)
	CreateEntity(ctx context.Context, typeTag string, fields map[string]any) (Entity, error)
	UpdateEntity(ctx context.Context, typeTag, id string, fields map[string]any) (Entity, error)
	DeleteEntity(ctx context.Context, typeTag, id string) (string, error)
}

// Coordinator issues mutations for one entity type and reconciles the cache with
// their results. Each call makes exactly one backend request and never retries:
// creates are not idempotent on the wire, so a visible error beats a silent duplicate.
type Coordinator struct {
	cache    *Cache
	backend  Backend
	typeTag  string
	field    string
	observer Observer
}

// CoordinatorOption mutates a Coordinator at construction.
type CoordinatorOption func(*Coordinator)

// WithField sets the list field Refresh seeds. Defaults to the type tag.
func WithField(field string) CoordinatorOption {
	return func(c *Coordinator) {
		if field != "" {
			c.field = field
		}
	}
}

// NewCoordinator binds cache and backend for entities of typeTag.
func NewCoordinator(cache *Cache, backend Backend, typeTag string, opts ...CoordinatorOption) *Coordinator {
	if typeTag == "" {
		typeTag = defaultTypeTag
	}
	c := &Coordinator{
		cache:    cache,
		backend:  backend,
		typeTag:  typeTag,
		field:    typeTag,
		observer: cache.Observer(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TypeTag returns the entity type this coordinator mutates.
func (c *Coordinator) TypeTag() string { return c.typeTag }

// Field returns the list field Refresh seeds.
func (c *Coordinator) Field() string { return c.field }

// Submit creates an entity when draft has no ID and updates it otherwise.
// On success the cache is reconciled and the authoritative entity returned. On failure
// the cache is untouched and the error is a *FailureError or *ReconciliationError;
// keeping or clearing the draft is up to the caller.
func (c *Coordinator) Submit(ctx context.Context, draft Draft) (Entity, error) {
	if draft.IsCreate() {
		return c.create(ctx, draft)
	}
	return c.update(ctx, draft)
}

func (c *Coordinator) create(ctx context.Context, draft Draft) (Entity, error) {
	start := time.Now()
	result, err := c.backend.CreateEntity(ctx, c.typeTag, draft.Fields())
	if err != nil {
		failure := classifyFailure(OpSubmitCreate, err)
		observe(c.observer, ctx, OpSubmitCreate, "", false, failure, start)
		return Entity{}, failure
	}
	if result.TypeTag == "" {
		result.TypeTag = c.typeTag
	}
	key, err := c.cache.Created(ctx, result)
	observe(c.observer, ctx, OpSubmitCreate, key, err == nil, err, start)
	if err != nil {
		return Entity{}, err
	}
	return c.resolve(key, result), nil
}

func (c *Coordinator) update(ctx context.Context, draft Draft) (Entity, error) {
	start := time.Now()
	requested, _ := Identify(c.typeTag, draft.ID)
	result, err := c.backend.UpdateEntity(ctx, c.typeTag, draft.ID, draft.Fields())
	if err != nil {
		failure := classifyFailure(OpSubmitUpdate, err)
		observe(c.observer, ctx, OpSubmitUpdate, requested, false, failure, start)
		return Entity{}, failure
	}
	if result.TypeTag == "" {
		result.TypeTag = c.typeTag
	}
	key, err := c.cache.Updated(ctx, result)
	observe(c.observer, ctx, OpSubmitUpdate, key, err == nil, err, start)
	if err != nil {
		return Entity{}, err
	}
	return c.resolve(key, result), nil
}

// Remove deletes the entity behind key on the backend and then from the cache.
// Removing an identity the cache does not hold still reaches the backend; the local
// step is then a no-op.
func (c *Coordinator) Remove(ctx context.Context, key Identity) error {
	start := time.Now()
	typeTag, id, ok := key.Split()
	if !ok {
		err := &ReconciliationError{Op: OpDeleted, Err: ErrUnidentifiable}
		observe(c.observer, ctx, OpRemove, key, false, err, start)
		return err
	}
	if typeTag != c.typeTag {
		err := &ReconciliationError{Op: OpDeleted, Entity: Entity{TypeTag: typeTag, ID: id}, Err: ErrForeignType}
		observe(c.observer, ctx, OpRemove, key, false, err, start)
		return err
	}
	deletedID, err := c.backend.DeleteEntity(ctx, typeTag, id)
	if err != nil {
		failure := classifyFailure(OpRemove, err)
		observe(c.observer, ctx, OpRemove, key, false, failure, start)
		return failure
	}
	if deletedID != "" && deletedID != id {
		if other, identErr := Identify(typeTag, deletedID); identErr == nil {
			key = other
		}
	}
	err = c.cache.Deleted(ctx, key)
	observe(c.observer, ctx, OpRemove, key, err == nil, err, start)
	return err
}

// Refresh refetches the list from the backend and reseeds the list field in the
// backend's order. Entities missing from the result stay in the store but leave the
// field.
func (c *Coordinator) Refresh(ctx context.Context) error {
	start := time.Now()
	entities, err := c.backend.ListEntities(ctx, c.typeTag)
	if err != nil {
		failure := classifyFailure(OpRefresh, err)
		observe(c.observer, ctx, OpRefresh, "", false, failure, start)
		return failure
	}
	for i := range entities {
		if entities[i].TypeTag == "" {
			entities[i].TypeTag = c.typeTag
		}
	}
	err = c.cache.Seed(ctx, c.field, entities)
	observe(c.observer, ctx, OpRefresh, "", err == nil, err, start)
	return err
}

// resolve returns the merged entity the cache now holds, falling back to result.
func (c *Coordinator) resolve(key Identity, result Entity) Entity {
	if e, ok := c.cache.Entity(key); ok {
		return e
	}
	return result.Clone()
}
