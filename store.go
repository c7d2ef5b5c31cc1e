package normcache

import (
	"maps"
	"reflect"
	"slices"

	gocache "github.com/patrickmn/go-cache"
)

// Store maps identities to the latest known entity state. It is the single source of
// truth for rendering; list fields only reference its entries.
type Store struct {
	items *gocache.Cache
}

// NewStore returns an empty store. Entries never expire by time.
func NewStore() *Store {
	return &Store{items: gocache.New(gocache.NoExpiration, 0)}
}

// Get returns a copy of the entity stored under key.
func (s *Store) Get(key Identity) (Entity, bool) {
	item, ok := s.items.Get(string(key))
	if !ok {
		return Entity{}, false
	}
	entity, ok := item.(Entity)
	if !ok {
		return Entity{}, false
	}
	return entity.Clone(), true
}

// Has reports whether key is present.
func (s *Store) Has(key Identity) bool {
	_, ok := s.items.Get(string(key))
	return ok
}

// Put inserts entity or merges its attributes into the stored entry. Attributes the
// incoming entity does not carry are preserved.
func (s *Store) Put(entity Entity) (Identity, error) {
	key, _, err := s.put(entity)
	return key, err
}

// put is Put that also reports whether the stored entry changed.
func (s *Store) put(entity Entity) (Identity, bool, error) {
	key, err := entity.Identity()
	if err != nil {
		return "", false, err
	}
	next := entity.Clone()
	if item, ok := s.items.Get(string(key)); ok {
		if current, ok := item.(Entity); ok {
			next = current.merge(entity)
			if sameAttributes(current.Attributes, next.Attributes) {
				return key, false, nil
			}
		}
	}
	s.items.Set(string(key), next, gocache.NoExpiration)
	return key, true, nil
}

func sameAttributes(a, b map[string]any) bool {
	return maps.EqualFunc(a, b, func(x, y any) bool { return reflect.DeepEqual(x, y) })
}

// Remove deletes key and reports whether it was present. Any list field still holding
// key is stale until the index is reconciled.
func (s *Store) Remove(key Identity) bool {
	if !s.Has(key) {
		return false
	}
	s.items.Delete(string(key))
	return true
}

// Len returns the number of stored entities.
func (s *Store) Len() int {
	return s.items.ItemCount()
}

// Keys returns every stored identity in lexical order.
func (s *Store) Keys() []Identity {
	items := s.items.Items()
	keys := make([]Identity, 0, len(items))
	for k := range items {
		keys = append(keys, Identity(k))
	}
	slices.Sort(keys)
	return keys
}

// Flush drops every entity.
func (s *Store) Flush() {
	s.items.Flush()
}

func (s *Store) entities() map[Identity]Entity {
	items := s.items.Items()
	out := make(map[Identity]Entity, len(items))
	for k, item := range items {
		if entity, ok := item.Object.(Entity); ok {
			out[Identity(k)] = entity.Clone()
		}
	}
	return out
}
