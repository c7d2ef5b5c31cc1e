package normcache

import "iter"

// Snapshot is an immutable copy of the cache at one version.
type Snapshot struct {
	Version  uint64
	Entities map[Identity]Entity
	Lists    map[string][]Identity
}

// Get implements Resolver.
func (s Snapshot) Get(key Identity) (Entity, bool) {
	e, ok := s.Entities[key]
	if !ok {
		return Entity{}, false
	}
	return e.Clone(), true
}

// List resolves field against the snapshot, skipping dangling identities.
func (s Snapshot) List(field string) iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		for _, key := range s.Lists[field] {
			e, ok := s.Get(key)
			if !ok {
				continue
			}
			if !yield(e) {
				return
			}
		}
	}
}

// ChangeEvent is delivered to subscribers after a step changed the cache.
type ChangeEvent struct {
	Op       Op
	Identity Identity
	Snapshot Snapshot
}
