package normcache

import (
	"iter"
	"slices"
)

// Resolver looks up entities by identity.
type Resolver interface {
	Get(key Identity) (Entity, bool)
}

// Index holds, per list field, the ordered identities the field currently shows.
// New entries go to the front; untouched entries keep their relative order.
// Index is not safe for concurrent mutation; Cache serializes access to it.
type Index struct {
	fields  map[string][]Identity
	members map[string]map[Identity]struct{}
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		fields:  make(map[string][]Identity),
		members: make(map[string]map[Identity]struct{}),
	}
}

// InsertFront prepends key to field. Inserting a key the field already holds is a
// no-op, so a retried create never shows twice. It reports whether key was added.
func (x *Index) InsertFront(field string, key Identity) bool {
	set := x.members[field]
	if set == nil {
		set = make(map[Identity]struct{})
		x.members[field] = set
	}
	if _, ok := set[key]; ok {
		return false
	}
	set[key] = struct{}{}
	keys := make([]Identity, 0, len(x.fields[field])+1)
	keys = append(keys, key)
	x.fields[field] = append(keys, x.fields[field]...)
	return true
}

// RemoveWhere drops every key in field matching pred and returns how many were removed.
func (x *Index) RemoveWhere(field string, pred func(Identity) bool) int {
	keys, ok := x.fields[field]
	if !ok || pred == nil {
		return 0
	}
	kept := keys[:0:0]
	removed := 0
	for _, key := range keys {
		if pred(key) {
			delete(x.members[field], key)
			removed++
			continue
		}
		kept = append(kept, key)
	}
	if removed > 0 {
		x.fields[field] = kept
	}
	return removed
}

// RemoveAll drops key from every field.
func (x *Index) RemoveAll(key Identity) int {
	removed := 0
	for field := range x.fields {
		if _, ok := x.members[field][key]; !ok {
			continue
		}
		removed += x.RemoveWhere(field, func(k Identity) bool { return k == key })
	}
	return removed
}

// Replace sets field to keys in the given order, dropping repeats. It reports whether
// the field differs from what it held before.
func (x *Index) Replace(field string, keys []Identity) bool {
	set := make(map[Identity]struct{}, len(keys))
	ordered := make([]Identity, 0, len(keys))
	for _, key := range keys {
		if _, dup := set[key]; dup {
			continue
		}
		set[key] = struct{}{}
		ordered = append(ordered, key)
	}
	previous, existed := x.fields[field]
	x.fields[field] = ordered
	x.members[field] = set
	return !existed || !slices.Equal(previous, ordered)
}

// Contains reports whether field holds key.
func (x *Index) Contains(field string, key Identity) bool {
	_, ok := x.members[field][key]
	return ok
}

// Keys returns a copy of the identities in field.
func (x *Index) Keys(field string) []Identity {
	return slices.Clone(x.fields[field])
}

// Len returns the number of identities in field.
func (x *Index) Len(field string) int {
	return len(x.fields[field])
}

// Fields returns the known field names in lexical order.
func (x *Index) Fields() []string {
	names := make([]string, 0, len(x.fields))
	for name := range x.fields {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ToOrderedList resolves field through r. The sequence is lazy and restartable: every
// iteration reads the field as it is at that moment. Keys whose entity is missing are
// skipped.
func (x *Index) ToOrderedList(field string, r Resolver) iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		for _, key := range x.Keys(field) {
			entity, ok := r.Get(key)
			if !ok {
				continue
			}
			if !yield(entity) {
				return
			}
		}
	}
}

func (x *Index) clone() map[string][]Identity {
	out := make(map[string][]Identity, len(x.fields))
	for field, keys := range x.fields {
		out[field] = slices.Clone(keys)
	}
	return out
}
