package normcache

// Policy applies mutation results to a Store and Index.
//
// Updates only merge into the store: list fields hold identities, so every list that
// references the entity renders the new attributes. Creates and deletes change list
// membership and need the explicit steps below. Each step validates before it writes,
// so a failing step leaves both the store and the index untouched.
type Policy struct {
	router *Router
}

// NewPolicy returns a policy routing created entities with router.
// A nil router routes every entity to the field named after its type tag.
func NewPolicy(router *Router) *Policy {
	if router == nil {
		router = &Router{}
	}
	return &Policy{router: router}
}

// OnCreated stores result and prepends it to every list field it belongs to.
// Applying the same result twice merges attributes and never adds a second entry.
// changed is false when the store and every list already held result.
func (p *Policy) OnCreated(store *Store, index *Index, result Entity) (key Identity, changed bool, err error) {
	key, err = result.Identity()
	if err != nil {
		return "", false, &ReconciliationError{Op: OpCreated, Entity: result, Err: err}
	}
	_, changed, err = store.put(result)
	if err != nil {
		return "", false, &ReconciliationError{Op: OpCreated, Entity: result, Err: err}
	}
	for _, field := range p.router.Fields(result) {
		if index.InsertFront(field, key) {
			changed = true
		}
	}
	return key, changed, nil
}

// OnUpdated merges result into the store. List membership is left alone.
// changed is false when the merge left the stored attributes as they were.
func (p *Policy) OnUpdated(store *Store, result Entity) (Identity, bool, error) {
	key, changed, err := store.put(result)
	if err != nil {
		return "", false, &ReconciliationError{Op: OpUpdated, Entity: result, Err: err}
	}
	return key, changed, nil
}

// OnDeleted removes key from every list field and then from the store, so a reader
// never finds a list entry pointing at a removed entity. Deleting an unknown identity
// is a no-op. It reports whether anything changed.
func (p *Policy) OnDeleted(store *Store, index *Index, key Identity) bool {
	removed := index.RemoveAll(key)
	return store.Remove(key) || removed > 0
}
