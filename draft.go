package normcache

import (
	"context"
	"sync"
)

// Draft is the UI-local edit buffer. An empty ID means "create"; otherwise it names
// the entity being updated.
type Draft struct {
	ID   string
	Name string
}

// EditDraft starts editing e.
func EditDraft(e Entity) Draft {
	return Draft{ID: e.ID, Name: e.String("name")}
}

// IsCreate reports whether submitting the draft creates a new entity.
func (d Draft) IsCreate() bool { return d.ID == "" }

// Fields returns the mutation input for the draft.
func (d Draft) Fields() map[string]any {
	return map[string]any{"name": d.Name}
}

// Form holds one Draft through its lifecycle: empty, populated by Select, cleared by a
// successful Submit or by Cancel. A failed Submit keeps the draft so the user can retry.
type Form struct {
	mu    sync.Mutex
	draft Draft
}

// Draft returns the current draft.
func (f *Form) Draft() Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

// Select switches the form to editing e.
func (f *Form) Select(e Entity) {
	f.mu.Lock()
	f.draft = EditDraft(e)
	f.mu.Unlock()
}

// SetName updates the name being edited.
func (f *Form) SetName(name string) {
	f.mu.Lock()
	f.draft.Name = name
	f.mu.Unlock()
}

// Cancel clears the draft.
func (f *Form) Cancel() {
	f.mu.Lock()
	f.draft = Draft{}
	f.mu.Unlock()
}

// CanSubmit reports whether the draft has a name to submit.
func (f *Form) CanSubmit() bool {
	return f.Draft().Name != ""
}

// Submit sends the draft through c. The draft is cleared only when c succeeds.
func (f *Form) Submit(ctx context.Context, c *Coordinator) (Entity, error) {
	draft := f.Draft()
	entity, err := c.Submit(ctx, draft)
	if err != nil {
		return Entity{}, err
	}
	f.mu.Lock()
	if f.draft == draft {
		f.draft = Draft{}
	}
	f.mu.Unlock()
	return entity, nil
}
