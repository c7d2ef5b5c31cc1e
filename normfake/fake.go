// Package normfake provides an in-memory normcache.Backend with failure injection and
// call assertions for tests.
package normfake

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/goforj/normcache"
)

// Op identifies a backend operation for assertions.
type Op string

const (
	OpList   Op = "list"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

type row struct {
	seq    uint64
	entity normcache.Entity
}

// Fake is a deterministic Backend. Rows are listed newest first; ids are random UUIDs
// unless an IDFunc is set.
type Fake struct {
	mu     sync.Mutex
	rows   map[string]map[string]*row
	seq    uint64
	fail   map[Op][]error
	counts map[Op]map[string]int

	// Now stamps created_at. Defaults to time.Now.
	Now func() time.Time
	// IDFunc generates ids for created rows. Defaults to uuid.NewString.
	IDFunc func() string
}

// New creates an empty Fake.
func New() *Fake {
	return &Fake{
		rows:   make(map[string]map[string]*row),
		fail:   make(map[Op][]error),
		counts: make(map[Op]map[string]int),
		Now:    time.Now,
		IDFunc: uuid.NewString,
	}
}

var _ normcache.Backend = (*Fake)(nil)

// Put inserts or replaces rows without counting a call. Later rows list first.
func (f *Fake) Put(entities ...normcache.Entity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range entities {
		f.seq++
		f.table(e.TypeTag)[e.ID] = &row{seq: f.seq, entity: e.Clone()}
	}
}

// Rows returns the stored rows for typeTag, newest first.
func (f *Fake) Rows(typeTag string) []normcache.Entity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listLocked(typeTag)
}

// FailNext makes the next call to op return err. Calls queue in order.
func (f *Fake) FailNext(op Op, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[op] = append(f.fail[op], err)
}

// ListEntities implements normcache.Backend.
func (f *Fake) ListEntities(_ context.Context, typeTag string) ([]normcache.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(OpList, typeTag)
	if err := f.popFailure(OpList); err != nil {
		return nil, err
	}
	return f.listLocked(typeTag), nil
}

// CreateEntity implements normcache.Backend. A missing or empty name is rejected.
func (f *Fake) CreateEntity(_ context.Context, typeTag string, fields map[string]any) (normcache.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(OpCreate, typeTag)
	if err := f.popFailure(OpCreate); err != nil {
		return normcache.Entity{}, err
	}
	if name, _ := fields["name"].(string); name == "" {
		return normcache.Entity{}, normcache.Rejected("name must not be empty")
	}
	attrs := maps.Clone(fields)
	attrs["created_at"] = f.Now().UTC().Format(time.RFC3339Nano)
	e := normcache.Entity{TypeTag: typeTag, ID: f.IDFunc(), Attributes: attrs}
	f.seq++
	f.table(typeTag)[e.ID] = &row{seq: f.seq, entity: e}
	return e.Clone(), nil
}

// UpdateEntity implements normcache.Backend. Unknown ids are rejected.
func (f *Fake) UpdateEntity(_ context.Context, typeTag, id string, fields map[string]any) (normcache.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(OpUpdate, typeTag+":"+id)
	if err := f.popFailure(OpUpdate); err != nil {
		return normcache.Entity{}, err
	}
	r, ok := f.table(typeTag)[id]
	if !ok {
		return normcache.Entity{}, normcache.Rejected(fmt.Sprintf("no %s with id %q", typeTag, id))
	}
	if r.entity.Attributes == nil {
		r.entity.Attributes = make(map[string]any, len(fields))
	}
	for k, v := range fields {
		r.entity.Attributes[k] = v
	}
	return r.entity.Clone(), nil
}

// DeleteEntity implements normcache.Backend. Deleting an unknown id returns "" and no
// error.
func (f *Fake) DeleteEntity(_ context.Context, typeTag, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(OpDelete, typeTag+":"+id)
	if err := f.popFailure(OpDelete); err != nil {
		return "", err
	}
	table := f.table(typeTag)
	if _, ok := table[id]; !ok {
		return "", nil
	}
	delete(table, id)
	return id, nil
}

// Reset clears recorded counts and pending failures.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts = make(map[Op]map[string]int)
	f.fail = make(map[Op][]error)
}

// AssertCalled verifies key was touched by op the expected number of times.
// Keys are the type tag for list/create and "type:id" for update/delete.
func (f *Fake) AssertCalled(t *testing.T, op Op, key string, times int) {
	t.Helper()
	if got := f.Count(op, key); got != times {
		t.Fatalf("expected %s %q called %d times, got %d", op, key, times, got)
	}
}

// AssertNotCalled ensures key was never touched by op.
func (f *Fake) AssertNotCalled(t *testing.T, op Op, key string) {
	t.Helper()
	if got := f.Count(op, key); got != 0 {
		t.Fatalf("expected %s %q not called, got %d", op, key, got)
	}
}

// AssertTotal ensures the total call count for op matches times.
func (f *Fake) AssertTotal(t *testing.T, op Op, times int) {
	t.Helper()
	if got := f.Total(op); got != times {
		t.Fatalf("expected %s total=%d, got %d", op, times, got)
	}
}

// Count returns calls for op+key.
func (f *Fake) Count(op Op, key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[op][key]
}

// Total returns calls for op across keys.
func (f *Fake) Total(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int
	for _, n := range f.counts[op] {
		sum += n
	}
	return sum
}

func (f *Fake) record(op Op, key string) {
	if f.counts[op] == nil {
		f.counts[op] = make(map[string]int)
	}
	f.counts[op][key]++
}

func (f *Fake) popFailure(op Op) error {
	queue := f.fail[op]
	if len(queue) == 0 {
		return nil
	}
	f.fail[op] = queue[1:]
	return queue[0]
}

func (f *Fake) table(typeTag string) map[string]*row {
	t, ok := f.rows[typeTag]
	if !ok {
		t = make(map[string]*row)
		f.rows[typeTag] = t
	}
	return t
}

func (f *Fake) listLocked(typeTag string) []normcache.Entity {
	rows := slices.Collect(maps.Values(f.rows[typeTag]))
	slices.SortFunc(rows, func(a, b *row) int {
		switch {
		case a.seq > b.seq:
			return -1
		case a.seq < b.seq:
			return 1
		}
		return 0
	})
	out := make([]normcache.Entity, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.entity.Clone())
	}
	return out
}
