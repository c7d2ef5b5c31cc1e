package normcache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"
)

func listNames(c *Cache, field string) []string {
	var names []string
	for e := range c.List(field) {
		names = append(names, e.String("name"))
	}
	return names
}

func newTestCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	c, err := NewCache(opts...)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCacheAliceBobScenario(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	if err := c.Seed(ctx, "users", []Entity{user("1", "Alice")}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := c.Created(ctx, user("2", "Bob")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if got := listNames(c, "users"); !slices.Equal(got, []string{"Bob", "Alice"}) {
		t.Fatalf("after create: %v", got)
	}
	if _, err := c.Updated(ctx, Entity{TypeTag: "users", ID: "1", Attributes: map[string]any{"name": "Alicia"}}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := listNames(c, "users"); !slices.Equal(got, []string{"Bob", "Alicia"}) {
		t.Fatalf("after update: %v", got)
	}
	if err := c.Deleted(ctx, "users:2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got := listNames(c, "users"); !slices.Equal(got, []string{"Alicia"}) {
		t.Fatalf("after delete: %v", got)
	}
	if _, ok := c.Entity("users:2"); ok {
		t.Fatalf("deleted entity still stored")
	}
}

func TestCacheSeedIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	_ = c.Seed(ctx, "users", []Entity{user("1", "Alice")})

	err := c.Seed(ctx, "users", []Entity{user("2", "Bob"), {TypeTag: "users"}})
	var re *ReconciliationError
	if !errors.As(err, &re) || re.Op != OpSeeded {
		t.Fatalf("expected reconciliation error, got %v", err)
	}
	if _, ok := c.Entity("users:2"); ok {
		t.Fatalf("partial seed stored an entity")
	}
	if got := listNames(c, "users"); !slices.Equal(got, []string{"Alice"}) {
		t.Fatalf("partial seed changed the list: %v", got)
	}
}

func TestCacheSubscribeReceivesSnapshots(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	var events []ChangeEvent
	unsubscribe := c.Subscribe(func(ev ChangeEvent) {
		// Reading back from inside the callback must not deadlock.
		_ = c.Keys("users")
		events = append(events, ev)
	})

	_, _ = c.Created(ctx, user("1", "Alice"))
	_ = c.Deleted(ctx, "users:missing")
	_, _ = c.Updated(ctx, user("1", "Alicia"))

	if len(events) != 2 {
		t.Fatalf("expected 2 events (unknown delete is silent), got %d", len(events))
	}
	if events[0].Op != OpCreated || events[0].Identity != "users:1" || events[0].Snapshot.Version != 1 {
		t.Fatalf("unexpected first event %+v", events[0])
	}
	var names []string
	for e := range events[1].Snapshot.List("users") {
		names = append(names, e.String("name"))
	}
	if !slices.Equal(names, []string{"Alicia"}) || events[1].Snapshot.Version != 2 {
		t.Fatalf("unexpected second snapshot %v v%d", names, events[1].Snapshot.Version)
	}

	unsubscribe()
	_, _ = c.Created(ctx, user("2", "Bob"))
	if len(events) != 2 {
		t.Fatalf("unsubscribed callback still called")
	}
}

func TestCacheSnapshotIsIsolated(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	_, _ = c.Created(ctx, user("1", "Alice"))
	snap := c.Snapshot()
	_, _ = c.Updated(ctx, user("1", "Alicia"))
	_, _ = c.Created(ctx, user("2", "Bob"))

	e, _ := snap.Get("users:1")
	if e.String("name") != "Alice" || len(snap.Lists["users"]) != 1 {
		t.Fatalf("snapshot changed after later steps")
	}
}

func TestCacheCloseRejectsSteps(t *testing.T) {
	ctx := context.Background()
	c, err := NewCache()
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	_, _ = c.Created(ctx, user("1", "Alice"))
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := c.Created(ctx, user("2", "Bob")); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := c.Deleted(ctx, "users:1"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if len(c.Keys("users")) != 0 {
		t.Fatalf("close should drop state")
	}
}

func TestCacheConcurrentCreates(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	const n = 50
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := fmt.Sprint(i % 25)
			_, _ = c.Created(ctx, user(id, "u"+id))
			_ = c.Keys("users")
		}()
	}
	wg.Wait()
	if got := len(c.Keys("users")); got != 25 {
		t.Fatalf("expected 25 unique entries, got %d", got)
	}
}

func TestCacheListFieldsOption(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t, WithListFields(
		ListField{Name: "everyone", TypeTag: "users"},
	))
	_, _ = c.Created(ctx, user("1", "Alice"))
	if !slices.Equal(c.Fields(), []string{"everyone"}) {
		t.Fatalf("unexpected fields %v", c.Fields())
	}
	if _, err := NewCache(WithListFields(ListField{Name: "bad"})); err == nil {
		t.Fatalf("expected invalid list field to fail construction")
	}
}

func TestCacheScenarioCreateDeleteUpdate(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	if _, err := c.Created(ctx, user("1", "Alice")); err != nil {
		t.Fatalf("create alice: %v", err)
	}
	if _, err := c.Created(ctx, user("2", "Bob")); err != nil {
		t.Fatalf("create bob: %v", err)
	}
	if err := c.Deleted(ctx, "users:1"); err != nil {
		t.Fatalf("delete alice: %v", err)
	}
	if _, err := c.Updated(ctx, user("2", "Bobby")); err != nil {
		t.Fatalf("update bob: %v", err)
	}

	if got := c.Keys("users"); !slices.Equal(got, []Identity{"users:2"}) {
		t.Fatalf("expected [users:2], got %v", got)
	}
	if got := listNames(c, "users"); !slices.Equal(got, []string{"Bobby"}) {
		t.Fatalf("expected [Bobby], got %v", got)
	}
	if _, ok := c.Entity("users:1"); ok {
		t.Fatalf("deleted entity still stored")
	}
}

func TestCacheSubscriberAddedDuringStepGetsFullSnapshots(t *testing.T) {
	ctx := context.Background()
	var c *Cache
	var events []ChangeEvent
	subscribed := false
	c = newTestCache(t, WithObserver(ObserverFunc(func(_ context.Context, op Op, _ Identity, _ bool, _ error, _ time.Duration) {
		if op != OpCreated || subscribed {
			return
		}
		subscribed = true
		c.Subscribe(func(ev ChangeEvent) { events = append(events, ev) })
	})))

	_, _ = c.Created(ctx, user("1", "Alice"))
	_, _ = c.Created(ctx, user("2", "Bob"))

	for _, ev := range events {
		if _, ok := ev.Snapshot.Get(ev.Identity); !ok {
			t.Fatalf("event for %s carries a snapshot without it (v%d, %d entities)", ev.Identity, ev.Snapshot.Version, len(ev.Snapshot.Entities))
		}
	}
	if len(events) != 1 || events[0].Identity != "users:2" {
		t.Fatalf("expected one event for users:2, got %+v", events)
	}
	if got := events[0].Snapshot.Lists["users"]; !slices.Equal(got, []Identity{"users:2", "users:1"}) {
		t.Fatalf("unexpected snapshot list %v", got)
	}
}

func TestCacheIdenticalStepsDoNotNotify(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)
	var events []ChangeEvent
	c.Subscribe(func(ev ChangeEvent) { events = append(events, ev) })

	_, _ = c.Created(ctx, user("1", "Alice"))
	_, _ = c.Created(ctx, user("1", "Alice"))
	_, _ = c.Updated(ctx, user("1", "Alice"))
	_ = c.Seed(ctx, "users", []Entity{user("1", "Alice")})
	if len(events) != 1 || c.Snapshot().Version != 1 {
		t.Fatalf("expected a single change, got %d events at v%d", len(events), c.Snapshot().Version)
	}

	_, _ = c.Updated(ctx, user("1", "Alicia"))
	if len(events) != 2 || c.Snapshot().Version != 2 {
		t.Fatalf("expected a real update to notify, got %d events at v%d", len(events), c.Snapshot().Version)
	}
}
