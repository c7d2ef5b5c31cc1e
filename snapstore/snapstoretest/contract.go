// Package snapstoretest provides a reusable contract suite for snapstore.Store
// implementations.
//
// Example:
//
//	func TestFileStoreContract(t *testing.T) {
//		store := snapstore.NewFile(context.Background(), t.TempDir())
//		snapstoretest.RunStoreContract(t, store, snapstoretest.Options{})
//	}
package snapstoretest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/goforj/normcache/snapstore"
)

// Options configures the contract checks.
type Options struct {
	// CaseName namespaces keys. Defaults to t.Name().
	CaseName string
	// NullSemantics expects every read to miss.
	NullSemantics bool
	// SkipCloneCheck disables the "get returns a copy" assertion.
	SkipCloneCheck bool
	// TTL is the expiry used by the expiry check.
	TTL time.Duration
	// TTLWait bounds how long the suite waits for expiry.
	TTLWait time.Duration
	// SkipFlush disables the flush check.
	SkipFlush bool
}

// RunStoreContract checks round-trip, copy-on-read, overwrite, expiry, delete and flush.
func RunStoreContract(t *testing.T, store snapstore.Store, opts Options) {
	t.Helper()

	caseName := opts.CaseName
	if caseName == "" {
		caseName = t.Name()
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 50 * time.Millisecond
	}
	wait := opts.TTLWait
	if wait <= 0 {
		wait = 500 * time.Millisecond
	}

	ctx := context.Background()
	key := func(s string) string {
		return sanitize(caseName) + ":" + s
	}

	if err := store.Set(ctx, key("alpha"), []byte("value"), time.Minute); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	body, ok, err := store.Get(ctx, key("alpha"))
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if opts.NullSemantics {
		if ok {
			t.Fatalf("expected miss for null semantics")
		}
	} else {
		if !ok || string(body) != "value" {
			t.Fatalf("unexpected get result: ok=%v body=%q", ok, string(body))
		}
		if !opts.SkipCloneCheck {
			body[0] = 'X'
			again, ok, err := store.Get(ctx, key("alpha"))
			if err != nil || !ok || string(again) != "value" {
				t.Fatalf("expected stored value unchanged, got ok=%v body=%q err=%v", ok, string(again), err)
			}
		}
	}

	if err := store.Set(ctx, key("alpha"), []byte("replaced"), time.Minute); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	if body, ok, err := store.Get(ctx, key("alpha")); err != nil {
		t.Fatalf("get after overwrite failed: %v", err)
	} else if !opts.NullSemantics && (!ok || string(body) != "replaced") {
		t.Fatalf("expected overwritten value, got ok=%v body=%q", ok, string(body))
	}

	if err := store.Set(ctx, key("ttl"), []byte("v"), ttl); err != nil {
		t.Fatalf("set ttl failed: %v", err)
	}
	if err := waitForMiss(ctx, store, key("ttl"), wait); err != nil {
		t.Fatalf("expected ttl expiry: %v", err)
	}

	if err := store.Delete(ctx, key("alpha")); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, ok, err := store.Get(ctx, key("alpha")); err != nil || ok {
		t.Fatalf("expected key deleted; ok=%v err=%v", ok, err)
	}
	if err := store.Delete(ctx, key("never-set")); err != nil {
		t.Fatalf("delete of missing key failed: %v", err)
	}

	if !opts.SkipFlush {
		if err := store.Set(ctx, key("flush"), []byte("x"), time.Minute); err != nil {
			t.Fatalf("set flush failed: %v", err)
		}
		if err := store.Flush(ctx); err != nil {
			t.Fatalf("flush failed: %v", err)
		}
		if _, ok, err := store.Get(ctx, key("flush")); err != nil || ok {
			t.Fatalf("expected flush to clear key; ok=%v err=%v", ok, err)
		}
	}
}

func waitForMiss(ctx context.Context, store snapstore.Store, key string, wait time.Duration) error {
	deadline := time.Now().Add(wait)
	for {
		_, ok, err := store.Get(ctx, key)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("key %q still present after %s", key, wait)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func sanitize(s string) string {
	return strings.NewReplacer("/", "_", " ", "_").Replace(s)
}
