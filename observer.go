package normcache

import (
	"context"
	"time"
)

// Op names a reconciliation or mutation step reported to observers.
type Op string

const (
	OpCreated Op = "created"
	OpUpdated Op = "updated"
	OpDeleted Op = "deleted"
	OpSeeded  Op = "seeded"

	OpSubmitCreate Op = "submit_create"
	OpSubmitUpdate Op = "submit_update"
	OpRemove       Op = "remove"
	OpRefresh      Op = "refresh"
	OpLoadSeed     Op = "load_seed"
)

// Observer receives an event after every cache step and coordinator call completes.
// changed is false when the step left the cache as it was (a delete of an unknown
// identity) or failed.
type Observer interface {
	OnCacheOp(ctx context.Context, op Op, key Identity, changed bool, err error, dur time.Duration)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(ctx context.Context, op Op, key Identity, changed bool, err error, dur time.Duration)

// OnCacheOp implements Observer.
func (f ObserverFunc) OnCacheOp(ctx context.Context, op Op, key Identity, changed bool, err error, dur time.Duration) {
	if f == nil {
		return
	}
	f(ctx, op, key, changed, err, dur)
}

type multiObserver []Observer

// Observers fans events out to every non-nil observer in order.
func Observers(observers ...Observer) Observer {
	out := make(multiObserver, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

func (m multiObserver) OnCacheOp(ctx context.Context, op Op, key Identity, changed bool, err error, dur time.Duration) {
	for _, o := range m {
		o.OnCacheOp(ctx, op, key, changed, err, dur)
	}
}

func observe(o Observer, ctx context.Context, op Op, key Identity, changed bool, err error, start time.Time) {
	if o == nil {
		return
	}
	o.OnCacheOp(ctx, op, key, changed, err, time.Since(start))
}
