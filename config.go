package normcache

import (
	"log/slog"
	"time"
)

const (
	defaultTypeTag    = "users"
	defaultRevalidate = time.Second
	defaultSeedPrefix = "seed"
)

// Config controls how a Cache is constructed.
type Config struct {
	// ListFields declares list fields and their routing filters. Types without a
	// declared field use a field named after the type tag.
	ListFields []ListField

	// Observer receives an event after every cache step and coordinator call.
	Observer Observer

	// Logger, when set, adds a log observer in front of Observer.
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	var observers []Observer
	if c.Logger != nil {
		observers = append(observers, NewLogObserver(c.Logger))
	}
	if c.Observer != nil {
		observers = append(observers, c.Observer)
	}
	switch len(observers) {
	case 0:
		c.Observer = nil
	case 1:
		c.Observer = observers[0]
	default:
		c.Observer = Observers(observers...)
	}
	return c
}
