package normcache

import "log/slog"

// Option mutates Config when constructing a Cache.
type Option func(Config) Config

// WithListFields declares list fields and their routing filters.
func WithListFields(fields ...ListField) Option {
	return func(cfg Config) Config {
		cfg.ListFields = append(cfg.ListFields, fields...)
		return cfg
	}
}

// WithObserver sets the observer notified after every step.
func WithObserver(o Observer) Option {
	return func(cfg Config) Config {
		cfg.Observer = o
		return cfg
	}
}

// WithLogger logs every step through logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg Config) Config {
		cfg.Logger = logger
		return cfg
	}
}
