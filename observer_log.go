package normcache

import (
	"context"
	"log/slog"
	"time"
)

type logObserver struct {
	logger *slog.Logger
}

// NewLogObserver logs every cache step. Failures log at warn, everything else at debug.
func NewLogObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &logObserver{logger: logger.With("component", "normcache")}
}

func (o *logObserver) OnCacheOp(ctx context.Context, op Op, key Identity, changed bool, err error, dur time.Duration) {
	if err != nil {
		o.logger.WarnContext(ctx, "cache step failed",
			"op", string(op),
			"identity", string(key),
			"duration", dur,
			"error", err,
		)
		return
	}
	o.logger.DebugContext(ctx, "cache step",
		"op", string(op),
		"identity", string(key),
		"changed", changed,
		"duration", dur,
	)
}
