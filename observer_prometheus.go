package normcache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type prometheusObserver struct {
	ops      *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewPrometheusObserver registers op counters and duration histograms on reg.
// Collectors already registered under the same names are reused.
func NewPrometheusObserver(reg prometheus.Registerer, namespace string) (Observer, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "normcache",
		Name:      "ops_total",
		Help:      "Cache steps and coordinator calls by op and outcome.",
	}, []string{"op", "changed", "error"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "normcache",
		Name:      "op_duration_seconds",
		Help:      "Cache step duration.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	var err error
	if ops, err = register(reg, ops); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &prometheusObserver{ops: ops, duration: duration}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (o *prometheusObserver) OnCacheOp(_ context.Context, op Op, _ Identity, changed bool, err error, dur time.Duration) {
	o.ops.WithLabelValues(string(op), strconv.FormatBool(changed), strconv.FormatBool(err != nil)).Inc()
	o.duration.WithLabelValues(string(op)).Observe(dur.Seconds())
}
