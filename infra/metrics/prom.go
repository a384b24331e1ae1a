// Package metrics provides the concrete exporters behind the core metrics
// Sink interface.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/openrec/lemd/core/metrics"
)

// PromSink records order and alignment measurements in Prometheus metrics.
type PromSink struct {
	orders        *prometheus.CounterVec
	stages        *prometheus.HistogramVec
	interpolation *prometheus.GaugeVec
}

// NewPromSink registers the metrics on the default Prometheus registerer.
// The scrape endpoint is served by the API router.
func NewPromSink() (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	orders := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "lem_orders_total",
		Help: "Total number of finished orders",
	}, []string{"kind", "outcome"})
	stages := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "lem_order_stage_seconds",
		Help:    "Duration of order pipeline stages",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind", "stage"})
	interpolation := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "lem_alignment_interpolated_ratio",
		Help: "Fraction of grid buckets filled by interpolation per meter",
	}, []string{"origin", "meter_id"})

	if err := reg.Register(orders); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			orders = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(stages); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			stages = are.ExistingCollector.(*prometheus.HistogramVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(interpolation); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			interpolation = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}

	return &PromSink{orders: orders, stages: stages, interpolation: interpolation}, nil
}

// RecordOrder increments the order counter.
func (s *PromSink) RecordOrder(kind, outcome string) {
	s.orders.WithLabelValues(kind, outcome).Inc()
}

// RecordStageDuration observes one stage duration.
func (s *PromSink) RecordStageDuration(kind, stage string, d time.Duration) {
	s.stages.WithLabelValues(kind, stage).Observe(d.Seconds())
}

// RecordInterpolation sets the interpolation ratio gauge for a meter.
func (s *PromSink) RecordInterpolation(origin, meterID string, fraction float64) {
	s.interpolation.WithLabelValues(origin, meterID).Set(fraction)
}
