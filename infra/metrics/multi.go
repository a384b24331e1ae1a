package metrics

import (
	"time"

	coremetrics "github.com/openrec/lemd/core/metrics"
)

// MultiSink fans every measurement out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

func (m *MultiSink) RecordOrder(kind, outcome string) {
	for _, s := range m.Sinks {
		s.RecordOrder(kind, outcome)
	}
}

func (m *MultiSink) RecordStageDuration(kind, stage string, d time.Duration) {
	for _, s := range m.Sinks {
		s.RecordStageDuration(kind, stage, d)
	}
}

func (m *MultiSink) RecordInterpolation(origin, meterID string, fraction float64) {
	for _, s := range m.Sinks {
		s.RecordInterpolation(origin, meterID, fraction)
	}
}
