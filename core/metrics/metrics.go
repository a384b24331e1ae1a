// Package metrics defines the instrumentation surface of the service. Domain
// code records against the Sink interface; concrete exporters live under
// infra/metrics.
package metrics

import "time"

// Sink receives service measurements. Implementations must be safe for
// concurrent use.
type Sink interface {
	// RecordOrder counts one finished order by request kind and outcome
	// ("ok", "missing-meter", "missing-timestep", "internal").
	RecordOrder(kind, outcome string)
	// RecordStageDuration observes how long one pipeline stage of an order
	// took ("fetch", "align", "build", "solve", "persist").
	RecordStageDuration(kind, stage string, d time.Duration)
	// RecordInterpolation reports the fraction of grid buckets that had to be
	// interpolated for one meter of one alignment run.
	RecordInterpolation(origin, meterID string, fraction float64)
}

// NopSink discards every measurement.
type NopSink struct{}

func (NopSink) RecordOrder(string, string)                  {}
func (NopSink) RecordStageDuration(string, string, time.Duration) {}
func (NopSink) RecordInterpolation(string, string, float64) {}

// Config selects which exporters to start.
type Config struct {
	PrometheusEnabled bool   `koanf:"prometheus_enabled"`
	PrometheusPort    int    `koanf:"prometheus_port"`
	InfluxEnabled     bool   `koanf:"influx_enabled"`
	InfluxURL         string `koanf:"influx_url"`
	InfluxToken       string `koanf:"influx_token"`
	InfluxOrg         string `koanf:"influx_org"`
	InfluxBucket      string `koanf:"influx_bucket"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.PrometheusPort == 0 {
		c.PrometheusPort = 9100
	}
}
