package dataspace

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/openrec/lemd/core/align"
	"github.com/openrec/lemd/core/logger"
	"github.com/openrec/lemd/core/registry"
)

// INDATAConfig configures the INDATA origin client.
type INDATAConfig struct {
	BaseURL        string `koanf:"base_url"`
	Token          string `koanf:"token"`
	WindowMinutes  int    `koanf:"window_minutes"`
	MaxRetries     int    `koanf:"max_retries"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
}

// SetDefaults fills unset fields. The 25-minute window keeps each request
// under the origin's record ceiling at its 5-minute sampling rate.
func (c *INDATAConfig) SetDefaults() {
	if c.WindowMinutes == 0 {
		c.WindowMinutes = 25
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = int(defaultTimeout / time.Second)
	}
}

// Validate checks required fields.
func (c *INDATAConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("indata: base_url is required")
	}
	return nil
}

// INDATAClient fetches instantaneous power readings from the INDATA
// dataspace. Readings are per electrical phase; the phase to ask for comes
// from the meter registry.
type INDATAClient struct {
	cfg  INDATAConfig
	http *http.Client
	log  logger.Logger
}

// NewINDATAClient builds a client from a validated config.
func NewINDATAClient(cfg INDATAConfig, log logger.Logger) *INDATAClient {
	return &INDATAClient{
		cfg:  cfg,
		http: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		log:  log,
	}
}

// Profile reports power samples in watts, averaged per grid bucket.
func (c *INDATAClient) Profile() align.SourceProfile {
	return align.SourceProfile{Unit: "W", Kind: align.KindPower}
}

type indataRecord struct {
	Datetime string  `json:"datetime"`
	Value    float64 `json:"value"`
	Unit     string  `json:"unit"`
}

type indataResponse struct {
	Data []indataRecord `json:"data"`
}

// Fetch retrieves the meter's power samples over [start, end) in windowed
// pages.
func (c *INDATAClient) Fetch(ctx context.Context, meterID string, start, end time.Time) ([]align.RawSample, error) {
	reg, ok := registry.Lookup(registry.OriginINDATA, meterID)
	if !ok {
		return nil, nil
	}
	window := time.Duration(c.cfg.WindowMinutes) * time.Minute
	return fetchWindows(ctx, c.log, start, end, window, c.cfg.MaxRetries,
		func(ctx context.Context, ws, we time.Time) ([]align.RawSample, error) {
			return c.fetchWindow(ctx, meterID, reg.Phase, ws, we)
		})
}

func (c *INDATAClient) fetchWindow(ctx context.Context, meterID, phase string, start, end time.Time) ([]align.RawSample, error) {
	q := url.Values{}
	q.Set("device_id", meterID)
	q.Set("phase", phase)
	q.Set("start_datetime", start.UTC().Format(time.RFC3339))
	q.Set("end_datetime", end.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/measurements?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("indata: unexpected status %d", resp.StatusCode)
	}

	var body indataResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("indata: decode response: %w", err)
	}
	samples := make([]align.RawSample, 0, len(body.Data))
	for _, r := range body.Data {
		ts, err := time.Parse(time.RFC3339, r.Datetime)
		if err != nil {
			c.log.Debugf("indata: skipping record with bad datetime %q", r.Datetime)
			continue
		}
		samples = append(samples, align.RawSample{Time: ts.UTC(), Value: r.Value, Unit: r.Unit})
	}
	return samples, nil
}
