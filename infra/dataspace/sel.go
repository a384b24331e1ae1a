package dataspace

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/openrec/lemd/core/align"
	"github.com/openrec/lemd/core/logger"
)

// SELConfig configures the SEL origin client.
type SELConfig struct {
	BaseURL        string `koanf:"base_url"`
	Email          string `koanf:"email"`
	Password       string `koanf:"password"`
	WindowHours    int    `koanf:"window_hours"`
	MaxRetries     int    `koanf:"max_retries"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
}

// SetDefaults fills unset fields. SEL serves 15-minute energy records, so a
// day per window stays well under its record ceiling.
func (c *SELConfig) SetDefaults() {
	if c.WindowHours == 0 {
		c.WindowHours = 24
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = int(defaultTimeout / time.Second)
	}
}

// Validate checks required fields.
func (c *SELConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("sel: base_url is required")
	}
	if c.Email == "" || c.Password == "" {
		return fmt.Errorf("sel: email and password are required")
	}
	return nil
}

// SELClient fetches interval energy readings from the SEL dataspace. Access
// is session based: a login yields a bearer token that is cached and
// refreshed when the origin rejects it.
type SELClient struct {
	cfg  SELConfig
	http *http.Client
	log  logger.Logger

	mu    sync.Mutex
	token string
}

// NewSELClient builds a client from a validated config.
func NewSELClient(cfg SELConfig, log logger.Logger) *SELClient {
	return &SELClient{
		cfg:  cfg,
		http: &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		log:  log,
	}
}

// Profile reports energy samples in kWh, summed per grid bucket.
func (c *SELClient) Profile() align.SourceProfile {
	return align.SourceProfile{Unit: "kWh", Kind: align.KindEnergy}
}

type selRecord struct {
	Timestamp string  `json:"timestamp"`
	Energy    float64 `json:"energy"`
}

type selResponse struct {
	Data []selRecord `json:"data"`
}

// Fetch retrieves the meter's energy samples over [start, end) in windowed
// pages.
func (c *SELClient) Fetch(ctx context.Context, meterID string, start, end time.Time) ([]align.RawSample, error) {
	window := time.Duration(c.cfg.WindowHours) * time.Hour
	return fetchWindows(ctx, c.log, start, end, window, c.cfg.MaxRetries,
		func(ctx context.Context, ws, we time.Time) ([]align.RawSample, error) {
			return c.fetchWindow(ctx, meterID, ws, we)
		})
}

func (c *SELClient) fetchWindow(ctx context.Context, meterID string, start, end time.Time) ([]align.RawSample, error) {
	token, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("meter_id", meterID)
	q.Set("start_datetime", start.UTC().Format(time.RFC3339))
	q.Set("end_datetime", end.UTC().Format(time.RFC3339))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/readings?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode == http.StatusUnauthorized {
		c.expireSession(token)
		return nil, fmt.Errorf("sel: session expired")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sel: unexpected status %d", resp.StatusCode)
	}

	var body selResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("sel: decode response: %w", err)
	}
	samples := make([]align.RawSample, 0, len(body.Data))
	for _, r := range body.Data {
		ts, err := time.Parse(time.RFC3339, r.Timestamp)
		if err != nil {
			c.log.Debugf("sel: skipping record with bad timestamp %q", r.Timestamp)
			continue
		}
		samples = append(samples, align.RawSample{Time: ts.UTC(), Value: r.Energy, Unit: "kWh"})
	}
	return samples, nil
}

// session returns the cached token, logging in when there is none.
func (c *SELClient) session(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}

	payload, err := json.Marshal(map[string]string{
		"email":    c.cfg.Email,
		"password": c.cfg.Password,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/login", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("sel: login failed with status %d", resp.StatusCode)
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("sel: decode login response: %w", err)
	}
	if body.Token == "" {
		return "", fmt.Errorf("sel: login returned an empty token")
	}
	c.token = body.Token
	return c.token, nil
}

// expireSession drops the cached token if it is still the rejected one.
func (c *SELClient) expireSession(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == token {
		c.token = ""
	}
}
