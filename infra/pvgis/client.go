// Package pvgis estimates PV generation profiles from the PVGIS hourly
// production API.
package pvgis

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/openrec/lemd/core/logger"
	"github.com/openrec/lemd/core/model"
	"github.com/openrec/lemd/core/registry"
)

// Config configures the PVGIS client.
type Config struct {
	BaseURL        string `koanf:"base_url"`
	MaxYear        int    `koanf:"max_year"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
}

// SetDefaults fills unset fields. MaxYear is the last year the PVGIS
// radiation database covers; later horizons reuse it.
func (c *Config) SetDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://re.jrc.ec.europa.eu/api/v5_2"
	}
	if c.MaxYear == 0 {
		c.MaxYear = 2023
	}
	if c.TimeoutSeconds == 0 {
		c.TimeoutSeconds = 60
	}
}

type yearKey struct {
	lat, lon float64
	year     int
}

type hourKey struct {
	month time.Month
	day   int
	hour  int
}

// Client fetches hourly 1 kWp production series and converts them to
// per-grid-step generation factors. Year series are cached per location.
type Client struct {
	cfg  Config
	http *http.Client
	log  logger.Logger

	mu    sync.Mutex
	cache map[yearKey]map[hourKey]float64
}

// NewClient builds a client from a config.
func NewClient(cfg Config, log logger.Logger) *Client {
	return &Client{
		cfg:   cfg,
		http:  &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second},
		log:   log,
		cache: make(map[yearKey]map[hourKey]float64),
	}
}

// GenerationFactors returns the energy a 1 kWp installation at loc produces
// in each grid step of the horizon, in kWh. Hourly API values are repeated
// across the four steps of the hour. Horizon years beyond the database reuse
// the last covered year, mapping Feb 29 to Feb 28 when needed.
func (c *Client) GenerationFactors(ctx context.Context, loc registry.Location, horizon []time.Time) ([]float64, error) {
	out := make([]float64, len(horizon))
	for i, t := range horizon {
		t = t.UTC()
		year := t.Year()
		if year > c.cfg.MaxYear {
			year = c.cfg.MaxYear
		}
		series, err := c.yearSeries(ctx, loc, year)
		if err != nil {
			return nil, err
		}
		k := hourKey{month: t.Month(), day: t.Day(), hour: t.Hour()}
		p, ok := series[k]
		if !ok && k.month == time.February && k.day == 29 {
			k.day = 28
			p, ok = series[k]
		}
		if !ok {
			return nil, fmt.Errorf("pvgis: no production value for %s in year %d", t.Format(model.TimeLayout), year)
		}
		// W sustained over a quarter hour to kWh.
		out[i] = p * model.StepHours / 1000
	}
	return out, nil
}

func (c *Client) yearSeries(ctx context.Context, loc registry.Location, year int) (map[hourKey]float64, error) {
	key := yearKey{lat: loc.Latitude, lon: loc.Longitude, year: year}
	c.mu.Lock()
	defer c.mu.Unlock()
	if series, ok := c.cache[key]; ok {
		return series, nil
	}
	series, err := c.fetchYear(ctx, loc, year)
	if err != nil {
		return nil, err
	}
	c.cache[key] = series
	return series, nil
}

type seriescalcResponse struct {
	Outputs struct {
		Hourly []struct {
			Time string  `json:"time"`
			P    float64 `json:"P"`
		} `json:"hourly"`
	} `json:"outputs"`
}

// pvgisTimeLayout matches the "20200101:0010" stamps of the hourly API.
const pvgisTimeLayout = "20060102:1504"

func (c *Client) fetchYear(ctx context.Context, loc registry.Location, year int) (map[hourKey]float64, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%.6f", loc.Latitude))
	q.Set("lon", fmt.Sprintf("%.6f", loc.Longitude))
	q.Set("startyear", fmt.Sprintf("%d", year))
	q.Set("endyear", fmt.Sprintf("%d", year))
	q.Set("pvcalculation", "1")
	q.Set("peakpower", "1")
	q.Set("loss", "14")
	q.Set("outputformat", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/seriescalc?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pvgis: unexpected status %d", resp.StatusCode)
	}
	var body seriescalcResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("pvgis: decode response: %w", err)
	}

	series := make(map[hourKey]float64, len(body.Outputs.Hourly))
	for _, h := range body.Outputs.Hourly {
		ts, err := time.Parse(pvgisTimeLayout, h.Time)
		if err != nil {
			c.log.Debugf("pvgis: skipping record with bad time %q", h.Time)
			continue
		}
		series[hourKey{month: ts.Month(), day: ts.Day(), hour: ts.Hour()}] = h.P
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("pvgis: empty hourly series for year %d", year)
	}
	c.log.Debugf("pvgis: cached %d hourly values for (%.4f, %.4f) year %d",
		len(series), loc.Latitude, loc.Longitude, year)
	return series, nil
}
