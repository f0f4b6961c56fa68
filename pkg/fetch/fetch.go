// Package fetch reads sensor and green-zone records from the configured
// data endpoints.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/1F47E/porto-climate-map/pkg/metrics"
	"github.com/1F47E/porto-climate-map/pkg/models"
	"github.com/1F47E/porto-climate-map/pkg/settings"
)

// StatusError reports a non-2xx answer from a data endpoint.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// Client issues one GET per call. There is no retry and no cache: every
// call returns whatever the endpoint serves right now.
type Client struct {
	http *http.Client
	cfg  *settings.Settings
	log  *slog.Logger
}

// NewClient builds a client for cfg.Data. A nil httpClient gets one with
// cfg.Data.Timeout().
func NewClient(cfg *settings.Settings, httpClient *http.Client, log *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Data.Timeout()}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Client{http: httpClient, cfg: cfg, log: log}
}

// FetchSensors returns the sensors endpoint body decoded as a list.
func (c *Client) FetchSensors(ctx context.Context) ([]models.SensorRecord, error) {
	var out []models.SensorRecord
	if err := c.getJSON(ctx, "sensors", c.cfg.Data.Sensors, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchGreenZones returns the green-zones endpoint body decoded as a list.
func (c *Client) FetchGreenZones(ctx context.Context) ([]models.GreenZoneRecord, error) {
	var out []models.GreenZoneRecord
	if err := c.getJSON(ctx, "greenzones", c.cfg.Data.GreenZones, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) getJSON(ctx context.Context, source, url string, dst any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.FetchRequestsTotal.WithLabelValues(source, outcome).Inc()
		metrics.FetchDurationMs.WithLabelValues(source).Observe(float64(time.Since(start).Milliseconds()))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", source, err)
	}
	req.Header.Set("Accept", "application/json")

	c.log.Debug("fetch_req", "source", source, "url", url)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", source, err)
	}
	c.log.Debug("fetch_resp", "source", source, "status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}
