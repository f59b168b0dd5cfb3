// Package metaforge fetches the live event schedule published by
// metaforge.app.
package metaforge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"arcbot/internal/tracker"
	"arcbot/pkg/logx"
)

const (
	DefaultURL       = "https://metaforge.app/api/arc-raiders/events-schedule"
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	DefaultTimeout   = 5 * time.Second

	maxBodyBytes = 4 << 20
)

var ErrInvalidResponse = errors.New("metaforge: invalid response format")

type Config struct {
	URL       string
	UserAgent string
	Timeout   time.Duration
	// RatePerSec caps outgoing requests; 0 disables the limiter.
	RatePerSec float64
}

// Client implements tracker.Source.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
}

var _ tracker.Source = (*Client)(nil)

func New(cfg Config, log logx.Logger) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
	if cfg.RatePerSec > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1)
	}
	return c
}

type scheduleResponse struct {
	Data *[]scheduleItem `json:"data"`
}

type scheduleItem struct {
	Name      string `json:"name"`
	Map       string `json:"map"`
	Icon      string `json:"icon"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
}

// FetchLiveEvents performs one GET against the schedule endpoint.
func (c *Client) FetchLiveEvents(ctx context.Context) ([]tracker.RawEvent, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("metaforge: rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("metaforge: build request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("metaforge: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("metaforge: unexpected status %s", resp.Status)
	}

	var body scheduleResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if body.Data == nil {
		return nil, fmt.Errorf("%w: missing data", ErrInvalidResponse)
	}

	items := *body.Data
	out := make([]tracker.RawEvent, 0, len(items))
	for _, it := range items {
		out = append(out, tracker.RawEvent{
			Name:    it.Name,
			Map:     it.Map,
			Icon:    it.Icon,
			StartMs: it.StartTime,
			EndMs:   it.EndTime,
		})
	}
	c.log.Debug("fetched live schedule",
		logx.Int("events", len(out)),
		logx.Duration("took", time.Since(start)),
	)
	return out, nil
}
