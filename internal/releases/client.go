package releases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/packmill/packmill/internal/catalog"
	"github.com/packmill/packmill/internal/config"
	"github.com/packmill/packmill/pkg/ping"
)

// Availability is the result of probing a package artifact.
type Availability int

const (
	// AvailabilityUnknown means the probe could not reach the remote side.
	AvailabilityUnknown Availability = iota
	// Available means the artifact answered and can be downloaded.
	Available
	// Gone means the remote side answered that the artifact no longer
	// exists.
	Gone
)

// Client talks to the release endpoint: channel indexes, artifact
// availability probes and the startup reachability check. Index fetches
// retry transient failures; probes never do, a probe must see the true
// status. All remote traffic shares one rate limiter and the index path a
// circuit breaker.
type Client struct {
	baseURL string
	meta    *http.Client
	probe   *http.Client
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	logger  *logrus.Entry
}

// NewClient creates the release client from the loaded configuration.
func NewClient(cfg *config.Config) *Client {
	log := logrus.WithField("component", "releases")

	retry := retryablehttp.NewClient()
	retry.RetryMax = 3
	retry.RetryWaitMin = 200 * time.Millisecond
	retry.RetryWaitMax = 1 * time.Second
	retry.Logger = nil
	retry.HTTPClient.Timeout = cfg.MetaTimeout()

	// Circuit breaker configuration
	breakerSettings := gobreaker.Settings{
		Name:    "releases-breaker",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warnf("Circuit breaker state changed from %v to %v", from, to)
		},
	}

	limit := rate.Limit(cfg.Releases.RateLimit)
	if limit <= 0 {
		limit = rate.Inf
	}
	burst := cfg.Releases.RateBurst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.Releases.BaseURL, "/"),
		meta:    retry.StandardClient(),
		probe:   &http.Client{Timeout: cfg.MetaTimeout()},
		breaker: gobreaker.NewCircuitBreaker(breakerSettings),
		limiter: rate.NewLimiter(limit, burst),
		logger:  log,
	}
}

// BaseURL returns the configured release endpoint.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) channelURL(ch catalog.Channel) string {
	return fmt.Sprintf("%s/%s.json", c.baseURL, ch)
}

// FetchChannel retrieves and decodes the channel index, mapping entries to
// fresh catalog packages.
func (c *Client) FetchChannel(ctx context.Context, ch catalog.Channel) ([]catalog.Package, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := c.channelURL(ch)
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.fetchIndex(ctx, url)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &ConnectivityError{URL: url, Err: err}
		}
		return nil, err
	}
	index := result.(*channelIndex)

	pkgs := make([]catalog.Package, 0, len(index.Packages))
	for _, entry := range index.Packages {
		pkgs = append(pkgs, catalog.Package{
			Name:    entry.Name,
			Version: entry.Version,
			Date:    entry.Date,
			URL:     entry.URL,
			Build:   catalog.Build{Channel: ch, Variant: entry.Variant},
			Status:  catalog.StatusNew,
			State:   catalog.NewState(),
		})
	}

	c.logger.WithFields(logrus.Fields{
		"channel": ch,
		"count":   len(pkgs),
	}).Debug("Fetched channel index")
	return pkgs, nil
}

func (c *Client) fetchIndex(ctx context.Context, url string) (*channelIndex, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build index request: %w", err)
	}

	resp, err := c.meta.Do(req)
	if err != nil {
		return nil, &ConnectivityError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode >= 500 {
			return nil, &ConnectivityError{URL: url, Err: fmt.Errorf("server returned %s", resp.Status)}
		}
		return nil, fmt.Errorf("fetching %s: unexpected status %s", url, resp.Status)
	}

	var index channelIndex
	if err := json.NewDecoder(resp.Body).Decode(&index); err != nil {
		return nil, fmt.Errorf("failed to decode index %s: %w", url, err)
	}
	return &index, nil
}

// Probe checks whether the artifact at url is still downloadable. A 2xx or
// 3xx answer means available, a 4xx answer means the artifact is gone, and
// everything else leaves the question open with a ConnectivityError.
func (c *Client) Probe(ctx context.Context, url string) (Availability, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return AvailabilityUnknown, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return AvailabilityUnknown, fmt.Errorf("failed to build probe request: %w", err)
	}

	resp, err := c.probe.Do(req)
	if err != nil {
		return AvailabilityUnknown, &ConnectivityError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 400:
		return Available, nil
	case resp.StatusCode < 500:
		c.logger.WithFields(logrus.Fields{
			"url":    url,
			"status": resp.Status,
		}).Info("Artifact no longer available")
		return Gone, nil
	default:
		return AvailabilityUnknown, &ConnectivityError{URL: url, Err: fmt.Errorf("server returned %s", resp.Status)}
	}
}

// CheckConnection verifies the release endpoint is reachable at all.
func (c *Client) CheckConnection(ctx context.Context) error {
	if err := ping.NewClient().Probe(ctx, c.baseURL); err != nil {
		return &ConnectivityError{URL: c.baseURL, Err: err}
	}
	return nil
}
