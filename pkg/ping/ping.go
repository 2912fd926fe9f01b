package ping

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	DefaultProbeTimeout = 10 * time.Second
)

// Client issues lightweight reachability probes against HTTP endpoints.
// Any HTTP response counts as reachable; only transport-level failures
// (DNS, refused connection, timeout) are reported as errors.
type Client struct {
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewClient creates a new reachability probe client
func NewClient() *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: DefaultProbeTimeout,
		},
		logger: logrus.WithField("component", "ping"),
	}
}

// Probe checks whether the endpoint answers at all
func (p *Client) Probe(ctx context.Context, url string) error {
	if url == "" {
		p.logger.Error("Cannot probe: no URL")
		return fmt.Errorf("no URL to probe")
	}

	reqCtx, cancel := context.WithTimeout(ctx, DefaultProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodHead, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create probe request: %w", err)
	}

	start := time.Now()
	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.logger.WithFields(logrus.Fields{
			"url":   url,
			"error": err.Error(),
		}).Warn("Probe request failed")
		return err
	}
	defer resp.Body.Close()

	p.logger.WithFields(logrus.Fields{
		"url":        url,
		"status":     resp.StatusCode,
		"latency_ms": time.Since(start).Milliseconds(),
	}).Debug("Probe request answered")

	return nil
}
