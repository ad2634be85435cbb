// Package feed fetches and decodes the GTFS-Realtime vehicle-position and
// trip-update feeds.
package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/logging"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/metrics"
	"github.com/Ruthvik14/Smart-Public-Transport-Delay-Predictor/internal/realtime"
)

type Endpoint string

const (
	VehiclePositions Endpoint = "vehicle_positions"
	TripUpdates      Endpoint = "trip_updates"
)

const (
	DefaultTimeout      = 10 * time.Second
	DefaultMaxBodyBytes = 25 * 1024 * 1024
)

type Config struct {
	VehiclePositionsURL string
	TripUpdatesURL      string
	// Headers are added to every request, typically an API key.
	Headers      map[string]string
	Timeout      time.Duration
	MaxBodyBytes int64
}

// Client fetches one feed per call. It never retries; the next scheduled
// tick is the retry.
type Client struct {
	config     Config
	httpClient *http.Client
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewClient(config Config, m *metrics.Metrics, logger *slog.Logger) *Client {
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		config:     config,
		httpClient: newHTTPClient(config.Timeout),
		metrics:    m,
		logger:     logger.With(slog.String("component", "feed_client")),
	}
}

// newHTTPClient clones http.DefaultTransport so proxy, dialer and HTTP/2
// defaults survive, and caps every request at timeout.
func newHTTPClient(timeout time.Duration) *http.Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConns = 10
	transport.MaxIdleConnsPerHost = 4
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

func (c *Client) url(ep Endpoint) string {
	switch ep {
	case VehiclePositions:
		return c.config.VehiclePositionsURL
	case TripUpdates:
		return c.config.TripUpdatesURL
	default:
		return ""
	}
}

// FetchVehiclePositions fetches and decodes the vehicle-positions feed.
func (c *Client) FetchVehiclePositions(ctx context.Context) ([]realtime.VehiclePosition, error) {
	msg, err := c.Fetch(ctx, VehiclePositions)
	if err != nil {
		return nil, err
	}
	return msg.Vehicles, nil
}

// FetchTripUpdates fetches and decodes the trip-updates feed.
func (c *Client) FetchTripUpdates(ctx context.Context) ([]realtime.TripUpdate, error) {
	msg, err := c.Fetch(ctx, TripUpdates)
	if err != nil {
		return nil, err
	}
	return msg.TripUpdates, nil
}

// Fetch downloads and decodes one feed. Every failure is a *Error.
func (c *Client) Fetch(ctx context.Context, ep Endpoint) (*Message, error) {
	start := time.Now()
	msg, err := c.fetch(ctx, ep)

	if c.metrics != nil {
		c.metrics.FeedFetchesTotal.WithLabelValues(string(ep), outcome(err)).Inc()
		if err == nil {
			c.metrics.FeedEntities.WithLabelValues(string(ep)).Set(float64(msg.Len()))
		}
	}
	if err == nil {
		c.logger.Debug("feed fetched",
			slog.String("endpoint", string(ep)),
			slog.Int("entities", msg.Len()),
			slog.Duration("duration", time.Since(start)))
	}
	return msg, err
}

func (c *Client) fetch(ctx context.Context, ep Endpoint) (*Message, error) {
	source := c.url(ep)
	if source == "" {
		return nil, unavailable(ep, errors.New("no URL configured"))
	}

	body, err := c.download(ctx, ep, source)
	if err != nil {
		return nil, err
	}

	msg, err := Decode(ep, body)
	if err != nil {
		return nil, decodeFailure(ep, err)
	}
	return msg, nil
}

func (c *Client) download(ctx context.Context, ep Endpoint, source string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source, nil)
	if err != nil {
		return nil, unavailable(ep, err)
	}
	for key, value := range c.config.Headers {
		req.Header.Add(key, value)
	}
	req.Header.Set("Accept", "application/x-protobuf, application/octet-stream")
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, unavailable(ep, fmt.Errorf("failed to execute GTFS-RT request: %w", err))
	}
	defer logging.SafeCloseWithLogging(resp.Body, c.logger, "http_response_body")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, unavailable(ep, fmt.Errorf("gtfs-rt fetch failed: %s returned %s", source, resp.Status))
	}

	var reader io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, decodeFailure(ep, fmt.Errorf("invalid gzip body: %w", err))
		}
		defer logging.SafeCloseWithLogging(gz, c.logger, "gzip_reader")
		reader = gz
	}

	limit := c.config.MaxBodyBytes
	body, err := io.ReadAll(io.LimitReader(reader, limit+1))
	if err != nil {
		if errors.Is(err, gzip.ErrChecksum) || errors.Is(err, gzip.ErrHeader) {
			return nil, decodeFailure(ep, err)
		}
		return nil, unavailable(ep, fmt.Errorf("failed to read response body: %w", err))
	}
	if int64(len(body)) > limit {
		return nil, unavailable(ep, fmt.Errorf("GTFS-RT response exceeds size limit of %d bytes", limit))
	}
	return body, nil
}
