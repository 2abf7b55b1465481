// Package mapbox names alert locations by reverse geocoding their coordinates
// with the Mapbox Geocoding API.
package mapbox

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/seawhisper/alert-monitor/internal/domain"
	"github.com/seawhisper/alert-monitor/internal/observability"
)

const (
	defaultBaseURL = "https://api.mapbox.com/geocoding/v5/mapbox.places"
	defaultRetries = 2
)

// Client implements domain.Geocoder.
type Client struct {
	token   string
	http    *resty.Client
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewClient creates a Mapbox reverse geocoding client.
func NewClient(token string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return newClient(token, defaultBaseURL, timeout, defaultRetries, logger, metrics)
}

func newClient(token, baseURL string, timeout time.Duration, retries int, logger *slog.Logger, metrics *observability.Metrics) *Client {
	rc := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err == nil && (r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError)
		}).
		SetHeader("Accept", "application/json")
	return &Client{token: token, http: rc, metrics: metrics, logger: logger}
}

// ReverseGeocode returns the nearest place for the coordinates. No match is
// an empty result, not an error.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) (domain.GeocodingResult, error) {
	// Mapbox uses lon,lat order.
	coord := strconv.FormatFloat(lon, 'f', 6, 64) + "," + strconv.FormatFloat(lat, 'f', 6, 64)

	var body response
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetRawPathParam("coord", coord).
		SetQueryParams(map[string]string{
			"access_token": c.token,
			"limit":        "1",
		}).
		SetResult(&body).
		Get("/{coord}.json")
	c.metrics.GeocodeAPIDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.GeocodingResult{}, fmt.Errorf("reverse geocode request: %w", err)
	}
	if resp.IsError() {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.GeocodingResult{}, fmt.Errorf("mapbox API error: status %d: %s", resp.StatusCode(), resp.String())
	}

	if len(body.Features) == 0 {
		c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		c.logger.Debug("no reverse geocoding match", "lat", lat, "lon", lon)
		return domain.GeocodingResult{}, nil
	}

	c.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	f := body.Features[0]
	return domain.GeocodingResult{
		FormattedAddress: f.PlaceName,
		PlaceName:        f.Text,
		Confidence:       f.Relevance,
	}, nil
}

type response struct {
	Features []feature `json:"features"`
}

type feature struct {
	PlaceName string  `json:"place_name"`
	Text      string  `json:"text"`
	Relevance float64 `json:"relevance"`
}
