//go:build mapbox

package mapbox

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/seawhisper/alert-monitor/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the real Mapbox API and require MAPBOX_TOKEN.
// Run with: go test -tags=mapbox ./internal/adapter/mapbox/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Fatal("MAPBOX_TOKEN must be set to run smoke tests")
	}
	return NewClient(token, 10*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)), observability.NewMetricsForTesting())
}

func TestSmoke_ReverseGeocode_Coastal(t *testing.T) {
	c := smokeClient(t)

	result, err := c.ReverseGeocode(context.Background(), 13.0827, 80.2707)
	require.NoError(t, err)

	assert.Contains(t, result.FormattedAddress, "Chennai")
	assert.NotEmpty(t, result.PlaceName)
	assert.Greater(t, result.Confidence, 0.0)
}

func TestSmoke_ReverseGeocode_OpenOcean(t *testing.T) {
	c := smokeClient(t)

	// Open water may have no match; either way the call must succeed.
	_, err := c.ReverseGeocode(context.Background(), -30.0, 80.0)
	require.NoError(t, err)
}

func TestSmoke_CachedGeocoder(t *testing.T) {
	m := observability.NewMetricsForTesting()
	cached := NewCachedGeocoder(smokeClient(t), 10, m)

	first, err := cached.ReverseGeocode(context.Background(), 13.0827, 80.2707)
	require.NoError(t, err)
	second, err := cached.ReverseGeocode(context.Background(), 13.0827, 80.2707)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, cached.Len())
}
