package domain

import (
	"context"
	"log/slog"
	"strings"
)

// LocationName picks the name an alert for r is filed under. A non-empty
// reading label always wins. Otherwise the geocoder is asked for a place name,
// and DefaultLocationName is used when there is no geocoder, the lookup fails
// or the provider has no match (graceful degradation).
func LocationName(ctx context.Context, r Reading, geocoder Geocoder, logger *slog.Logger) string {
	if name := strings.TrimSpace(r.Location); name != "" {
		return name
	}
	if geocoder == nil {
		return DefaultLocationName
	}

	result, err := geocoder.ReverseGeocode(ctx, r.Lat, r.Lon)
	if err != nil {
		logger.Warn("reverse geocoding failed",
			"lat", r.Lat,
			"lon", r.Lon,
			"error", err,
		)
		return DefaultLocationName
	}
	if result.PlaceName != "" {
		return result.PlaceName
	}
	if result.FormattedAddress != "" {
		return result.FormattedAddress
	}
	return DefaultLocationName
}
