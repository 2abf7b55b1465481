package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// readingPayload is the wire shape of a reading published by forecast and
// sensor feeds. Pointer fields distinguish "absent" from zero.
type readingPayload struct {
	Location  string   `json:"location"`
	Lat       *float64 `json:"lat"`
	Lon       *float64 `json:"lon"`
	Temp      *float64 `json:"temp"`
	Rainfall  float64  `json:"rainfall"`
	Wind      float64  `json:"wind"`
	Salinity  *float64 `json:"salinity"`
	Oxygen    *float64 `json:"oxygen"`
	PH        *float64 `json:"ph"`
	Timestamp string   `json:"timestamp"`
}

// ParseRawReading decodes a transport message into a Reading. The message
// timestamp is used as ObservedAt when the payload carries none.
func ParseRawReading(raw RawReading) (Reading, error) {
	return ParseReading(raw.Value, raw.Timestamp)
}

// ParseReading decodes and validates a JSON reading and labels its forecast
// condition. fallback is used as ObservedAt when the payload has no timestamp.
func ParseReading(data []byte, fallback time.Time) (Reading, error) {
	var p readingPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return Reading{}, fmt.Errorf("parse reading: %w", err)
	}
	if p.Lat == nil || p.Lon == nil {
		return Reading{}, errors.New("parse reading: lat and lon are required")
	}
	if p.Temp == nil {
		return Reading{}, errors.New("parse reading: temp is required")
	}
	if *p.Lat < -90 || *p.Lat > 90 || *p.Lon < -180 || *p.Lon > 180 {
		return Reading{}, fmt.Errorf("parse reading: coordinates out of range: %v,%v", *p.Lat, *p.Lon)
	}

	observedAt, err := parseTimestamp(p.Timestamp, fallback)
	if err != nil {
		return Reading{}, err
	}

	r := Reading{
		Location:    strings.TrimSpace(p.Location),
		Lat:         *p.Lat,
		Lon:         *p.Lon,
		Temperature: *p.Temp,
		Rainfall:    p.Rainfall,
		Wind:        p.Wind,
		Salinity:    finiteOrNil(p.Salinity),
		Oxygen:      finiteOrNil(p.Oxygen),
		PH:          finiteOrNil(p.PH),
		ObservedAt:  observedAt,
	}
	r.Condition = ForecastCondition(r.Rainfall, r.Wind)
	return r, nil
}

// parseTimestamp accepts RFC 3339 or a bare forecast date (YYYY-MM-DD, midnight UTC).
func parseTimestamp(s string, fallback time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return fallback.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("parse reading: invalid timestamp %q", s)
}

func finiteOrNil(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}
