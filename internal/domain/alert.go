package domain

import (
	"time"

	"github.com/google/uuid"
)

// Severity is the ordinal distance of a reading from its normal range.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Status is the lifecycle state of an alert.
type Status string

const (
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
)

// DefaultLocationName labels alerts whose reading had no location label.
const DefaultLocationName = "Location"

// AlertLocation is the named coordinate pair an alert is keyed on.
type AlertLocation struct {
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Alert is a standing record that a parameter at a location is out of range.
type Alert struct {
	ID        string        `json:"id"`
	Parameter Parameter     `json:"parameter"`
	Value     float64       `json:"value"`
	Threshold string        `json:"threshold"`
	Severity  Severity      `json:"severity"`
	Location  AlertLocation `json:"location"`
	Status    Status        `json:"status"`
	Message   string        `json:"message"`
	CreatedAt time.Time     `json:"timestamp"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// AlertDraft is a request to create an active alert.
type AlertDraft struct {
	Parameter Parameter
	Value     float64
	Threshold string
	Severity  Severity
	Location  AlertLocation
	Message   string
}

// NewAlert materializes a draft as an active alert with a fresh ID.
func NewAlert(d AlertDraft) Alert {
	now := clock.Now().UTC()
	return Alert{
		ID:        uuid.NewString(),
		Parameter: d.Parameter,
		Value:     d.Value,
		Threshold: d.Threshold,
		Severity:  d.Severity,
		Location:  d.Location,
		Status:    StatusActive,
		Message:   d.Message,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DraftFor builds the alert draft for a classified reading value.
func DraftFor(r Reading, p Parameter, value float64, sev Severity, locationName string) AlertDraft {
	if locationName == "" {
		locationName = DefaultLocationName
	}
	return AlertDraft{
		Parameter: p,
		Value:     value,
		Threshold: ThresholdText(p),
		Severity:  sev,
		Location:  AlertLocation{Name: locationName, Lat: r.Lat, Lon: r.Lon},
		Message:   Message(p, sev),
	}
}

// DemoAlertDraft is the alert seeded into an empty store for demonstrations.
func DemoAlertDraft() AlertDraft {
	return AlertDraft{
		Parameter: ParamTemperature,
		Value:     31.5,
		Threshold: ThresholdText(ParamTemperature),
		Severity:  SeverityWarning,
		Location:  AlertLocation{Name: "Bay of Bengal", Lat: 14.5, Lon: 82.1},
		Message:   "Heatwave: Sea surface temperature elevated",
	}
}
