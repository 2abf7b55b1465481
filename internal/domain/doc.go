// Package domain models environmental forecast readings and the alerts raised
// when a reading leaves its normal range.
//
// # Readings
//
// A reading is one timestamped observation at a coordinate pair. Forecast
// feeds always carry temperature (°C), rainfall probability (%) and wind
// speed (km/h). Sensor feeds may add salinity (PSU), dissolved oxygen (mg/L)
// and pH. Readings are immutable once ingested; CreatedAt is the ingestion
// time assigned by the store and is what detection windows are computed from.
//
// # Severity bands
//
// Each monitored parameter maps to an ordered list of bands. The first band
// whose predicate matches decides the severity, and critical bands are
// always listed before warning bands:
//
//	temperature: critical v >= 32          | warning 30 < v < 32
//	salinity:    critical v >= 37.5, <= 29.5 | warning 37 < v < 37.5, 29.5 < v < 30
//	oxygen:      critical v <= 1.5         | warning 1.5 < v < 2
//	ph:          critical v <= 7.6         | warning 7.6 < v < 7.8
//
// Band edges are exact. Temperature 30.0 is normal, 30.0001 is a warning and
// 32.0 is critical. An unknown parameter never produces an alert.
//
// # Alert lifecycle
//
// An alert is keyed by (parameter, latitude, longitude) with exact coordinate
// equality. At most one alert per key is active at a time. Detection only
// creates and reads active alerts; resolving is an administrative action and
// frees the key for a new active alert.
//
// # Forecast condition
//
// Ingested readings are labelled with a coarse forecast condition derived from
// rainfall probability and wind speed (see [ForecastCondition]). The label is
// informational and does not feed alerting.
package domain
