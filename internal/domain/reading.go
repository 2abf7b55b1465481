package domain

import (
	"context"
	"time"
)

// Parameter names a monitored environmental quantity.
type Parameter string

const (
	ParamTemperature Parameter = "temperature"
	ParamSalinity    Parameter = "salinity"
	ParamOxygen      Parameter = "oxygen"
	ParamPH          Parameter = "ph"
)

// Parameters lists every parameter an alert may carry.
var Parameters = []Parameter{ParamTemperature, ParamSalinity, ParamOxygen, ParamPH}

// ParseParameter validates a parameter name. Only exact lowercase names are accepted.
func ParseParameter(s string) (Parameter, bool) {
	switch p := Parameter(s); p {
	case ParamTemperature, ParamSalinity, ParamOxygen, ParamPH:
		return p, true
	default:
		return "", false
	}
}

// Reading is a single environmental observation at a location.
type Reading struct {
	ID          int64     `json:"id,omitempty"`
	Location    string    `json:"location"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Temperature float64   `json:"temp"`
	Rainfall    float64   `json:"rainfall"`
	Wind        float64   `json:"wind"`
	Salinity    *float64  `json:"salinity,omitempty"`
	Oxygen      *float64  `json:"oxygen,omitempty"`
	PH          *float64  `json:"ph,omitempty"`
	Condition   string    `json:"alert,omitempty"`
	ObservedAt  time.Time `json:"timestamp"`
	CreatedAt   time.Time `json:"created_at"`
}

// Value returns the reading's value for p and whether the reading carries it.
// Temperature is always present; the sensor parameters are optional.
func (r Reading) Value(p Parameter) (float64, bool) {
	switch p {
	case ParamTemperature:
		return r.Temperature, true
	case ParamSalinity:
		return deref(r.Salinity)
	case ParamOxygen:
		return deref(r.Oxygen)
	case ParamPH:
		return deref(r.PH)
	default:
		return 0, false
	}
}

func deref(v *float64) (float64, bool) {
	if v == nil {
		return 0, false
	}
	return *v, true
}

// RawReading is an undecoded reading message from a transport.
type RawReading struct {
	Key       []byte
	Value     []byte
	Topic     string
	Partition int
	Offset    int64
	Timestamp time.Time
	Headers   map[string]string
	Commit    func(ctx context.Context) error
}
