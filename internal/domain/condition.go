package domain

// Forecast condition labels attached to ingested readings.
const (
	ConditionNormal           = "Normal"
	ConditionHeavyRain        = "Heavy Rain"
	ConditionHighWind         = "High Wind"
	ConditionHeavyRainAndWind = "Heavy Rain & High Wind"
)

const (
	heavyRainProbabilityPct = 70
	highWindKmh             = 80
)

// ForecastCondition labels a forecast from its rainfall probability (percent)
// and average wind speed (km/h).
func ForecastCondition(rainPct, windKmh float64) string {
	heavyRain := rainPct >= heavyRainProbabilityPct
	highWind := windKmh >= highWindKmh
	switch {
	case heavyRain && highWind:
		return ConditionHeavyRainAndWind
	case heavyRain:
		return ConditionHeavyRain
	case highWind:
		return ConditionHighWind
	default:
		return ConditionNormal
	}
}
