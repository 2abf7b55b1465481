package domain

// band is one severity rule for a parameter. Bands are evaluated in order and
// the first match wins.
type band struct {
	match    func(v float64) bool
	severity Severity
}

type parameterRule struct {
	threshold string
	messages  map[Severity]string
	bands     []band
}

// rules is the threshold table. Comparisons are exact at band edges: a band
// written as "> 30" must not become ">= 30".
var rules = map[Parameter]parameterRule{
	ParamTemperature: {
		threshold: "> 30°C",
		messages: map[Severity]string{
			SeverityCritical: "Critical heat stress detected",
			SeverityWarning:  "Temperature near heat stress threshold",
		},
		bands: []band{
			{match: func(v float64) bool { return v >= 32 }, severity: SeverityCritical},
			{match: func(v float64) bool { return v > 30 && v < 32 }, severity: SeverityWarning},
		},
	},
	ParamSalinity: {
		threshold: "outside 30-37 PSU",
		messages: map[Severity]string{
			SeverityCritical: "Critical salinity excursion detected",
			SeverityWarning:  "Salinity near safe range limit",
		},
		bands: []band{
			{match: func(v float64) bool { return v >= 37.5 || v <= 29.5 }, severity: SeverityCritical},
			{match: func(v float64) bool { return (v > 37 && v < 37.5) || (v > 29.5 && v < 30) }, severity: SeverityWarning},
		},
	},
	ParamOxygen: {
		threshold: "< 2 mg/L",
		messages: map[Severity]string{
			SeverityCritical: "Critical hypoxia detected",
			SeverityWarning:  "Dissolved oxygen near hypoxia threshold",
		},
		bands: []band{
			{match: func(v float64) bool { return v <= 1.5 }, severity: SeverityCritical},
			{match: func(v float64) bool { return v > 1.5 && v < 2 }, severity: SeverityWarning},
		},
	},
	ParamPH: {
		threshold: "< 7.8",
		messages: map[Severity]string{
			SeverityCritical: "Critical acidification detected",
			SeverityWarning:  "pH near acidification threshold",
		},
		bands: []band{
			{match: func(v float64) bool { return v <= 7.6 }, severity: SeverityCritical},
			{match: func(v float64) bool { return v > 7.6 && v < 7.8 }, severity: SeverityWarning},
		},
	},
}

// Classify returns the severity of value for parameter p. The boolean is
// false when the value is in range or the parameter is unknown. NaN matches
// no band.
func Classify(p Parameter, value float64) (Severity, bool) {
	rule, ok := rules[p]
	if !ok {
		return "", false
	}
	for _, b := range rule.bands {
		if b.match(value) {
			return b.severity, true
		}
	}
	return "", false
}

// ThresholdText is the human-readable normal-range description for p.
func ThresholdText(p Parameter) string {
	return rules[p].threshold
}

// Message is the alert message for p at severity sev.
func Message(p Parameter, sev Severity) string {
	rule, ok := rules[p]
	if !ok {
		return ""
	}
	return rule.messages[sev]
}
