package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Boundaries(t *testing.T) {
	cases := []struct {
		param Parameter
		value float64
		want  Severity // empty means no alert
	}{
		{ParamTemperature, 29.9, ""},
		{ParamTemperature, 30.0, ""},
		{ParamTemperature, 30.0001, SeverityWarning},
		{ParamTemperature, 31.5, SeverityWarning},
		{ParamTemperature, 31.9999, SeverityWarning},
		{ParamTemperature, 32.0, SeverityCritical},
		{ParamTemperature, 40.0, SeverityCritical},

		{ParamOxygen, 1.0, SeverityCritical},
		{ParamOxygen, 1.5, SeverityCritical},
		{ParamOxygen, 1.5001, SeverityWarning},
		{ParamOxygen, 1.9999, SeverityWarning},
		{ParamOxygen, 2.0, ""},
		{ParamOxygen, 6.0, ""},

		{ParamSalinity, 29.0, SeverityCritical},
		{ParamSalinity, 29.5, SeverityCritical},
		{ParamSalinity, 29.7, SeverityWarning},
		{ParamSalinity, 30.0, ""},
		{ParamSalinity, 35.0, ""},
		{ParamSalinity, 37.0, ""},
		{ParamSalinity, 37.2, SeverityWarning},
		{ParamSalinity, 37.5, SeverityCritical},
		{ParamSalinity, 38.2, SeverityCritical},

		{ParamPH, 7.5, SeverityCritical},
		{ParamPH, 7.6, SeverityCritical},
		{ParamPH, 7.7, SeverityWarning},
		{ParamPH, 7.8, ""},
		{ParamPH, 8.1, ""},
	}

	for _, tc := range cases {
		got, ok := Classify(tc.param, tc.value)
		if tc.want == "" {
			assert.False(t, ok, "%s=%v should not alert", tc.param, tc.value)
			assert.Empty(t, got)
			continue
		}
		assert.True(t, ok, "%s=%v should alert", tc.param, tc.value)
		assert.Equal(t, tc.want, got, "%s=%v", tc.param, tc.value)
	}
}

func TestClassify_UnknownParameter(t *testing.T) {
	sev, ok := Classify("turbidity", 1000)
	assert.False(t, ok)
	assert.Empty(t, sev)

	sev, ok = Classify("Temperature", 45)
	assert.False(t, ok, "parameter names are case sensitive")
	assert.Empty(t, sev)
}

func TestClassify_NaNNeverAlerts(t *testing.T) {
	for _, p := range Parameters {
		_, ok := Classify(p, math.NaN())
		assert.False(t, ok, p)
	}
}

func TestClassify_Deterministic(t *testing.T) {
	for _, p := range Parameters {
		for v := -5.0; v <= 45; v += 0.25 {
			first, firstOK := Classify(p, v)
			second, secondOK := Classify(p, v)
			assert.Equal(t, first, second)
			assert.Equal(t, firstOK, secondOK)
		}
	}
}

func TestThresholdTextAndMessages(t *testing.T) {
	assert.Equal(t, "> 30°C", ThresholdText(ParamTemperature))
	assert.Equal(t, "Critical heat stress detected", Message(ParamTemperature, SeverityCritical))
	assert.Equal(t, "Temperature near heat stress threshold", Message(ParamTemperature, SeverityWarning))

	for _, p := range Parameters {
		assert.NotEmpty(t, ThresholdText(p), p)
		assert.NotEqual(t, Message(p, SeverityWarning), Message(p, SeverityCritical), p)
	}

	assert.Empty(t, ThresholdText("turbidity"))
	assert.Empty(t, Message("turbidity", SeverityCritical))
}

func TestParseParameter(t *testing.T) {
	p, ok := ParseParameter("ph")
	assert.True(t, ok)
	assert.Equal(t, ParamPH, p)

	_, ok = ParseParameter("rainfall")
	assert.False(t, ok)
}
