package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSeverity(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Severity
		hasError bool
	}{
		{name: "upper case name", input: "WARNING", expected: SeverityWarning},
		{name: "lower case name", input: "fatal", expected: SeverityFatal},
		{name: "padded name", input: "  error ", expected: SeverityError},
		{name: "info shorthand", input: "info", expected: SeverityInformation},
		{name: "warn shorthand", input: "WARN", expected: SeverityWarning},
		{name: "named level as integer", input: "3", expected: SeverityInformation},
		{name: "unnamed level", input: "42", expected: Severity(42)},
		{name: "negative level", input: "-1", expected: Severity(-1)},
		{name: "garbage", input: "critical", hasError: true},
		{name: "empty", input: "", hasError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSeverity(tt.input)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestSeverity_Ordering(t *testing.T) {
	ordered := []Severity{
		SeverityNone,
		SeverityVerbose,
		SeverityDebug,
		SeverityInformation,
		SeverityWarning,
		SeverityError,
		SeverityFatal,
	}
	for i := 1; i < len(ordered); i++ {
		assert.Less(t, ordered[i-1], ordered[i], "%s should order below %s", ordered[i-1], ordered[i])
	}
	assert.Greater(t, Severity(10), SeverityFatal)
}

func TestSeverity_String(t *testing.T) {
	assert.Equal(t, "INFORMATION", SeverityInformation.String())
	assert.Equal(t, "NONE", SeverityNone.String())
	assert.Equal(t, "17", Severity(17).String())
}

func TestMaxSeverity(t *testing.T) {
	assert.Equal(t, SeverityNone, MaxSeverity())
	assert.Equal(t, SeverityDebug, MaxSeverity(SeverityDebug))
	assert.Equal(t, SeverityError, MaxSeverity(SeverityInformation, SeverityError, SeverityWarning))
	assert.Equal(t, Severity(9), MaxSeverity(SeverityFatal, Severity(9)))
}

func TestSeverity_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Flag Severity `json:"flag"`
	}{Flag: SeverityWarning})
	require.NoError(t, err)
	assert.JSONEq(t, `{"flag":"WARNING"}`, string(data))

	var fromName struct {
		Flag Severity `json:"flag"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"flag":"error"}`), &fromName))
	assert.Equal(t, SeverityError, fromName.Flag)

	var fromNumber struct {
		Flag Severity `json:"flag"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"flag": 6}`), &fromNumber))
	assert.Equal(t, SeverityFatal, fromNumber.Flag)

	var bad struct {
		Flag Severity `json:"flag"`
	}
	assert.Error(t, json.Unmarshal([]byte(`{"flag":"loud"}`), &bad))
}
