package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Severity is a totally ordered analysis outcome level. The named levels below
// cover the levels shipped with the default rules; rule files may use any other
// integer level and it orders numerically against the named ones.
type Severity int

const (
	SeverityNone        Severity = 0
	SeverityVerbose     Severity = 1
	SeverityDebug       Severity = 2
	SeverityInformation Severity = 3
	SeverityWarning     Severity = 4
	SeverityError       Severity = 5
	SeverityFatal       Severity = 6
)

var severityNames = map[Severity]string{
	SeverityNone:        "NONE",
	SeverityVerbose:     "VERBOSE",
	SeverityDebug:       "DEBUG",
	SeverityInformation: "INFORMATION",
	SeverityWarning:     "WARNING",
	SeverityError:       "ERROR",
	SeverityFatal:       "FATAL",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return strconv.Itoa(int(s))
}

// ParseSeverity accepts a level name (case-insensitive) or a decimal level
func ParseSeverity(s string) (Severity, error) {
	trimmed := strings.TrimSpace(s)
	upper := strings.ToUpper(trimmed)
	for level, name := range severityNames {
		if name == upper {
			return level, nil
		}
	}
	// INFO and WARN are accepted as shorthands
	switch upper {
	case "INFO":
		return SeverityInformation, nil
	case "WARN":
		return SeverityWarning, nil
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return SeverityNone, fmt.Errorf("invalid severity %q", s)
	}
	return Severity(n), nil
}

// MarshalText implements encoding.TextMarshaler
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// UnmarshalJSON accepts either a level name or a bare integer
func (s *Severity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var text string
		if err := json.Unmarshal(data, &text); err != nil {
			return err
		}
		return s.UnmarshalText([]byte(text))
	}
	return s.UnmarshalText(data)
}

// MaxSeverity returns the highest of the given levels, or SeverityNone when empty
func MaxSeverity(levels ...Severity) Severity {
	if len(levels) == 0 {
		return SeverityNone
	}
	max := levels[0]
	for _, level := range levels[1:] {
		if level > max {
			max = level
		}
	}
	return max
}
