package health

import (
	"fmt"
	"strings"
)

// Severity is the categorical health verdict. The numeric order is the
// rollup order: OK < Unknown < Warning < Critical. Unknown ranks above OK
// because it means health could not be confirmed.
type Severity int

const (
	OK Severity = iota
	Unknown
	Warning
	Critical
)

var severityNames = [...]string{"OK", "Unknown", "Warning", "Critical"}

func (s Severity) String() string {
	if s < OK || s > Critical {
		return fmt.Sprintf("Severity(%d)", int(s))
	}

	return severityNames[s]
}

// Valid reports whether s is one of the four defined verdicts.
func (s Severity) Valid() bool {
	return s >= OK && s <= Critical
}

func (s Severity) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid severity %d", int(s))
	}

	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v

	return nil
}

// ParseSeverity accepts the canonical names case-insensitively.
func ParseSeverity(s string) (Severity, error) {
	for i, name := range severityNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Severity(i), nil
		}
	}

	return Unknown, fmt.Errorf("unknown severity %q", s)
}

// Max returns the higher-ranked of a and b.
func Max(a, b Severity) Severity {
	if b > a {
		return b
	}

	return a
}

// AtLeast reports whether s ranks at or above threshold.
func (s Severity) AtLeast(threshold Severity) bool {
	return s >= threshold
}
