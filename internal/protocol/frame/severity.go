package frame

import (
	"fmt"
	"strings"
)

// Severity classifies a record. SeverityUnknown only comes out of Decode.
type Severity uint8

const (
	SeverityDebug Severity = iota
	SeverityWarning
	SeverityError
	SeverityUnknown Severity = 0xFF
)

func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "Debug"
	case SeverityWarning:
		return "Warning"
	case SeverityError:
		return "Error"
	default:
		return "Unknown"
	}
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s Severity) code() (byte, bool) {
	switch s {
	case SeverityDebug, SeverityWarning, SeverityError:
		return byte(s), true
	default:
		return 0, false
	}
}

func severityFromCode(c byte) Severity {
	switch c {
	case 0:
		return SeverityDebug
	case 1:
		return SeverityWarning
	case 2:
		return SeverityError
	default:
		return SeverityUnknown
	}
}

// ParseSeverity accepts the String() names case-insensitively, plus "warn".
func ParseSeverity(raw string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return SeverityDebug, nil
	case "warning", "warn":
		return SeverityWarning, nil
	case "error":
		return SeverityError, nil
	case "unknown":
		return SeverityUnknown, nil
	default:
		return SeverityUnknown, fmt.Errorf("frame: unknown severity %q", raw)
	}
}
