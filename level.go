package detection

import "strings"

// Level is rule severity as defined by the rule author
type Level int

const (
	LevelUnknown Level = iota
	LevelInformational
	LevelLow
	LevelMedium
	LevelHigh
	LevelCritical
)

// ParseLevel maps a raw rule level string to typed severity
// Unknown values degrade to LevelUnknown rather than erroring, as severity
// is metadata and has no bearing on match semantics
func ParseLevel(raw string) Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "informational":
		return LevelInformational
	case "low":
		return LevelLow
	case "medium":
		return LevelMedium
	case "high":
		return LevelHigh
	case "critical":
		return LevelCritical
	default:
		return LevelUnknown
	}
}

// MarshalJSON implements json.Marshaler
// Severity is rendered as text, matching the raw rule representation
func (l Level) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.String() + `"`), nil
}

// String implements fmt.Stringer
func (l Level) String() string {
	switch l {
	case LevelInformational:
		return "informational"
	case LevelLow:
		return "low"
	case LevelMedium:
		return "medium"
	case LevelHigh:
		return "high"
	case LevelCritical:
		return "critical"
	default:
		return "unknown"
	}
}
