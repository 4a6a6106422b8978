package detection

import "strings"

// GetField is a helper for retreiving nested JSON keys with dot notation
func GetField(key string, data map[string]interface{}) (interface{}, bool) {
	if data == nil {
		return nil, false
	}
	bits := strings.SplitN(key, ".", 2)
	if len(bits) == 0 {
		return nil, false
	}
	if val, ok := data[bits[0]]; ok {
		switch res := val.(type) {
		case map[string]interface{}:
			if len(bits) == 1 {
				return res, ok
			}
			return GetField(bits[1], res)
		default:
			return val, ok
		}
	}
	return nil, false
}

// DynamicMap is a reference Event implementation for arbitrary decoded JSON
type DynamicMap map[string]interface{}

// Select implements Selector
func (d DynamicMap) Select(key string) (interface{}, bool) {
	return GetField(key, d)
}

// ScopedEvent wraps any Event with logsource metadata so that the ruleset
// can pre-filter candidate rules. Zero-value Source fields act as wildcards
// on the rule side, not the event side - a rule that requires a category
// will not match an event that does not declare one.
type ScopedEvent struct {
	Event
	Source Logsource
}

// LogSource implements LogSourcer
func (s ScopedEvent) LogSource() Logsource { return s.Source }
