package detection

// Selector extracts a named field from an arbitrary event
// Key may use dot notation for nested structures, depending on implementation
type Selector interface {
	// Select implements Selector
	Select(key string) (interface{}, bool)
}

// Event is any structured record that rules can be evaluated against
// Emphasis on structured - engine only understands field lookups, so
// callers are responsible for decoding whatever shape their telemetry has
type Event interface {
	Selector
}

// LogSourcer is optionally implemented by events that know which telemetry
// stream produced them. Rules declare a logsource filter and the ruleset
// uses this information for candidate pre-filtering. Events that do not
// implement LogSourcer are evaluated against every loaded rule.
type LogSourcer interface {
	// LogSource implements LogSourcer
	LogSource() Logsource
}

// Branch is a node in the condition abstract syntax tree
// Match resolves the node against per-evaluation scratch state
// String re-emits the node in condition grammar, so that a parsed tree
// can be serialized back to an equivalent expression
type Branch interface {
	// Match implements Branch
	Match(s *Scratch) bool
	// String implements fmt.Stringer
	String() string
}
