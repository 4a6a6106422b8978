package detection

import (
	"fmt"
	"reflect"
)

// ErrMissingDetection means the rule has no detection map at all
type ErrMissingDetection struct{}

func (e ErrMissingDetection) Error() string { return "rule is missing detection field" }

// ErrEmptyDetection means the detection map exists but declares nothing
type ErrEmptyDetection struct{}

func (e ErrEmptyDetection) Error() string { return "rule has detection field but no selections" }

// ErrMissingCondition means the detection map lacks a condition entry
type ErrMissingCondition struct{}

func (e ErrMissingCondition) Error() string { return "rule detection is missing condition" }

// ErrMissingConditionItem means the condition references a selection name
// that the detection map never declares
type ErrMissingConditionItem struct {
	Key string
}

func (e ErrMissingConditionItem) Error() string {
	return fmt.Sprintf("missing condition identifier %s", e.Key)
}

// ErrEmptyIdentGroup indicates a wildcard identifier group that resolved to
// zero declared selections. Raised at load time, as a quantifier over an
// empty group could never fire and likely points at a rule typo.
type ErrEmptyIdentGroup struct {
	Pattern string
}

func (e ErrEmptyIdentGroup) Error() string {
	return fmt.Sprintf("condition group %s does not match any declared selection", e.Pattern)
}

// ErrInvalidQuantifier indicates a malformed counted quantifier, such as
// a zero or negative threshold
type ErrInvalidQuantifier struct {
	Raw string
}

func (e ErrInvalidQuantifier) Error() string {
	return fmt.Sprintf("invalid quantifier %q, threshold must be a positive integer or keyword all", e.Raw)
}

// ErrInvalidModifier indicates an unrecognized field modifier specifier,
// like TargetFilename|endswth
type ErrInvalidModifier struct {
	Key       string
	Specifier string
}

func (e ErrInvalidModifier) Error() string {
	return fmt.Sprintf("selection key %s has invalid modifier %s", e.Key, e.Specifier)
}

// ErrInvalidRuleID indicates a rule identifier that does not parse as UUID
// Only raised when the loader runs in strict ID mode
type ErrInvalidRuleID struct {
	ID  string
	Err error
}

func (e ErrInvalidRuleID) Error() string {
	return fmt.Sprintf("rule id %q is not a valid UUID: %s", e.ID, e.Err)
}

// ErrInvalidRegex attaches the offending pattern to a regex compile failure
type ErrInvalidRegex struct {
	Pattern string
	Err     error
}

func (e ErrInvalidRegex) Error() string {
	return fmt.Sprintf("regex /%s/: %s", e.Pattern, e.Err)
}

// ErrUnsupportedToken marks a rule that uses condition features outside the
// supported grammar, aggregations mostly. Counted separately from hard
// failures so a bulk load can report them as skipped rather than broken.
type ErrUnsupportedToken struct{ Msg string }

func (e ErrUnsupportedToken) Error() string { return fmt.Sprintf("unsupported token: %s", e.Msg) }

// ErrParseYaml records one undecodable rule file during a bulk load
type ErrParseYaml struct {
	Path  string
	Err   error
	Count int
}

func (e ErrParseYaml) Error() string {
	return fmt.Sprintf("yaml decode %d file %s: %s", e.Count, e.Path, e.Err)
}

// ErrBulkParseYaml collects every undecodable file from a directory walk.
// Large public rule corpora always contain a few broken files, the caller
// decides whether that warrants aborting the whole load.
type ErrBulkParseYaml struct {
	Errs []ErrParseYaml
}

func (e ErrBulkParseYaml) Error() string {
	return fmt.Sprintf("%d rule files failed yaml decode", len(e.Errs))
}

// ErrRuleLoad attaches rule provenance to whatever went wrong while
// compiling a single rule, so bulk load reports can identify the culprit
type ErrRuleLoad struct {
	Path string
	ID   string
	Err  error
}

func (e ErrRuleLoad) Error() string {
	return fmt.Sprintf("rule %s (%s): %s", e.ID, e.Path, e.Err)
}

// Unwrap exposes the underlying load failure
func (e ErrRuleLoad) Unwrap() error { return e.Err }

// ErrInvalidTokenSeq is a condition syntax error, two adjacent lexemes that
// cannot legally follow each other, like two identifiers with no connective
type ErrInvalidTokenSeq struct {
	Prev, Next Item
	Collected  []Item
}

func (e ErrInvalidTokenSeq) Error() string {
	return fmt.Sprintf("syntax error after %d lexemes, %s cannot follow %s (%q after %q)",
		len(e.Collected), e.Next.T, e.Prev.T, e.Next.Val, e.Prev.Val)
}

// ErrIncompleteTokenSeq means the lexeme stream ran dry without a closing
// EOF marker, the condition was cut short mid-expression
type ErrIncompleteTokenSeq struct {
	Expression string
	Items      []Item
	Last       Item
}

func (e ErrIncompleteTokenSeq) Error() string {
	return fmt.Sprintf("condition ended prematurely on token %s with value %q",
		e.Last.T.String(), e.Last.Val)
}

// ErrInvalidSelectionConstruct means a detection entry decoded into a shape
// the compiler does not recognize, neither a field map nor a list of them
type ErrInvalidSelectionConstruct struct {
	Name string
	Expr interface{}
}

func (e ErrInvalidSelectionConstruct) Error() string {
	if e.Expr == nil {
		return fmt.Sprintf("selection %s has invalid structure, got null", e.Name)
	}
	return fmt.Sprintf("selection %s has invalid structure, got %+v of type %s",
		e.Name, e.Expr, reflect.TypeOf(e.Expr).String())
}

// ErrInvalidPredicateValue indicates a selection field value that the
// loader cannot turn into a pattern, such as an empty list or nested map
type ErrInvalidPredicateValue struct {
	Key string
	Msg string
}

func (e ErrInvalidPredicateValue) Error() string {
	return fmt.Sprintf("selection key %s has invalid value: %s", e.Key, e.Msg)
}
