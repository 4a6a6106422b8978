package detection

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gobwas/glob"
)

// TextPatternModifier encodes the field modifier resolved from a selection
// key, e.g. TargetFilename|endswith. Resolved once at rule load, so the hot
// path never parses modifier strings.
type TextPatternModifier int

const (
	// bare field name, exact match
	TextPatternNone TextPatternModifier = iota
	TextPatternContains
	TextPatternPrefix
	TextPatternSuffix
	TextPatternRegex
)

// parseFieldKey splits a selection key into field name and modifier
// Recognized specifiers are contains, startswith, endswith, re and the
// contains|all extension. Anything else is a load-time error.
func parseFieldKey(key string) (field string, mod TextPatternModifier, all bool, err error) {
	if !strings.Contains(key, "|") {
		return key, TextPatternNone, false, nil
	}
	bits := strings.Split(key, "|")
	if length := len(bits); length < 2 || length > 3 {
		return "", TextPatternNone, false, ErrInvalidModifier{Key: key, Specifier: key}
	}
	field = bits[0]
	switch bits[1] {
	case "contains":
		mod = TextPatternContains
		if len(bits) == 3 {
			if bits[2] != "all" {
				return "", TextPatternNone, false, ErrInvalidModifier{Key: key, Specifier: bits[2]}
			}
			all = true
		}
	case "startswith":
		mod = TextPatternPrefix
	case "endswith":
		mod = TextPatternSuffix
	case "re":
		mod = TextPatternRegex
	default:
		return "", TextPatternNone, false, ErrInvalidModifier{Key: key, Specifier: bits[1]}
	}
	if mod != TextPatternContains && len(bits) == 3 {
		return "", TextPatternNone, false, ErrInvalidModifier{Key: key, Specifier: bits[2]}
	}
	return field, mod, all, nil
}

// StringMatcher is a single compiled value pattern, literal, glob or regex
type StringMatcher interface {
	// StringMatch implements StringMatcher
	StringMatch(msg string) bool
}

// NewStringMatcher compiles a value set into a matcher object
// Values within one predicate are joined with logical disjunction unless
// the contains|all extension asks for conjunction. With lower enabled all
// non-regex comparisons are case-insensitive.
func NewStringMatcher(
	mod TextPatternModifier,
	lower, all bool,
	patterns ...string,
) (StringMatcher, error) {
	if len(patterns) == 0 {
		return nil, fmt.Errorf("no patterns defined for matcher object")
	}
	matcher := make([]StringMatcher, 0, len(patterns))
	for _, p := range patterns {
		switch mod {
		case TextPatternRegex:
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, ErrInvalidRegex{Pattern: p, Err: err}
			}
			matcher = append(matcher, RegexPattern{Re: re})
		case TextPatternSuffix:
			if hasGlobMeta(p) {
				g, err := newGlobPattern("*"+p, lower)
				if err != nil {
					return nil, err
				}
				matcher = append(matcher, g)
			} else {
				matcher = append(matcher, SuffixPattern{Token: p, Lowercase: lower})
			}
		case TextPatternPrefix:
			if hasGlobMeta(p) {
				g, err := newGlobPattern(p+"*", lower)
				if err != nil {
					return nil, err
				}
				matcher = append(matcher, g)
			} else {
				matcher = append(matcher, PrefixPattern{Token: p, Lowercase: lower})
			}
		case TextPatternContains:
			if hasGlobMeta(p) {
				g, err := newGlobPattern("*"+p+"*", lower)
				if err != nil {
					return nil, err
				}
				matcher = append(matcher, g)
			} else {
				matcher = append(matcher, ContainsPattern{Token: p, Lowercase: lower})
			}
		default:
			// no explicit modifier - handle non-spec regex and glob values,
			// everything else is literal equality
			if strings.HasPrefix(p, "/") && strings.HasSuffix(p, "/") && len(p) > 1 {
				re, err := regexp.Compile(strings.TrimSuffix(strings.TrimPrefix(p, "/"), "/"))
				if err != nil {
					return nil, ErrInvalidRegex{Pattern: p, Err: err}
				}
				matcher = append(matcher, RegexPattern{Re: re})
			} else if hasGlobMeta(p) {
				g, err := newGlobPattern(p, lower)
				if err != nil {
					return nil, err
				}
				matcher = append(matcher, g)
			} else {
				matcher = append(matcher, ContentPattern{Token: p, Lowercase: lower})
			}
		}
	}
	if len(matcher) == 1 {
		return matcher[0], nil
	}
	if all {
		return StringMatchersConj(matcher).Optimize(), nil
	}
	return StringMatchers(matcher).Optimize(), nil
}

func hasGlobMeta(p string) bool { return strings.ContainsAny(p, "*?") }

// escapeGlob rewrites rule pattern syntax into glob library syntax. Rules
// only know three special bytes - the two wildcards and backslash, which
// escapes a following wildcard or itself. The glob library additionally
// treats brackets and braces as meta characters and wants literal
// backslashes doubled, so a raw Windows path would silently change meaning
// without this pass.
func escapeGlob(str string) string {
	var sb strings.Builder
	sb.Grow(2 * len(str))
	for i := 0; i < len(str); {
		switch c := str[i]; c {
		case '\\':
			j := i
			for j < len(str) && str[j] == '\\' {
				j++
			}
			// paired backslashes are already escaped literals
			for k := 0; k < (j-i)/2; k++ {
				sb.WriteString(`\\`)
			}
			if (j-i)%2 == 1 {
				if j < len(str) && (str[j] == '*' || str[j] == '?') {
					// odd backslash escapes a wildcard, keep as is
					sb.WriteByte('\\')
					sb.WriteByte(str[j])
					j++
				} else {
					// lone backslash is a literal in rule syntax
					sb.WriteString(`\\`)
				}
			}
			i = j
		case '[', ']', '{', '}':
			sb.WriteByte('\\')
			sb.WriteByte(c)
			i++
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String()
}

func newGlobPattern(p string, lower bool) (StringMatcher, error) {
	if lower {
		p = strings.ToLower(p)
	}
	g, err := glob.Compile(escapeGlob(p))
	if err != nil {
		return nil, err
	}
	return GlobPattern{Glob: g, Lowercase: lower}, nil
}

// StringMatchers is a disjunction, a value list in a rule means any of the
// alternatives may match
type StringMatchers []StringMatcher

// StringMatch implements StringMatcher
func (s StringMatchers) StringMatch(msg string) bool {
	for _, m := range s {
		if m.StringMatch(msg) {
			return true
		}
	}
	return false
}

// Optimize reorders the alternatives so cheap literal comparisons run
// before globs and globs before regular expressions, first hit short-circuits
func (s StringMatchers) Optimize() StringMatchers {
	return optimizeStringMatchers(s)
}

// StringMatchersConj is similar to StringMatchers but elements are joined
// with conjunction, i.e. all patterns must match
// used to implement the contains|all extension
type StringMatchersConj []StringMatcher

// StringMatch implements StringMatcher
func (s StringMatchersConj) StringMatch(msg string) bool {
	for _, m := range s {
		if !m.StringMatch(msg) {
			return false
		}
	}
	return true
}

// Optimize reorders conjunction members the same way, cheapest first
func (s StringMatchersConj) Optimize() StringMatchersConj {
	return optimizeStringMatchers(s)
}

func optimizeStringMatchers(s []StringMatcher) []StringMatcher {
	globs := make([]StringMatcher, 0)
	re := make([]StringMatcher, 0)
	literals := make([]StringMatcher, 0)
	for _, pat := range s {
		switch pat.(type) {
		case ContentPattern, PrefixPattern, SuffixPattern, ContainsPattern:
			literals = append(literals, pat)
		case GlobPattern:
			globs = append(globs, pat)
		case RegexPattern:
			re = append(re, pat)
		}
	}
	return append(literals, append(globs, re...)...)
}

// ContentPattern is a token for literal equality matching
type ContentPattern struct {
	Token     string
	Lowercase bool
}

// StringMatch implements StringMatcher
func (c ContentPattern) StringMatch(msg string) bool {
	return lowerCaseIfNeeded(msg, c.Lowercase) == lowerCaseIfNeeded(c.Token, c.Lowercase)
}

// PrefixPattern matches the beginning of an event value
type PrefixPattern struct {
	Token     string
	Lowercase bool
}

// StringMatch implements StringMatcher
func (c PrefixPattern) StringMatch(msg string) bool {
	return strings.HasPrefix(
		lowerCaseIfNeeded(msg, c.Lowercase),
		lowerCaseIfNeeded(c.Token, c.Lowercase),
	)
}

// SuffixPattern matches the end of an event value
type SuffixPattern struct {
	Token     string
	Lowercase bool
}

// StringMatch implements StringMatcher
func (c SuffixPattern) StringMatch(msg string) bool {
	return strings.HasSuffix(
		lowerCaseIfNeeded(msg, c.Lowercase),
		lowerCaseIfNeeded(c.Token, c.Lowercase),
	)
}

// ContainsPattern matches a literal substring anywhere in an event value
type ContainsPattern struct {
	Token     string
	Lowercase bool
}

// StringMatch implements StringMatcher
func (c ContainsPattern) StringMatch(msg string) bool {
	return strings.Contains(
		lowerCaseIfNeeded(msg, c.Lowercase),
		lowerCaseIfNeeded(c.Token, c.Lowercase),
	)
}

// RegexPattern is for matching messages with regular expressions
type RegexPattern struct {
	Re *regexp.Regexp
}

// StringMatch implements StringMatcher
func (r RegexPattern) StringMatch(msg string) bool {
	return r.Re.MatchString(msg)
}

// GlobPattern is similar to ContentPattern but allows for asterisk and
// question mark wildcards. Case folding happens at compile time for the
// pattern and per message at match time.
type GlobPattern struct {
	Glob      glob.Glob
	Lowercase bool
}

// StringMatch implements StringMatcher
func (g GlobPattern) StringMatch(msg string) bool {
	return g.Glob.Match(lowerCaseIfNeeded(msg, g.Lowercase))
}

func lowerCaseIfNeeded(str string, lower bool) string {
	if lower {
		return strings.ToLower(str)
	}
	return str
}
