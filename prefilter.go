package detection

import (
	"strings"
	"unicode/utf8"

	ahocorasick "github.com/petar-dambovaliev/aho-corasick"
)

// Prefilter is a literal gate over raw event payloads. It derives, per
// rule, a set of anchor literals - strings of which at least one has to be
// present somewhere in the event for the rule to possibly match. When
// every loaded rule yields anchors, a single Aho-Corasick automaton over
// the union can reject an event before it is even decoded.
//
// A rule whose condition can fire without any literal being present (pure
// negation, regex or glob only selections) has no anchors and disables the
// gate, since skipping an event could then suppress a legitimate match.
type Prefilter struct {
	ac       *ahocorasick.AhoCorasick
	patterns []string
	enabled  bool
}

func newPrefilter(rules []*Tree, caseInsensitive bool) *Prefilter {
	dedup := make(map[string]bool)
	patterns := make([]string, 0)
	for _, rule := range rules {
		anchors, ok := branchAnchors(rule.Root, rule.sels)
		if !ok {
			return &Prefilter{}
		}
		for _, a := range anchors {
			if a == "" || dedup[a] {
				continue
			}
			dedup[a] = true
			patterns = append(patterns, a)
		}
	}
	if len(patterns) == 0 {
		return &Prefilter{}
	}
	builder := ahocorasick.NewAhoCorasickBuilder(ahocorasick.Opts{
		AsciiCaseInsensitive: caseInsensitive,
		MatchKind:            ahocorasick.LeftMostLongestMatch,
	})
	ac := builder.Build(patterns)
	return &Prefilter{
		ac:       &ac,
		patterns: patterns,
		enabled:  true,
	}
}

// Enabled reports whether the gate is sound to use for skipping events
func (p *Prefilter) Enabled() bool { return p != nil && p.enabled }

// Patterns reports how many distinct literals back the automaton
func (p *Prefilter) Patterns() int {
	if p == nil {
		return 0
	}
	return len(p.patterns)
}

// Keep reports whether a raw payload is worth decoding and evaluating
// A disabled gate keeps everything
func (p *Prefilter) Keep(data []byte) bool {
	if !p.Enabled() {
		return true
	}
	return len(p.ac.FindAll(string(data))) > 0
}

// branchAnchors derives the anchor literal set of an AST node
// Conjunctions need anchors from any one operand, disjunctions from every
// operand, negations from none - a negated branch matches on absence.
func branchAnchors(b Branch, sels *selectionSet) ([]string, bool) {
	switch node := b.(type) {
	case NodeSelection:
		return selectionAnchors(sels.items[node.ID])
	case NodeAnd:
		return conjunctionAnchors([]Branch{node.L, node.R}, sels)
	case *NodeAnd:
		return conjunctionAnchors([]Branch{node.L, node.R}, sels)
	case NodeSimpleAnd:
		return conjunctionAnchors(node, sels)
	case NodeOr:
		return disjunctionAnchors([]Branch{node.L, node.R}, sels)
	case *NodeOr:
		return disjunctionAnchors([]Branch{node.L, node.R}, sels)
	case NodeSimpleOr:
		return disjunctionAnchors(node, sels)
	case NodeQuant:
		// threshold 1 or higher means at least one member has to be true,
		// so the union over members is sound as long as every member
		// yields anchors
		members := make([]Branch, 0, len(node.IDs))
		for _, id := range node.IDs {
			members = append(members, NodeSelection{ID: id})
		}
		if node.All {
			return conjunctionAnchors(members, sels)
		}
		return disjunctionAnchors(members, sels)
	default:
		// NodeNot and anything unknown
		return nil, false
	}
}

func conjunctionAnchors(branches []Branch, sels *selectionSet) ([]string, bool) {
	for _, b := range branches {
		if anchors, ok := branchAnchors(b, sels); ok {
			return anchors, true
		}
	}
	return nil, false
}

func disjunctionAnchors(branches []Branch, sels *selectionSet) ([]string, bool) {
	if len(branches) == 0 {
		return nil, false
	}
	union := make([]string, 0)
	for _, b := range branches {
		anchors, ok := branchAnchors(b, sels)
		if !ok {
			return nil, false
		}
		union = append(union, anchors...)
	}
	return union, true
}

// selectionAnchors picks, per block, one field whose whole value set is
// literal. Blocks are AND of fields so one field suffices, the selection
// as a whole is OR of blocks so every block has to contribute.
func selectionAnchors(sel *Selection) ([]string, bool) {
	anchors := make([]string, 0)
	for _, block := range sel.blocks {
		var found bool
		for _, item := range block {
			if literals, ok := patternLiterals(item.Pattern); ok {
				anchors = append(anchors, literals...)
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	return anchors, true
}

// patternLiterals extracts raw tokens from literal matchers
// Globs and regular expressions yield nothing, their value sets cannot be
// reduced to required substrings. Tokens that JSON encoding would escape
// (backslashes, quotes, control characters) are also rejected - the gate
// scans encoded payloads where such tokens do not appear verbatim. So are
// non-ASCII tokens, the automaton folds case per ASCII byte while the
// matchers fold full Unicode.
func patternLiterals(p StringMatcher) ([]string, bool) {
	switch pat := p.(type) {
	case ContentPattern:
		return literalToken(pat.Token)
	case PrefixPattern:
		return literalToken(pat.Token)
	case SuffixPattern:
		return literalToken(pat.Token)
	case ContainsPattern:
		return literalToken(pat.Token)
	case StringMatchersConj:
		// conjunction - any single literal member anchors the whole
		for _, m := range pat {
			if literals, ok := patternLiterals(m); ok {
				return literals, true
			}
		}
		return nil, false
	case StringMatchers:
		// disjunction - every member has to be literal
		union := make([]string, 0, len(pat))
		for _, m := range pat {
			literals, ok := patternLiterals(m)
			if !ok {
				return nil, false
			}
			union = append(union, literals...)
		}
		return union, true
	default:
		return nil, false
	}
}

func literalToken(token string) ([]string, bool) {
	if token == "" || strings.ContainsAny(token, "\\\"") {
		return nil, false
	}
	for _, r := range token {
		if r < 0x20 || r >= utf8.RuneSelf {
			return nil, false
		}
	}
	return []string{token}, true
}
