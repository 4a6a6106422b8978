package detection

import (
	"fmt"
	"strings"
)

// NodeSimpleAnd is a list of branches connected with logical conjunction
type NodeSimpleAnd []Branch

// Match implements Branch
func (n NodeSimpleAnd) Match(s *Scratch) bool {
	for _, b := range n {
		if !b.Match(s) {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer
func (n NodeSimpleAnd) String() string { return joinBranches(n, TokKeywordAnd) }

// Reduce cleans up unneeded slices
// Static structures can be used if node only holds one or two elements
// Avoids pointless runtime loops
func (n NodeSimpleAnd) Reduce() Branch {
	if len(n) == 1 {
		return n[0]
	}
	if len(n) == 2 {
		return &NodeAnd{L: n[0], R: n[1]}
	}
	return n
}

// NodeSimpleOr is a list of branches connected with logical disjunction
type NodeSimpleOr []Branch

// Match implements Branch
func (n NodeSimpleOr) Match(s *Scratch) bool {
	for _, b := range n {
		if b.Match(s) {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer
func (n NodeSimpleOr) String() string { return joinBranches(n, TokKeywordOr) }

// Reduce cleans up unneeded slices
func (n NodeSimpleOr) Reduce() Branch {
	if len(n) == 1 {
		return n[0]
	}
	if len(n) == 2 {
		return &NodeOr{L: n[0], R: n[1]}
	}
	return n
}

// NodeNot negates a branch
type NodeNot struct {
	B Branch
}

// Match implements Branch
func (n NodeNot) Match(s *Scratch) bool {
	return !n.B.Match(s)
}

// String implements fmt.Stringer
func (n NodeNot) String() string {
	return fmt.Sprintf("not %s", n.B)
}

// NodeAnd is a two element node of a binary tree with Left and Right branches
// connected via logical conjunction
type NodeAnd struct {
	L, R Branch
}

// Match implements Branch
func (n NodeAnd) Match(s *Scratch) bool {
	return n.L.Match(s) && n.R.Match(s)
}

// String implements fmt.Stringer
func (n NodeAnd) String() string {
	return fmt.Sprintf("(%s and %s)", n.L, n.R)
}

// NodeOr is a two element node of a binary tree with Left and Right branches
// connected via logical disjunction
type NodeOr struct {
	L, R Branch
}

// Match implements Branch
func (n NodeOr) Match(s *Scratch) bool {
	return n.L.Match(s) || n.R.Match(s)
}

// String implements fmt.Stringer
func (n NodeOr) String() string {
	return fmt.Sprintf("(%s or %s)", n.L, n.R)
}

// NodeSelection is an AST leaf referring to one declared selection
// Verdict is resolved through scratch, so a selection referenced multiple
// times in one condition is only evaluated once per event
type NodeSelection struct {
	ID   int
	Name string
}

// Match implements Branch
func (n NodeSelection) Match(s *Scratch) bool {
	return s.selection(n.ID)
}

// String implements fmt.Stringer
func (n NodeSelection) String() string { return n.Name }

// NodeQuant is a counted quantifier over a group of selections, i.e.
// "N of group*" or "all of group*". Group membership is resolved when the
// rule is compiled, never per event.
//
// A group holding zero selections can never satisfy the quantifier,
// regardless of threshold. Without that rule a negated quantifier like
// "not 1 of filter*" would silently flip to a vacuous true and disable the
// filter it was meant to apply.
type NodeQuant struct {
	N     int
	All   bool
	Group string
	IDs   []int
}

// Match implements Branch
func (n NodeQuant) Match(s *Scratch) bool {
	if len(n.IDs) == 0 {
		return false
	}
	var hits int
	for _, id := range n.IDs {
		match := s.selection(id)
		if n.All && !match {
			return false
		}
		if match {
			hits++
			if !n.All && hits >= n.N {
				return true
			}
		}
	}
	return n.All
}

// String implements fmt.Stringer
func (n NodeQuant) String() string {
	if n.All {
		return fmt.Sprintf("all of %s", n.Group)
	}
	return fmt.Sprintf("%d of %s", n.N, n.Group)
}

func newNodeNotIfNegated(b Branch, negated bool) Branch {
	if negated {
		return &NodeNot{B: b}
	}
	return b
}

func joinBranches(branches []Branch, sep Token) string {
	parts := make([]string, len(branches))
	for i, b := range branches {
		parts[i] = b.String()
	}
	return "(" + strings.Join(parts, " "+sep.Literal()+" ") + ")"
}
