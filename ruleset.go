package detection

import (
	"fmt"
	"os"
	"sort"

	"github.com/google/uuid"
)

// Config holds the knobs for loading a rule directory tree
type Config struct {
	// root directories for recursive rule search
	// rules must be readable files with yml or yaml suffix
	Directory []string
	// by default, a rule parse fail will simply be counted and collected into
	// Ruleset.Errors
	// these parameters cause an early error return instead
	FailOnRuleParse, FailOnYamlParse bool
	// by default all text matching is case-insensitive, as the bulk of rule
	// content targets path-like Windows fields
	// setting this to true turns exact matching on
	CaseSensitive bool
	// reject rules whose id is present but does not parse as UUID
	StrictID bool
}

func (c Config) validate() error {
	if len(c.Directory) == 0 {
		return fmt.Errorf("missing root directory for detection rules")
	}
	for _, dir := range c.Directory {
		info, err := os.Stat(dir)
		if os.IsNotExist(err) {
			return fmt.Errorf("%s does not exist", dir)
		}
		if !info.IsDir() {
			return fmt.Errorf("%s is not a directory", dir)
		}
	}
	return nil
}

// sourceKey indexes rules by the logsource fields worth pre-filtering on
type sourceKey struct {
	product, category string
}

// Ruleset is an immutable collection of compiled rules with a logsource
// index for candidate lookup. Loading is partial-failure - broken rules
// are counted and collected, good rules still serve.
type Ruleset struct {
	Rules []*Tree
	root  []string

	index map[sourceKey][]int
	byID  map[string]*Tree

	// literal gate over raw payloads, see prefilter.go
	Prefilter *Prefilter

	// load errors in file discovery order, each identifying the rule
	Errors []error

	Total, Ok, Failed, Unsupported int
}

// NewRuleset compiles all rule files under the configured directories
func NewRuleset(c Config) (*Ruleset, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	files, err := NewRuleFileList(c.Directory)
	if err != nil {
		return nil, err
	}
	loadErrs := make([]error, 0)
	var fail, unsupp int
	rules, err := NewRuleList(files, !c.FailOnYamlParse, c.CaseSensitive)
	if err != nil {
		switch e := err.(type) {
		case ErrBulkParseYaml:
			fail += len(e.Errs)
			for _, item := range e.Errs {
				loadErrs = append(loadErrs, item)
			}
		default:
			return nil, err
		}
	}
	set := make([]*Tree, 0, len(rules))
loop:
	for _, raw := range rules {
		if raw.Multipart {
			unsupp++
			loadErrs = append(loadErrs, ErrRuleLoad{
				Path: raw.Path,
				ID:   raw.ID,
				Err:  ErrUnsupportedToken{Msg: "multipart yaml document"},
			})
			continue loop
		}
		if c.StrictID && raw.ID != "" {
			if _, err := uuid.Parse(raw.ID); err != nil {
				fail++
				loadErrs = append(loadErrs, ErrRuleLoad{
					Path: raw.Path,
					ID:   raw.ID,
					Err:  ErrInvalidRuleID{ID: raw.ID, Err: err},
				})
				continue loop
			}
		}
		tree, err := NewTree(raw)
		if err != nil {
			wrapped := ErrRuleLoad{Path: raw.Path, ID: raw.ID, Err: err}
			if c.FailOnRuleParse {
				return nil, wrapped
			}
			switch err.(type) {
			case ErrUnsupportedToken, *ErrUnsupportedToken:
				unsupp++
			default:
				fail++
			}
			loadErrs = append(loadErrs, wrapped)
			continue loop
		}
		set = append(set, tree)
	}
	rs := &Ruleset{
		root:        c.Directory,
		Rules:       set,
		Errors:      loadErrs,
		Failed:      fail,
		Ok:          len(set),
		Unsupported: unsupp,
		Total:       len(files),
	}
	rs.buildIndex()
	rs.Prefilter = newPrefilter(set, !c.CaseSensitive)
	return rs, nil
}

func (r *Ruleset) buildIndex() {
	r.index = make(map[sourceKey][]int)
	r.byID = make(map[string]*Tree, len(r.Rules))
	for i, rule := range r.Rules {
		key := sourceKey{
			product:  rule.Rule.Logsource.Product,
			category: rule.Rule.Logsource.Category,
		}
		r.index[key] = append(r.index[key], i)
		if id := rule.Rule.ID; id != "" {
			if _, seen := r.byID[id]; !seen {
				r.byID[id] = rule
			}
		}
	}
}

// candidates resolves the rule subset worth evaluating for an event
// Events without logsource metadata get the full set. Otherwise four
// bucket lookups cover every wildcard combination of product and category,
// merged back into load order so results stay deterministic.
func (r *Ruleset) candidates(e Event) []int {
	ls, ok := e.(LogSourcer)
	if !ok {
		return r.allRules()
	}
	src := ls.LogSource()
	keys := []sourceKey{
		{src.Product, src.Category},
		{src.Product, ""},
		{"", src.Category},
		{},
	}
	ids := make([]int, 0)
	seen := make(map[sourceKey]bool, len(keys))
	for _, key := range keys {
		if seen[key] {
			continue
		}
		seen[key] = true
		ids = append(ids, r.index[key]...)
	}
	sort.Ints(ids)
	return ids
}

func (r *Ruleset) allRules() []int {
	ids := make([]int, len(r.Rules))
	for i := range ids {
		ids[i] = i
	}
	return ids
}

// Match resolves whether any rule in the set matches the event
func (r *Ruleset) Match(e Event) bool {
	for _, i := range r.candidates(e) {
		if r.Rules[i].Match(e) {
			return true
		}
	}
	return false
}

// EvalAll evaluates an event against every candidate rule, collecting
// results in rule load order
func (r *Ruleset) EvalAll(e Event) (Results, bool) {
	results := make(Results, 0)
	for _, i := range r.candidates(e) {
		if res, match := r.Rules[i].Eval(e); match {
			results = append(results, *res)
		}
	}
	if len(results) > 0 {
		return results, true
	}
	return nil, false
}

// ListSelections exposes the selection names a loaded rule declares
func (r *Ruleset) ListSelections(ruleID string) ([]string, bool) {
	rule, ok := r.byID[ruleID]
	if !ok {
		return nil, false
	}
	return rule.Selections(), true
}

// ExplainMatch produces a full introspection report for one rule and event
func (r *Ruleset) ExplainMatch(ruleID string, e Event) (*Explanation, bool) {
	rule, ok := r.byID[ruleID]
	if !ok {
		return nil, false
	}
	return rule.Explain(e), true
}
