package detection

// Tree represents a fully compiled rule - the condition AST plus the
// selection set it draws verdicts from. Immutable once built, safe for
// concurrent evaluation against distinct events.
type Tree struct {
	Root Branch
	Rule *RuleHandle

	sels *selectionSet
}

// NewTree compiles a rule handle into an evaluable tree
func NewTree(r RuleHandle) (*Tree, error) {
	if r.Detection == nil {
		return nil, ErrMissingDetection{}
	}
	expr, ok := r.Detection["condition"].(string)
	if !ok {
		return nil, ErrMissingCondition{}
	}
	sels, err := newSelectionSet(r.Detection, r.CaseSensitive)
	if err != nil {
		return nil, err
	}
	p := &parser{
		lex:       lex(expr),
		condition: expr,
		sels:      sels,
	}
	if err := p.run(); err != nil {
		return nil, err
	}
	return &Tree{
		Root: p.result,
		Rule: &r,
		sels: sels,
	}, nil
}

// Match reports the bare condition verdict for an event
func (t Tree) Match(e Event) bool {
	if !t.applicable(e) {
		return false
	}
	return t.Root.Match(newScratch(t.sels, e))
}

// Eval checks logsource applicability and then resolves the condition,
// returning a result carrying the names of selections that fired
func (t Tree) Eval(e Event) (*Result, bool) {
	if !t.applicable(e) {
		return nil, false
	}
	s := newScratch(t.sels, e)
	if !t.Root.Match(s) {
		return nil, false
	}
	return &Result{
		ID:                t.Rule.ID,
		Title:             t.Rule.Title,
		Level:             ParseLevel(t.Rule.Level),
		Tags:              t.Rule.Tags,
		MatchedSelections: s.matched(),
	}, true
}

// applicable checks the rule logsource filter against event-declared
// logsource metadata. Events without metadata are always applicable, as
// are rules without a filter.
func (t Tree) applicable(e Event) bool {
	ls, ok := e.(LogSourcer)
	if !ok {
		return true
	}
	return t.Rule.Logsource.matches(ls.LogSource())
}

// Selections lists the names declared by this rule, in sorted order
func (t Tree) Selections() []string {
	tx := make([]string, len(t.sels.names))
	copy(tx, t.sels.names)
	return tx
}

// Condition re-emits the parsed condition in expression grammar
// Re-parsing the output against the same detection map yields an
// equivalent tree
func (t Tree) Condition() string {
	return t.Root.String()
}

// Explanation is an introspection report for one rule and one event,
// exposing every selection verdict regardless of lazy evaluation order
type Explanation struct {
	RuleID     string          `json:"rule_id"`
	Title      string          `json:"title"`
	Condition  string          `json:"condition"`
	Applicable bool            `json:"applicable"`
	Match      bool            `json:"match"`
	Selections map[string]bool `json:"selections"`
}

// Explain evaluates the rule with full selection visibility, for debugging
// why a rule did or did not fire. Slower than Eval, not meant for the hot
// path.
func (t Tree) Explain(e Event) *Explanation {
	ex := &Explanation{
		RuleID:     t.Rule.ID,
		Title:      t.Rule.Title,
		Condition:  t.Condition(),
		Applicable: t.applicable(e),
		Selections: make(map[string]bool, t.sels.len()),
	}
	s := newScratch(t.sels, e)
	for id, name := range t.sels.names {
		ex.Selections[name] = s.selection(id)
	}
	if ex.Applicable {
		ex.Match = t.Root.Match(s)
	}
	return ex
}
