package detection

import "fmt"

type parser struct {
	// lexeme source for the condition under compilation
	lex *lexer

	tokens []Item
	// previous lexeme, kept to reject illegal adjacency early, two
	// identifiers with no connective between them for instance
	previous Item

	// compiled selections the condition refers to
	sels *selectionSet

	// source text, only kept for error context
	condition string

	// resulting branch that can be collected later
	result Branch
}

func (p *parser) run() error {
	if p.lex == nil {
		return fmt.Errorf("cannot run condition parser, lexer not initialized")
	}
	// Pass 1: collect tokens and do a basic sequence validation
	if err := p.collect(); err != nil {
		return err
	}
	// Pass 2: build the tree
	b, err := newBranch(p.sels, genItems(p.tokens), 0)
	if err != nil {
		return err
	}
	p.result = b
	return nil
}

// collect drains the lexer, validating lexeme adjacency along the way
func (p *parser) collect() error {
	p.previous = Item{T: TokBegin}
	for item := range p.lex.items {
		if item.T == TokUnsupp {
			return ErrUnsupportedToken{Msg: item.Val}
		}
		if !validTokenSequence(p.previous.T, item.T) {
			return ErrInvalidTokenSeq{
				Prev:      p.previous,
				Next:      item,
				Collected: p.tokens,
			}
		}
		if item.T != TokLitEof {
			p.tokens = append(p.tokens, item)
		}
		p.previous = item
	}
	if p.previous.T != TokLitEof {
		return ErrIncompleteTokenSeq{
			Expression: p.condition,
			Items:      p.tokens,
			Last:       p.previous,
		}
	}
	return nil
}

// newBranch builds a binary tree from token stream
// sequence and group validation should be done before invoking newBranch
func newBranch(sels *selectionSet, rx <-chan Item, depth int) (Branch, error) {
	and := make(NodeSimpleAnd, 0)
	or := make(NodeSimpleOr, 0)
	var negated bool
	var quantifier *Item

	for item := range rx {
		switch item.T {
		case TokIdentifier:
			id, ok := sels.get(item.Val)
			if !ok {
				return nil, ErrMissingConditionItem{Key: item.Val}
			}
			and = append(and, newNodeNotIfNegated(NodeSelection{ID: id, Name: item.Val}, negated))
			negated = false
		case TokKeywordAnd:
			// no need to do anything special here
		case TokKeywordOr:
			// fill OR gate with collected AND nodes
			// reduce will strip AND logic if only one token has been collected
			or = append(or, and.Reduce())
			// reset existing AND collector
			and = make(NodeSimpleAnd, 0)
		case TokKeywordNot:
			negated = true
		case TokSepLpar:
			// recursively create new branch and append to existing list
			// then skip to next token after grouping
			b, err := newBranch(sels, genItems(extractGroup(rx)), depth+1)
			if err != nil {
				return nil, err
			}
			and = append(and, newNodeNotIfNegated(b, negated))
			negated = false
		case TokIdentifierAll, TokIdentifierWithWildcard:
			node, err := newQuantNode(sels, quantifier, item)
			if err != nil {
				return nil, err
			}
			and = append(and, newNodeNotIfNegated(node, negated))
			negated = false
			quantifier = nil
		case TokStCount, TokStAll:
			// memorize quantifier statement, the group it applies to is the
			// next token
			q := item
			quantifier = &q
		case TokSepRpar:
			return nil, fmt.Errorf("parser error, should not see %s", TokSepRpar)
		default:
			return nil, ErrUnsupportedToken{
				Msg: fmt.Sprintf("%s | %s", item.T, item.T.Literal()),
			}
		}
	}
	or = append(or, newNodeNotIfNegated(and.Reduce(), negated))

	return or.Reduce(), nil
}

// newQuantNode resolves a quantifier statement and its identifier group to
// a counted quantifier AST node. Group membership is fixed here, at rule
// load, never re-scanned per event.
func newQuantNode(sels *selectionSet, quantifier *Item, ident Item) (Branch, error) {
	if quantifier == nil {
		return nil, fmt.Errorf("invalid group ident %s, missing N of / all of prefix", ident.Val)
	}
	var ids []int
	switch ident.T {
	case TokIdentifierAll:
		ids = sels.all()
	case TokIdentifierWithWildcard:
		g, err := ident.Glob()
		if err != nil {
			return nil, err
		}
		ids = sels.matching(func(name string) bool { return g.Match(name) })
	default:
		return nil, fmt.Errorf("parser error, token %s is not a quantifier group", ident.T)
	}
	if len(ids) == 0 {
		return nil, ErrEmptyIdentGroup{Pattern: ident.Val}
	}
	node := NodeQuant{Group: ident.Val, IDs: ids}
	if quantifier.T == TokStAll {
		node.All = true
		return node, nil
	}
	n, err := quantifier.Count()
	if err != nil {
		return nil, err
	}
	node.N = n
	return node, nil
}

func extractGroup(rx <-chan Item) []Item {
	// fn is called when newBranch hits TokSepLpar
	// it will be consumed, so balance is already 1
	balance := 1
	group := make([]Item, 0)
	for item := range rx {
		if balance > 0 {
			group = append(group, item)
		}
		switch item.T {
		case TokSepLpar:
			balance++
		case TokSepRpar:
			balance--
			if balance == 0 {
				return group[:len(group)-1]
			}
		default:
		}
	}
	return group
}
