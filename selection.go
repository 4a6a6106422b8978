package detection

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
)

// SelectionItem is one compiled field predicate
type SelectionItem struct {
	Field   string
	Pattern StringMatcher
}

// selectionBlock is one field map - every predicate in the block has to
// match for the block to match
type selectionBlock []SelectionItem

func (b selectionBlock) match(e Event) bool {
	if len(b) == 0 {
		return false
	}
	for _, item := range b {
		val, ok := e.Select(item.Field)
		if !ok {
			return false
		}
		if !matchValue(item.Pattern, val) {
			return false
		}
	}
	return true
}

// Selection is a compiled named selection. The raw YAML shape is decided
// once at load time - a single field map compiles to one block, a list of
// maps compiles to multiple blocks joined with disjunction. An event
// matches the selection when any block fully matches.
type Selection struct {
	Name   string
	blocks []selectionBlock
}

// Match reports whether the event satisfies this selection
// Pure function - absent fields and unexpected value types simply fail to
// match, they never error
func (s *Selection) Match(e Event) bool {
	for _, b := range s.blocks {
		if b.match(e) {
			return true
		}
	}
	return false
}

// NewSelection compiles a raw detection map entry
func NewSelection(name string, expr interface{}, caseSensitive bool) (*Selection, error) {
	switch v := expr.(type) {
	case map[interface{}]interface{}:
		b, err := newSelectionBlock(cleanUpInterfaceMap(v), caseSensitive)
		if err != nil {
			return nil, fmt.Errorf("selection %s: %s", name, err)
		}
		return &Selection{Name: name, blocks: []selectionBlock{b}}, nil
	case map[string]interface{}:
		b, err := newSelectionBlock(v, caseSensitive)
		if err != nil {
			return nil, fmt.Errorf("selection %s: %s", name, err)
		}
		return &Selection{Name: name, blocks: []selectionBlock{b}}, nil
	case []interface{}:
		blocks := make([]selectionBlock, 0, len(v))
		for _, raw := range v {
			var m map[string]interface{}
			switch entry := raw.(type) {
			case map[interface{}]interface{}:
				m = cleanUpInterfaceMap(entry)
			case map[string]interface{}:
				m = entry
			default:
				return nil, ErrInvalidSelectionConstruct{Name: name, Expr: expr}
			}
			b, err := newSelectionBlock(m, caseSensitive)
			if err != nil {
				return nil, fmt.Errorf("selection %s: %s", name, err)
			}
			blocks = append(blocks, b)
		}
		if len(blocks) == 0 {
			return nil, ErrInvalidSelectionConstruct{Name: name, Expr: expr}
		}
		return &Selection{Name: name, blocks: blocks}, nil
	default:
		return nil, ErrInvalidSelectionConstruct{Name: name, Expr: expr}
	}
}

func newSelectionBlock(expr map[string]interface{}, caseSensitive bool) (selectionBlock, error) {
	block := make(selectionBlock, 0, len(expr))
	// iterate keys in stable order so compiled matcher layout is deterministic
	keys := make([]string, 0, len(expr))
	for k := range expr {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		field, mod, all, err := parseFieldKey(key)
		if err != nil {
			return nil, err
		}
		values, err := castPatternValues(key, expr[key])
		if err != nil {
			return nil, err
		}
		pattern, err := NewStringMatcher(mod, !caseSensitive, all, values...)
		if err != nil {
			return nil, err
		}
		block = append(block, SelectionItem{Field: field, Pattern: pattern})
	}
	return block, nil
}

// castPatternValues normalizes a selection value into a non-empty string
// set. Scalars become single element sets, numbers and booleans are
// rendered the same way matchValue renders event values.
func castPatternValues(key string, raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case string:
		return []string{v}, nil
	case int:
		return []string{strconv.Itoa(v)}, nil
	case int64:
		return []string{strconv.FormatInt(v, 10)}, nil
	case float64:
		return []string{formatNumber(v)}, nil
	case bool:
		return []string{strconv.FormatBool(v)}, nil
	case []interface{}:
		if len(v) == 0 {
			return nil, ErrInvalidPredicateValue{Key: key, Msg: "empty value list"}
		}
		tx := make([]string, 0, len(v))
		for _, item := range v {
			switch scalar := item.(type) {
			case string:
				tx = append(tx, scalar)
			case int:
				tx = append(tx, strconv.Itoa(scalar))
			case int64:
				tx = append(tx, strconv.FormatInt(scalar, 10))
			case float64:
				tx = append(tx, formatNumber(scalar))
			case bool:
				tx = append(tx, strconv.FormatBool(scalar))
			default:
				return nil, ErrInvalidPredicateValue{
					Key: key,
					Msg: fmt.Sprintf("unsupported value type %s", reflect.TypeOf(item)),
				}
			}
		}
		return tx, nil
	default:
		if raw == nil {
			return nil, ErrInvalidPredicateValue{Key: key, Msg: "null value"}
		}
		return nil, ErrInvalidPredicateValue{
			Key: key,
			Msg: fmt.Sprintf("unsupported value type %s", reflect.TypeOf(raw)),
		}
	}
}

// matchValue applies a compiled pattern to whatever shape the event field
// has. Multi-valued fields match when any element matches. Numbers and
// booleans are rendered to strings, everything else fails to match.
func matchValue(p StringMatcher, val interface{}) bool {
	switch v := val.(type) {
	case string:
		return p.StringMatch(v)
	case []string:
		for _, item := range v {
			if p.StringMatch(item) {
				return true
			}
		}
		return false
	case []interface{}:
		for _, item := range v {
			if matchValue(p, item) {
				return true
			}
		}
		return false
	case float64:
		// JSON numbers decode as float64
		return p.StringMatch(formatNumber(v))
	case int:
		return p.StringMatch(strconv.Itoa(v))
	case int64:
		return p.StringMatch(strconv.FormatInt(v, 10))
	case uint64:
		return p.StringMatch(strconv.FormatUint(v, 10))
	case bool:
		return p.StringMatch(strconv.FormatBool(v))
	default:
		return false
	}
}

// formatNumber renders whole floats without a fraction, so a rule value 80
// compares equal to a decoded JSON value 80.0
func formatNumber(v float64) string {
	if v == math.Trunc(v) && math.Abs(v) < math.MaxInt64 {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Yaml can have non-string keys, so go-yaml unmarshals to map[interface{}]interface{}
// really annoying
func cleanUpInterfaceMap(rx map[interface{}]interface{}) map[string]interface{} {
	tx := make(map[string]interface{})
	for k, v := range rx {
		tx[fmt.Sprintf("%v", k)] = v
	}
	return tx
}

// selectionSet holds every selection declared by one rule, compiled once
// and addressed by stable integer id. Names are kept sorted so wildcard
// group resolution and reported match sets stay deterministic.
type selectionSet struct {
	names  []string
	items  []*Selection
	lookup map[string]int
}

func newSelectionSet(d Detection, caseSensitive bool) (*selectionSet, error) {
	raw := d.Extract()
	if len(raw) == 0 {
		return nil, ErrEmptyDetection{}
	}
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)
	set := &selectionSet{
		names:  names,
		items:  make([]*Selection, len(names)),
		lookup: make(map[string]int, len(names)),
	}
	for i, name := range names {
		sel, err := NewSelection(name, raw[name], caseSensitive)
		if err != nil {
			return nil, err
		}
		set.items[i] = sel
		set.lookup[name] = i
	}
	return set, nil
}

func (s selectionSet) len() int { return len(s.items) }

func (s selectionSet) get(name string) (int, bool) {
	id, ok := s.lookup[name]
	return id, ok
}

// matching returns ids of selections whose name satisfies the glob, in
// sorted name order
func (s selectionSet) matching(g func(string) bool) []int {
	ids := make([]int, 0)
	for i, name := range s.names {
		if g(name) {
			ids = append(ids, i)
		}
	}
	return ids
}

func (s selectionSet) all() []int {
	ids := make([]int, len(s.items))
	for i := range ids {
		ids[i] = i
	}
	return ids
}
