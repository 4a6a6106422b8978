package detection

import (
	"strconv"
	"strings"

	"github.com/gobwas/glob"
)

var eof = rune(0)

// Item is a lexeme with its source text, the unit of communication between
// lexer and parser.
type Item struct {
	T   Token
	Val string
}

func (i Item) String() string { return i.Val }

// Glob compiles a wildcard identifier for matching against declared
// selection names.
func (i Item) Glob() (glob.Glob, error) {
	return glob.Compile(i.Val)
}

// Count extracts the threshold N from a counted quantifier lexeme, the
// source text of a TokStCount item is always "N of".
func (i Item) Count() (int, error) {
	fields := strings.Fields(i.Val)
	if len(fields) == 0 {
		return 0, ErrInvalidQuantifier{Raw: i.Val}
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 1 {
		return 0, ErrInvalidQuantifier{Raw: i.Val}
	}
	return n, nil
}

// Token classifies a condition lexeme.
type Token int

const (
	TokErr Token = iota

	// internal markers
	TokUnsupp
	TokBegin
	TokNil

	// identifiers
	TokIdentifier
	TokIdentifierWithWildcard
	TokIdentifierAll

	// literals
	TokLitEof

	// separators
	TokSepLpar
	TokSepRpar
	TokSepPipe

	// keywords
	TokKeywordAnd
	TokKeywordOr
	TokKeywordNot
	TokKeywordAgg

	// quantifier statements
	TokStCount
	TokStAll
)

var tokenNames = map[Token]string{
	TokErr:                    "ERR",
	TokUnsupp:                 "UNSUPPORTED",
	TokBegin:                  "BEGINNING",
	TokNil:                    "NIL",
	TokIdentifier:             "IDENT",
	TokIdentifierWithWildcard: "WILDCARDIDENT",
	TokIdentifierAll:          "THEM",
	TokLitEof:                 "EOF",
	TokSepLpar:                "LPAR",
	TokSepRpar:                "RPAR",
	TokSepPipe:                "PIPE",
	TokKeywordAnd:             "AND",
	TokKeywordOr:              "OR",
	TokKeywordNot:             "NOT",
	TokKeywordAgg:             "AGG",
	TokStCount:                "COUNTOF",
	TokStAll:                  "ALLOF",
}

// String is the uppercase debugging name of the token class.
func (t Token) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "Unk"
}

// Literal is the token's plaintext form as written in a rule condition.
func (t Token) Literal() string {
	switch t {
	case TokIdentifier, TokIdentifierWithWildcard:
		return "selection"
	case TokIdentifierAll:
		return "them"
	case TokSepLpar:
		return "("
	case TokSepRpar:
		return ")"
	case TokSepPipe:
		return "|"
	case TokKeywordAnd:
		return "and"
	case TokKeywordOr:
		return "or"
	case TokKeywordNot:
		return "not"
	case TokStAll:
		return "all of"
	case TokStCount:
		return "N of"
	case TokLitEof, TokNil:
		return ""
	default:
		return "Err"
	}
}

// Rune is the single-rune form of a separator token, eof for the rest.
func (t Token) Rune() rune {
	switch t {
	case TokSepLpar:
		return '('
	case TokSepRpar:
		return ')'
	case TokSepPipe:
		return '|'
	default:
		return eof
	}
}

// validPredecessors lists, per token class, which token may legally come
// right before it. TokBegin stands for the start of the expression.
var validPredecessors = map[Token][]Token{
	TokIdentifier: {
		TokBegin, TokSepLpar, TokKeywordAnd, TokKeywordOr, TokKeywordNot,
	},
	TokIdentifierAll: {
		TokStCount, TokStAll,
	},
	TokIdentifierWithWildcard: {
		TokStCount, TokStAll,
	},
	TokStCount: {
		TokBegin, TokSepLpar, TokKeywordAnd, TokKeywordOr, TokKeywordNot,
	},
	TokStAll: {
		TokBegin, TokSepLpar, TokKeywordAnd, TokKeywordOr, TokKeywordNot,
	},
	TokKeywordAnd: {
		TokIdentifier, TokIdentifierAll, TokIdentifierWithWildcard, TokSepRpar,
	},
	TokKeywordOr: {
		TokIdentifier, TokIdentifierAll, TokIdentifierWithWildcard, TokSepRpar,
	},
	TokKeywordNot: {
		TokBegin, TokSepLpar, TokKeywordAnd, TokKeywordOr,
	},
	TokSepLpar: {
		TokBegin, TokSepLpar, TokKeywordAnd, TokKeywordOr, TokKeywordNot,
	},
	TokSepRpar: {
		TokIdentifier, TokIdentifierAll, TokIdentifierWithWildcard, TokSepRpar,
	},
	TokSepPipe: {
		TokIdentifier, TokIdentifierAll, TokIdentifierWithWildcard, TokSepRpar,
	},
	TokLitEof: {
		TokIdentifier, TokIdentifierAll, TokIdentifierWithWildcard, TokSepRpar,
	},
}

// validTokenSequence is a shallow sequence check run during collection, a
// cheap rejection of malformed conditions before the parser builds anything.
func validTokenSequence(prev, next Token) bool {
	for _, t := range validPredecessors[next] {
		if t == prev {
			return true
		}
	}
	return false
}

// genItems replays a collected token slice as a stream so that group
// contents can be parsed recursively with the same entry point.
func genItems(items []Item) <-chan Item {
	tx := make(chan Item, 0)
	go func() {
		defer close(tx)
		for _, item := range items {
			tx <- item
		}
	}()
	return tx
}
