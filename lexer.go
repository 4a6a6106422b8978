package detection

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// counted quantifier prefix, "1 of", "2 of", etc; \b keeps "10 offset"
// from matching
var reCountPrefix = regexp.MustCompile(`^\d+ of\b`)

// lexer walks a condition expression rune by rune and streams lexemes to
// the parser over a channel. Modeled as a set of state functions where
// each state returns the next one.
type lexer struct {
	input string
	start int // first rune of the lexeme being accumulated
	pos   int // scan position
	width int // size of the last rune, for backup
	items chan Item
}

func lex(input string) *lexer {
	l := &lexer{
		input: input,
		items: make(chan Item, 0),
	}
	go l.run()
	return l
}

func (l *lexer) run() {
	for state := scanExpr; state != nil; {
		state = state(l)
	}
	close(l.items)
}

func (l *lexer) next() (r rune) {
	if l.pos >= len(l.input) {
		l.width = 0
		return eof
	}
	r, l.width = utf8.DecodeRuneInString(l.rest())
	l.pos += l.width
	return r
}

// backup steps back one rune after the scan has peeked past a lexeme
// boundary.
func (l *lexer) backup() {
	l.pos = l.pos - 1
}

// ignore drops accumulated input without emitting it.
func (l *lexer) ignore() {
	l.start = l.pos
}

// emit hands the accumulated lexeme to the parser and resets accumulation.
func (l *lexer) emit(t Token) {
	l.items <- Item{T: t, Val: l.input[l.start:l.pos]}
	l.ignore()
}

// unsupportedf terminates the scan with a TokUnsupp item carrying the
// reason, the parser turns it into a typed error.
func (l *lexer) unsupportedf(format string, args ...interface{}) scanState {
	l.items <- Item{T: TokUnsupp, Val: fmt.Sprintf(format, args...)}
	return nil
}

func (l lexer) word() string { return l.input[l.start:l.pos] }
func (l lexer) rest() string { return l.input[l.pos:] }

// scanState is one state of the lexer, returns the state to transition to.
type scanState func(*lexer) scanState

func scanExpr(l *lexer) scanState {
	for {
		// quantifier statements contain whitespace so they must be
		// recognized before word accumulation, but only on a lexeme
		// boundary or an identifier like sel_all would trip the check
		if l.pos == l.start {
			if strings.HasPrefix(l.rest(), TokStAll.Literal()) {
				return scanAllOf
			}
			if m := reCountPrefix.FindString(l.rest()); m != "" {
				return scanCountOf(len(m))
			}
		}
		switch r := l.next(); {
		case r == eof:
			return scanEOF
		case r == TokSepRpar.Rune():
			return scanGroupClose
		case r == TokSepLpar.Rune():
			return scanLpar
		case r == TokSepPipe.Rune():
			return scanPipe
		case unicode.IsSpace(r):
			return scanWordEnd
		}
	}
}

func scanAllOf(l *lexer) scanState {
	l.pos += len(TokStAll.Literal())
	l.emit(TokStAll)
	return scanExpr
}

func scanCountOf(width int) scanState {
	return func(l *lexer) scanState {
		l.pos += width
		l.emit(TokStCount)
		return scanExpr
	}
}

func scanEOF(l *lexer) scanState {
	if l.pos > l.start {
		l.emit(keywordOrIdent(l.word()))
	}
	l.emit(TokLitEof)
	return nil
}

// everything after a pipe is an aggregation expression
func scanPipe(l *lexer) scanState {
	l.emit(TokSepPipe)
	return scanAgg
}

func scanAgg(l *lexer) scanState {
	return l.unsupportedf("aggregation expression not supported [%s]", l.input)
}

func scanLpar(l *lexer) scanState {
	l.emit(TokSepLpar)
	return scanExpr
}

// scanGroupClose flushes a lexeme that runs directly into a closing paren,
// like the tail of "(a or b)", then eats whitespace up to the paren itself.
func scanGroupClose(l *lexer) scanState {
	if l.pos > l.start {
		l.backup()
		if t := keywordOrIdent(l.word()); t != TokNil {
			l.emit(t)
		}
		for {
			switch r := l.next(); {
			case r == eof:
				return scanEOF
			case unicode.IsSpace(r):
				l.ignore()
			default:
				return scanRpar
			}
		}
	}
	return scanRpar
}

func scanRpar(l *lexer) scanState {
	l.emit(TokSepRpar)
	return scanExpr
}

func scanWordEnd(l *lexer) scanState {
	l.backup()
	if l.pos > l.start {
		l.emit(keywordOrIdent(l.word()))
	}
	return scanSpace
}

func scanSpace(l *lexer) scanState {
	for {
		switch r := l.next(); {
		case r == eof:
			return scanEOF
		case !unicode.IsSpace(r):
			l.backup()
			return scanExpr
		default:
			l.ignore()
		}
	}
}

// keywordOrIdent classifies an accumulated word. Keywords are matched
// case-insensitively, anything else is a selection identifier.
func keywordOrIdent(in string) Token {
	if len(in) == 0 {
		return TokNil
	}
	switch strings.ToLower(in) {
	case TokKeywordAnd.Literal():
		return TokKeywordAnd
	case TokKeywordOr.Literal():
		return TokKeywordOr
	case TokKeywordNot.Literal():
		return TokKeywordNot
	case "count", "sum", "min", "max", "avg":
		return TokKeywordAgg
	case TokIdentifierAll.Literal():
		return TokIdentifierAll
	default:
		if strings.Contains(in, "*") {
			return TokIdentifierWithWildcard
		}
		return TokIdentifier
	}
}
