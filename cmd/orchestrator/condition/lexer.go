package condition

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

type tokenKind int

const (
	tokenEOF tokenKind = iota
	tokenNumber
	tokenString
	tokenBool
	tokenRef
	tokenCompare // == != < <= > >= contains startsWith endsWith
	tokenAnd
	tokenOr
)

type token struct {
	kind tokenKind
	text string  // operator name or reference path
	num  float64 // valid for tokenNumber
	str  string  // valid for tokenString
	b    bool    // valid for tokenBool
	pos  int
}

// lexer splits a predicate expression into tokens. The grammar is small
// enough that a hand-rolled scanner beats pulling in an expression engine,
// and it guarantees no user string ever reaches a general-purpose evaluator.
type lexer struct {
	input string
	pos   int
}

func newLexer(input string) *lexer {
	return &lexer{input: input}
}

func (l *lexer) tokens() ([]token, error) {
	var out []token
	for {
		tok, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, tok)
		if tok.kind == tokenEOF {
			return out, nil
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	if l.pos >= len(l.input) {
		return token{kind: tokenEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.input[l.pos]

	switch {
	case strings.HasPrefix(l.input[l.pos:], "{{"):
		return l.scanRef(start)
	case c == '"' || c == '\'':
		return l.scanString(start, c)
	case c == '-' || unicode.IsDigit(rune(c)):
		return l.scanNumber(start)
	case strings.HasPrefix(l.input[l.pos:], "&&"):
		l.pos += 2
		return token{kind: tokenAnd, text: "&&", pos: start}, nil
	case strings.HasPrefix(l.input[l.pos:], "||"):
		l.pos += 2
		return token{kind: tokenOr, text: "||", pos: start}, nil
	case strings.HasPrefix(l.input[l.pos:], "=="),
		strings.HasPrefix(l.input[l.pos:], "!="),
		strings.HasPrefix(l.input[l.pos:], "<="),
		strings.HasPrefix(l.input[l.pos:], ">="):
		op := l.input[l.pos : l.pos+2]
		l.pos += 2
		return token{kind: tokenCompare, text: op, pos: start}, nil
	case c == '<' || c == '>':
		l.pos++
		return token{kind: tokenCompare, text: string(c), pos: start}, nil
	case unicode.IsLetter(rune(c)):
		return l.scanWord(start)
	default:
		return token{}, fmt.Errorf("unexpected character %q at position %d", c, start)
	}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
}

func (l *lexer) scanRef(start int) (token, error) {
	end := strings.Index(l.input[l.pos:], "}}")
	if end < 0 {
		return token{}, fmt.Errorf("unterminated reference at position %d", start)
	}
	path := strings.TrimSpace(l.input[l.pos+2 : l.pos+end])
	if path == "" {
		return token{}, fmt.Errorf("empty reference at position %d", start)
	}
	l.pos += end + 2
	return token{kind: tokenRef, text: path, pos: start}, nil
}

func (l *lexer) scanString(start int, quote byte) (token, error) {
	l.pos++ // opening quote
	var sb strings.Builder
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if c == '\\' && l.pos+1 < len(l.input) {
			sb.WriteByte(l.input[l.pos+1])
			l.pos += 2
			continue
		}
		if c == quote {
			l.pos++
			return token{kind: tokenString, str: sb.String(), pos: start}, nil
		}
		sb.WriteByte(c)
		l.pos++
	}
	return token{}, fmt.Errorf("unterminated string at position %d", start)
}

func (l *lexer) scanNumber(start int) (token, error) {
	l.pos++ // first digit or minus sign
	for l.pos < len(l.input) {
		c := l.input[l.pos]
		if unicode.IsDigit(rune(c)) || c == '.' {
			l.pos++
			continue
		}
		break
	}
	text := l.input[start:l.pos]
	num, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return token{}, fmt.Errorf("invalid number %q at position %d", text, start)
	}
	return token{kind: tokenNumber, num: num, pos: start}, nil
}

func (l *lexer) scanWord(start int) (token, error) {
	for l.pos < len(l.input) && (unicode.IsLetter(rune(l.input[l.pos])) || unicode.IsDigit(rune(l.input[l.pos]))) {
		l.pos++
	}
	word := l.input[start:l.pos]

	switch word {
	case "true":
		return token{kind: tokenBool, b: true, pos: start}, nil
	case "false":
		return token{kind: tokenBool, b: false, pos: start}, nil
	case "contains", "startsWith", "endsWith":
		return token{kind: tokenCompare, text: word, pos: start}, nil
	default:
		return token{}, fmt.Errorf("unexpected word %q at position %d", word, start)
	}
}
