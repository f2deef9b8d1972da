package condition

import (
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp     // < <= > >= == != ! && || -
	tokLParen // (
	tokRParen // )
	tokLBrack // [
	tokRBrack // ]
	tokComma
	tokDot
)

type token struct {
	kind tokenKind
	text string
	num  float64
	pos  int
}

func (t token) String() string {
	if t.kind == tokEOF {
		return "end of expression"
	}
	return strconv.Quote(t.text)
}

// lex splits src into tokens. It fails on any character outside the grammar.
func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		r, size := utf8.DecodeRuneInString(src[i:])
		switch {
		case unicode.IsSpace(r):
			i += size
		case r == '_' || unicode.IsLetter(r):
			start := i
			for i < len(src) {
				r, size = utf8.DecodeRuneInString(src[i:])
				if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				i += size
			}
			toks = append(toks, token{kind: tokIdent, text: src[start:i], pos: start})
		case isDigit(r) || (r == '.' && i+1 < len(src) && isDigit(rune(src[i+1]))):
			start := i
			for i < len(src) && (isDigit(rune(src[i])) || src[i] == '.' || src[i] == '_' ||
				src[i] == 'e' || src[i] == 'E' ||
				((src[i] == '+' || src[i] == '-') && (src[i-1] == 'e' || src[i-1] == 'E'))) {
				i++
			}
			text := src[start:i]
			n, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
			if err != nil {
				return nil, newError(src, start, "invalid number %q", text)
			}
			toks = append(toks, token{kind: tokNumber, text: text, num: n, pos: start})
		case r == '\'' || r == '"':
			s, next, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: s, pos: i})
			i = next
		default:
			tok, ok := lexPunct(src, i)
			if !ok {
				return nil, newError(src, i, "unexpected character %q", r)
			}
			toks = append(toks, tok)
			i += len(tok.text)
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(src)}), nil
}

func lexPunct(src string, i int) (token, bool) {
	two := ""
	if i+1 < len(src) {
		two = src[i : i+2]
	}
	switch two {
	case "<=", ">=", "==", "!=", "&&", "||":
		return token{kind: tokOp, text: two, pos: i}, true
	}
	switch src[i] {
	case '<', '>', '!', '-':
		return token{kind: tokOp, text: src[i : i+1], pos: i}, true
	case '(':
		return token{kind: tokLParen, text: "(", pos: i}, true
	case ')':
		return token{kind: tokRParen, text: ")", pos: i}, true
	case '[':
		return token{kind: tokLBrack, text: "[", pos: i}, true
	case ']':
		return token{kind: tokRBrack, text: "]", pos: i}, true
	case ',':
		return token{kind: tokComma, text: ",", pos: i}, true
	case '.':
		return token{kind: tokDot, text: ".", pos: i}, true
	}
	return token{}, false
}

// lexString reads a quoted string starting at src[start] and returns the
// unescaped value and the offset just past the closing quote.
func lexString(src string, start int) (string, int, error) {
	quote := src[start]
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		switch {
		case c == quote:
			return b.String(), i + 1, nil
		case c == '\\':
			if i+1 >= len(src) {
				return "", 0, newError(src, i, "unterminated escape")
			}
			switch e := src[i+1]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '\'', '"':
				b.WriteByte(e)
			default:
				return "", 0, newError(src, i, "unknown escape \\%c", e)
			}
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, newError(src, start, "unterminated string")
}

func isDigit(r rune) bool { return r >= '0' && r <= '9' }
