package rule

import (
	"fmt"
	"strings"
)

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokNumber
	tokOp
	tokAnd
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokString
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func isLetter(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isIdent(s string) bool {
	if s == "" || !isLetter(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isLetter(s[i]) && !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func lex(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case isLetter(c):
			start := i
			for i < len(src) && (isLetter(src[i]) || isDigit(src[i])) {
				i++
			}
			word := src[start:i]
			if strings.EqualFold(word, "and") {
				toks = append(toks, token{tokAnd, word, start})
			} else {
				toks = append(toks, token{tokIdent, word, start})
			}

		case isDigit(c) || c == '.' || ((c == '-' || c == '+') && i+1 < len(src) && (isDigit(src[i+1]) || src[i+1] == '.')):
			start := i
			i = scanNumber(src, i)
			toks = append(toks, token{tokNumber, src[start:i], start})

		case c == '<' || c == '>':
			if i+1 < len(src) && src[i+1] == '=' {
				toks = append(toks, token{tokOp, src[i : i+2], i})
				i += 2
			} else {
				toks = append(toks, token{tokOp, src[i : i+1], i})
				i++
			}

		case c == '=':
			if i+1 < len(src) && src[i+1] == '=' {
				toks = append(toks, token{tokOp, "==", i})
				i += 2
			} else {
				return nil, &ParseError{Input: src, Pos: i, Msg: "unknown operator \"=\" (use ==)"}
			}

		case c == '!':
			return nil, &ParseError{Input: src, Pos: i, Msg: "unknown operator (negation is not supported)"}

		case c == '&':
			if i+1 < len(src) && src[i+1] == '&' {
				toks = append(toks, token{tokAnd, "&&", i})
				i += 2
			} else {
				toks = append(toks, token{tokAnd, "&", i})
				i++
			}

		case c == '|':
			return nil, &ParseError{Input: src, Pos: i, Msg: "disjunction is not supported"}

		case c == '(':
			toks = append(toks, token{tokLParen, "(", i})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", i})
			i++
		case c == '[':
			toks = append(toks, token{tokLBracket, "[", i})
			i++
		case c == ']':
			toks = append(toks, token{tokRBracket, "]", i})
			i++

		case c == '\'' || c == '"':
			end := strings.IndexByte(src[i+1:], c)
			if end < 0 {
				return nil, &ParseError{Input: src, Pos: i, Msg: "unterminated string"}
			}
			toks = append(toks, token{tokString, src[i+1 : i+1+end], i})
			i += end + 2

		default:
			return nil, &ParseError{Input: src, Pos: i, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	toks = append(toks, token{tokEOF, "", len(src)})
	return toks, nil
}

// scanNumber consumes sign, digits, fraction and exponent starting at i.
func scanNumber(src string, i int) int {
	if src[i] == '-' || src[i] == '+' {
		i++
	}
	for i < len(src) && isDigit(src[i]) {
		i++
	}
	if i < len(src) && src[i] == '.' {
		i++
		for i < len(src) && isDigit(src[i]) {
			i++
		}
	}
	if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
		j := i + 1
		if j < len(src) && (src[j] == '-' || src[j] == '+') {
			j++
		}
		if j < len(src) && isDigit(src[j]) {
			i = j
			for i < len(src) && isDigit(src[i]) {
				i++
			}
		}
	}
	return i
}
