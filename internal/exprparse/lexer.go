package exprparse

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokInt
	tokString
	tokPunct
)

type token struct {
	kind tokenKind
	text string // identifier, punctuation, or decoded string literal
	pos  int    // byte offset in the source
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokString:
		return strconv.Quote(t.text)
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

// Multi-character punctuation is matched before single characters.
var punctuation = []string{
	"=>", "==", "!=", "<=", ">=", "&&", "||",
	".", ",", "(", ")", "{", "}", "?", ":", "!", "=", "<", ">",
}

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

		case unicode.IsDigit(r) || (r == '-' && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			i++
			for i < len(src) && isDigit(src[i]) {
				i++
			}
			toks = append(toks, token{kind: tokInt, text: src[start:i], pos: start})

		case r == '"':
			text, n, err := lexString(src[i:])
			if err != nil {
				return nil, &SyntaxError{Pos: i, Message: err.Error()}
			}
			toks = append(toks, token{kind: tokString, text: norm.NFC.String(text), pos: i})
			i += n

		default:
			matched := false
			for _, p := range punctuation {
				if strings.HasPrefix(src[i:], p) {
					toks = append(toks, token{kind: tokPunct, text: p, pos: i})
					i += len(p)
					matched = true
					break
				}
			}
			if !matched {
				return nil, &SyntaxError{Pos: i, Message: fmt.Sprintf("unexpected character %q", r)}
			}
		}
	}
	toks = append(toks, token{kind: tokEOF, pos: len(src)})
	return toks, nil
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// lexString scans a double-quoted literal with Go escape rules and returns
// the decoded text and the number of source bytes consumed.
func lexString(src string) (string, int, error) {
	escaped := false
	for i := 1; i < len(src); i++ {
		switch {
		case escaped:
			escaped = false
		case src[i] == '\\':
			escaped = true
		case src[i] == '"':
			text, err := strconv.Unquote(src[:i+1])
			if err != nil {
				return "", 0, fmt.Errorf("invalid string literal: %w", err)
			}
			return text, i + 1, nil
		}
	}
	return "", 0, fmt.Errorf("unterminated string literal")
}
