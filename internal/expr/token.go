package expr

import (
	"fmt"
	"unicode"
)

type tokenType int

const (
	tokenNumber tokenType = iota
	tokenIdent
	tokenPlus
	tokenMinus
	tokenStar
	tokenSlash
	tokenLParen
	tokenRParen
	tokenEOF
)

type token struct {
	typ tokenType
	lit string
	pos int
}

func (t token) String() string {
	switch t.typ {
	case tokenEOF:
		return "end of expression"
	default:
		return fmt.Sprintf("%q", t.lit)
	}
}

// tokenize splits an expression into tokens. Identifiers follow the
// letter (letter|digit|underscore)* rule; numbers are decimal literals with
// an optional fractional part.
func tokenize(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			i++
		case r == '+':
			tokens = append(tokens, token{tokenPlus, "+", i})
			i++
		case r == '-':
			tokens = append(tokens, token{tokenMinus, "-", i})
			i++
		case r == '*':
			tokens = append(tokens, token{tokenStar, "*", i})
			i++
		case r == '/':
			tokens = append(tokens, token{tokenSlash, "/", i})
			i++
		case r == '(':
			tokens = append(tokens, token{tokenLParen, "(", i})
			i++
		case r == ')':
			tokens = append(tokens, token{tokenRParen, ")", i})
			i++
		case unicode.IsDigit(r):
			start := i
			seenDot := false
			for i < len(runes) && (unicode.IsDigit(runes[i]) || runes[i] == '.') {
				if runes[i] == '.' {
					if seenDot {
						return nil, &SyntaxError{Pos: i, Msg: "malformed number"}
					}
					seenDot = true
				}
				i++
			}
			lit := string(runes[start:i])
			if lit[len(lit)-1] == '.' {
				return nil, &SyntaxError{Pos: start, Msg: fmt.Sprintf("malformed number %q", lit)}
			}
			tokens = append(tokens, token{tokenNumber, lit, start})
		case unicode.IsLetter(r):
			start := i
			for i < len(runes) && (unicode.IsLetter(runes[i]) || unicode.IsDigit(runes[i]) || runes[i] == '_') {
				i++
			}
			tokens = append(tokens, token{tokenIdent, string(runes[start:i]), start})
		default:
			return nil, &SyntaxError{Pos: i, Msg: fmt.Sprintf("invalid character %q", string(r))}
		}
	}
	tokens = append(tokens, token{tokenEOF, "", len(runes)})
	return tokens, nil
}
