package expr

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// SyntaxError reports malformed input at a byte position within the
// expression source.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Msg)
}

// UnknownParameterError reports an identifier with no declaration (during
// validation) or no binding (during evaluation).
type UnknownParameterError struct {
	Name string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("unknown parameter %q", e.Name)
}

// DivisionByZeroError reports a division whose divisor evaluated to zero.
type DivisionByZeroError struct {
	Pos int
}

func (e *DivisionByZeroError) Error() string {
	return fmt.Sprintf("division by zero at position %d", e.Pos)
}

// node is an evaluated AST node. Nodes are immutable after parsing, which
// is what makes the parse cache safe to share across goroutines.
type node interface {
	eval(bindings map[string]decimal.Decimal) (decimal.Decimal, error)
	identifiers(into map[string]struct{})
}

type numberNode struct {
	value decimal.Decimal
}

func (n numberNode) eval(map[string]decimal.Decimal) (decimal.Decimal, error) {
	return n.value, nil
}

func (n numberNode) identifiers(map[string]struct{}) {}

type identNode struct {
	name string
}

func (n identNode) eval(bindings map[string]decimal.Decimal) (decimal.Decimal, error) {
	v, ok := bindings[n.name]
	if !ok {
		return decimal.Zero, &UnknownParameterError{Name: n.name}
	}
	return v, nil
}

func (n identNode) identifiers(into map[string]struct{}) { into[n.name] = struct{}{} }

type unaryNode struct {
	operand node
}

func (n unaryNode) eval(bindings map[string]decimal.Decimal) (decimal.Decimal, error) {
	v, err := n.operand.eval(bindings)
	if err != nil {
		return decimal.Zero, err
	}
	return v.Neg(), nil
}

func (n unaryNode) identifiers(into map[string]struct{}) { n.operand.identifiers(into) }

type binaryNode struct {
	op    tokenType
	pos   int
	left  node
	right node
}

func (n binaryNode) eval(bindings map[string]decimal.Decimal) (decimal.Decimal, error) {
	l, err := n.left.eval(bindings)
	if err != nil {
		return decimal.Zero, err
	}
	r, err := n.right.eval(bindings)
	if err != nil {
		return decimal.Zero, err
	}
	switch n.op {
	case tokenPlus:
		return l.Add(r), nil
	case tokenMinus:
		return l.Sub(r), nil
	case tokenStar:
		return l.Mul(r), nil
	default:
		if r.IsZero() {
			return decimal.Zero, &DivisionByZeroError{Pos: n.pos}
		}
		return l.Div(r), nil
	}
}

func (n binaryNode) identifiers(into map[string]struct{}) {
	n.left.identifiers(into)
	n.right.identifiers(into)
}

// parser is a recursive-descent parser over the token stream with the
// grammar:
//
//	expression = term { ("+" | "-") term }
//	term       = unary { ("*" | "/") unary }
//	unary      = "-" unary | primary
//	primary    = number | identifier | "(" expression ")"
type parser struct {
	tokens []token
	pos    int
}

func parse(input string) (node, error) {
	tokens, err := tokenize(input)
	if err != nil {
		return nil, err
	}
	p := &parser{tokens: tokens}
	root, err := p.parseExpression()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.typ != tokenEOF {
		return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %s after expression", tok)}
	}
	return root, nil
}

func (p *parser) peek() token { return p.tokens[p.pos] }

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.typ != tokenEOF {
		p.pos++
	}
	return tok
}

func (p *parser) parseExpression() (node, error) {
	left, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.typ != tokenPlus && tok.typ != tokenMinus {
			return left, nil
		}
		p.next()
		right, err := p.parseTerm()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tok.typ, pos: tok.pos, left: left, right: right}
	}
}

func (p *parser) parseTerm() (node, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		tok := p.peek()
		if tok.typ != tokenStar && tok.typ != tokenSlash {
			return left, nil
		}
		p.next()
		right, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: tok.typ, pos: tok.pos, left: left, right: right}
	}
}

func (p *parser) parseUnary() (node, error) {
	if p.peek().typ == tokenMinus {
		p.next()
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryNode{operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	tok := p.next()
	switch tok.typ {
	case tokenNumber:
		value, err := decimal.NewFromString(tok.lit)
		if err != nil {
			return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("malformed number %q", tok.lit)}
		}
		return numberNode{value: value}, nil
	case tokenIdent:
		return identNode{name: tok.lit}, nil
	case tokenLParen:
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		closing := p.next()
		if closing.typ != tokenRParen {
			return nil, &SyntaxError{Pos: closing.pos, Msg: "missing closing parenthesis"}
		}
		return inner, nil
	default:
		return nil, &SyntaxError{Pos: tok.pos, Msg: fmt.Sprintf("unexpected %s", tok)}
	}
}
