package script

import (
	"fmt"
)

// node is an expression tree element.
type node interface {
	eval(sc Scope) (interface{}, error)
}

type (
	literalNode struct{ value interface{} }
	identNode   struct{ name string }
	unaryNode   struct {
		op      string
		operand node
	}
	binaryNode struct {
		op          string
		left, right node
	}
	ternaryNode struct {
		cond, then, otherwise node
	}
)

type parser struct {
	toks []token
	pos  int
}

// parse builds the expression tree for src.
func parse(src string) (node, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	n, err := p.ternary()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q at offset %d", tok.text, tok.pos)
	}
	return n, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) accept(ops ...string) (string, bool) {
	tok := p.peek()
	if tok.kind != tokOp {
		return "", false
	}
	for _, op := range ops {
		if tok.text == op {
			p.pos++
			return op, true
		}
	}
	return "", false
}

func (p *parser) expect(op string) error {
	if _, ok := p.accept(op); ok {
		return nil
	}
	tok := p.peek()
	if tok.kind == tokEOF {
		return fmt.Errorf("expected %q at end of expression", op)
	}
	return fmt.Errorf("expected %q at offset %d", op, tok.pos)
}

func (p *parser) ternary() (node, error) {
	cond, err := p.binary(0)
	if err != nil {
		return nil, err
	}
	if _, ok := p.accept("?"); !ok {
		return cond, nil
	}
	then, err := p.ternary()
	if err != nil {
		return nil, err
	}
	if err := p.expect(":"); err != nil {
		return nil, err
	}
	otherwise, err := p.ternary()
	if err != nil {
		return nil, err
	}
	return &ternaryNode{cond: cond, then: then, otherwise: otherwise}, nil
}

// precedence levels, loosest first
var binaryLevels = [][]string{
	{"||"},
	{"&&"},
	{"==", "!="},
	{"<", "<=", ">", ">="},
	{"+", "-"},
	{"*", "/", "%"},
}

func (p *parser) binary(level int) (node, error) {
	if level == len(binaryLevels) {
		return p.unary()
	}
	left, err := p.binary(level + 1)
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.accept(binaryLevels[level]...)
		if !ok {
			return left, nil
		}
		right, err := p.binary(level + 1)
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) unary() (node, error) {
	if op, ok := p.accept("-", "!"); ok {
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, operand: operand}, nil
	}
	return p.primary()
}

func (p *parser) primary() (node, error) {
	tok := p.peek()
	switch tok.kind {
	case tokNumber:
		p.pos++
		return &literalNode{value: tok.num}, nil
	case tokString:
		p.pos++
		return &literalNode{value: tok.text}, nil
	case tokIdent:
		p.pos++
		switch tok.text {
		case "true":
			return &literalNode{value: true}, nil
		case "false":
			return &literalNode{value: false}, nil
		case "null":
			return &literalNode{value: nil}, nil
		}
		return &identNode{name: tok.text}, nil
	case tokOp:
		if tok.text == "(" {
			p.pos++
			inner, err := p.ternary()
			if err != nil {
				return nil, err
			}
			if err := p.expect(")"); err != nil {
				return nil, err
			}
			return inner, nil
		}
		return nil, fmt.Errorf("unexpected %q at offset %d", tok.text, tok.pos)
	default:
		return nil, fmt.Errorf("unexpected end of expression")
	}
}
