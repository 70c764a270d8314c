package guard

import "fmt"

// MaxDepth bounds expression nesting.
const MaxDepth = 64

type parser struct {
	tokens []token
	pos    int
	depth  int
}

// parse compiles src into an AST
func parse(src string) (node, error) {
	tokens, err := tokenize(src)
	if err != nil {
		return nil, err
	}

	p := &parser{tokens: tokens}
	n, err := p.expression()
	if err != nil {
		return nil, err
	}
	if tok := p.peek(); tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %s at position %d", tok, tok.pos)
	}
	return n, nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	if tok.kind != tokEOF {
		p.pos++
	}
	return tok
}

func (p *parser) matchOp(ops ...string) (string, bool) {
	tok := p.peek()
	if tok.kind != tokOperator {
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

func (p *parser) expectOp(op string) error {
	if _, ok := p.matchOp(op); !ok {
		tok := p.peek()
		return fmt.Errorf("expected %q but found %s at position %d", op, tok, tok.pos)
	}
	return nil
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > MaxDepth {
		return fmt.Errorf("expression nested deeper than %d levels", MaxDepth)
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}

func (p *parser) expression() (node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	return p.or()
}

// binaryLevel parses one left-associative precedence level
func (p *parser) binaryLevel(operand func() (node, error), ops ...string) (node, error) {
	left, err := operand()
	if err != nil {
		return nil, err
	}
	for {
		op, ok := p.matchOp(ops...)
		if !ok {
			return left, nil
		}
		right, err := operand()
		if err != nil {
			return nil, err
		}
		left = binaryNode{op: op, left: left, right: right}
	}
}

func (p *parser) or() (node, error) {
	return p.binaryLevel(p.and, "||")
}

func (p *parser) and() (node, error) {
	return p.binaryLevel(p.equality, "&&")
}

func (p *parser) equality() (node, error) {
	return p.binaryLevel(p.comparison, "===", "!==", "==", "!=")
}

func (p *parser) comparison() (node, error) {
	return p.binaryLevel(p.unary, "<=", ">=", "<", ">")
}

func (p *parser) unary() (node, error) {
	if op, ok := p.matchOp("!", "-"); ok {
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()

		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return unaryNode{op: op, operand: operand}, nil
	}
	return p.postfix()
}

func (p *parser) postfix() (node, error) {
	n, err := p.primary()
	if err != nil {
		return nil, err
	}

	for {
		switch {
		case p.peekOp("."):
			p.next()
			tok := p.next()
			if tok.kind != tokIdent {
				return nil, fmt.Errorf("expected property name after '.' at position %d", tok.pos)
			}
			n = memberNode{object: n, name: tok.text}

		case p.peekOp("["):
			p.next()
			index, err := p.expression()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			n = memberNode{object: n, index: index}

		case p.peekOp("("):
			p.next()
			args, err := p.arguments()
			if err != nil {
				return nil, err
			}
			n = callNode{callee: n, args: args}

		default:
			return n, nil
		}
	}
}

func (p *parser) arguments() ([]node, error) {
	var args []node
	if _, ok := p.matchOp(")"); ok {
		return args, nil
	}
	for {
		arg, err := p.expression()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		if _, ok := p.matchOp(")"); ok {
			return args, nil
		}
		if err := p.expectOp(","); err != nil {
			return nil, err
		}
	}
}

func (p *parser) primary() (node, error) {
	tok := p.next()
	switch tok.kind {
	case tokNumber:
		return literalNode{value: tok.num}, nil
	case tokString:
		return literalNode{value: tok.text}, nil
	case tokIdent:
		switch tok.text {
		case "true":
			return literalNode{value: true}, nil
		case "false":
			return literalNode{value: false}, nil
		case "null":
			return literalNode{value: nil}, nil
		case "undefined":
			return literalNode{value: undefined{}}, nil
		}
		return identNode{name: tok.text}, nil
	case tokOperator:
		if tok.text == "(" {
			n, err := p.expression()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return n, nil
		}
	}
	return nil, fmt.Errorf("unexpected %s at position %d", tok, tok.pos)
}

func (p *parser) peekOp(op string) bool {
	tok := p.peek()
	return tok.kind == tokOperator && tok.text == op
}
