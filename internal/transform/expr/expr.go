// Package expr implements the restricted expression language used by
// custom and conditional transformations. Programs operate on a single
// cell value plus caller parameters and can only reach an allow-listed
// set of numeric and text functions. There is no file, network, process
// or reflection capability in the evaluation context.
package expr

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"
)

// Program is a compiled expression ready for repeated evaluation.
type Program struct {
	root node
	src  string
}

// Compile parses the source into a Program. Unknown identifiers and
// unknown functions are rejected here, so a Program that compiles can
// only ever touch the value, the parameters and the builtin functions.
func Compile(src string) (*Program, error) {
	p := &parser{lex: newLexer(src)}
	if err := p.next(); err != nil {
		return nil, err
	}
	root, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, fmt.Errorf("unexpected %q after expression", p.tok.text)
	}
	return &Program{root: root, src: src}, nil
}

// Run evaluates the program against one value. Evaluation never panics;
// type mismatches surface as errors.
func (p *Program) Run(value any, params map[string]any) (any, error) {
	env := &env{value: value, params: params}
	return p.root.eval(env)
}

// Source returns the original expression text.
func (p *Program) Source() string {
	return p.src
}

type env struct {
	value  any
	params map[string]any
}

// ---- lexer ----

type tokKind int

const (
	tokEOF tokKind = iota
	tokNumber
	tokString
	tokIdent
	tokOp
)

type token struct {
	kind tokKind
	text string
	num  float64
}

type lexer struct {
	src []rune
	pos int
}

func newLexer(src string) *lexer {
	return &lexer{src: []rune(src)}
}

var operators = []string{
	"==", "!=", "<=", ">=", "&&", "||",
	"+", "-", "*", "/", "%", "^", "<", ">", "!", "(", ")", ",", ".", "?", ":",
}

func (l *lexer) lex() (token, error) {
	for l.pos < len(l.src) && unicode.IsSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF}, nil
	}
	c := l.src[l.pos]

	if unicode.IsDigit(c) || (c == '.' && l.pos+1 < len(l.src) && unicode.IsDigit(l.src[l.pos+1])) {
		start := l.pos
		for l.pos < len(l.src) && (unicode.IsDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
			l.pos++
		}
		text := string(l.src[start:l.pos])
		n, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return token{}, fmt.Errorf("bad number %q", text)
		}
		return token{kind: tokNumber, text: text, num: n}, nil
	}

	if c == '\'' || c == '"' {
		quote := c
		l.pos++
		var sb strings.Builder
		for l.pos < len(l.src) && l.src[l.pos] != quote {
			if l.src[l.pos] == '\\' && l.pos+1 < len(l.src) {
				l.pos++
			}
			sb.WriteRune(l.src[l.pos])
			l.pos++
		}
		if l.pos >= len(l.src) {
			return token{}, fmt.Errorf("unterminated string")
		}
		l.pos++
		return token{kind: tokString, text: sb.String()}, nil
	}

	if unicode.IsLetter(c) || c == '_' {
		start := l.pos
		for l.pos < len(l.src) && (unicode.IsLetter(l.src[l.pos]) || unicode.IsDigit(l.src[l.pos]) || l.src[l.pos] == '_') {
			l.pos++
		}
		return token{kind: tokIdent, text: string(l.src[start:l.pos])}, nil
	}

	rest := string(l.src[l.pos:])
	for _, op := range operators {
		if strings.HasPrefix(rest, op) {
			l.pos += len(op)
			return token{kind: tokOp, text: op}, nil
		}
	}
	return token{}, fmt.Errorf("unexpected character %q", string(c))
}

// ---- parser ----

type parser struct {
	lex *lexer
	tok token
}

func (p *parser) next() error {
	t, err := p.lex.lex()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) expectOp(op string) error {
	if p.tok.kind != tokOp || p.tok.text != op {
		return fmt.Errorf("expected %q, got %q", op, p.tok.text)
	}
	return p.next()
}

func (p *parser) parseExpr() (node, error) {
	cond, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.tok.kind == tokOp && p.tok.text == "?" {
		if err := p.next(); err != nil {
			return nil, err
		}
		then, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if err := p.expectOp(":"); err != nil {
			return nil, err
		}
		els, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &condNode{cond: cond, then: then, els: els}, nil
	}
	return cond, nil
}

func (p *parser) parseBinary(sub func() (node, error), ops ...string) (node, error) {
	left, err := sub()
	if err != nil {
		return nil, err
	}
	for p.tok.kind == tokOp {
		matched := ""
		for _, op := range ops {
			if p.tok.text == op {
				matched = op
				break
			}
		}
		if matched == "" {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
		right, err := sub()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: matched, left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseOr() (node, error)  { return p.parseBinary(p.parseAnd, "||") }
func (p *parser) parseAnd() (node, error) { return p.parseBinary(p.parseCmp, "&&") }
func (p *parser) parseCmp() (node, error) {
	return p.parseBinary(p.parseAdd, "==", "!=", "<=", ">=", "<", ">")
}
func (p *parser) parseAdd() (node, error) { return p.parseBinary(p.parseMul, "+", "-") }
func (p *parser) parseMul() (node, error) { return p.parseBinary(p.parseUnary, "*", "/", "%", "^") }

func (p *parser) parseUnary() (node, error) {
	if p.tok.kind == tokOp && (p.tok.text == "-" || p.tok.text == "!") {
		op := p.tok.text
		if err := p.next(); err != nil {
			return nil, err
		}
		operand, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &unaryNode{op: op, operand: operand}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (node, error) {
	switch p.tok.kind {
	case tokNumber:
		n := &litNode{val: p.tok.num}
		return n, p.next()
	case tokString:
		n := &litNode{val: p.tok.text}
		return n, p.next()
	case tokIdent:
		name := p.tok.text
		if err := p.next(); err != nil {
			return nil, err
		}
		switch name {
		case "true":
			return &litNode{val: true}, nil
		case "false":
			return &litNode{val: false}, nil
		case "null", "nil":
			return &litNode{val: nil}, nil
		case "value":
			return &valueNode{}, nil
		case "params":
			if p.tok.kind == tokOp && p.tok.text == "." {
				if err := p.next(); err != nil {
					return nil, err
				}
				if p.tok.kind != tokIdent {
					return nil, fmt.Errorf("expected parameter name after params.")
				}
				key := p.tok.text
				return &paramNode{key: key}, p.next()
			}
			return nil, fmt.Errorf("params must be accessed as params.name")
		}
		if p.tok.kind == tokOp && p.tok.text == "(" {
			if _, ok := builtins[name]; !ok {
				return nil, fmt.Errorf("unknown function %q", name)
			}
			if err := p.next(); err != nil {
				return nil, err
			}
			var args []node
			if !(p.tok.kind == tokOp && p.tok.text == ")") {
				for {
					arg, err := p.parseExpr()
					if err != nil {
						return nil, err
					}
					args = append(args, arg)
					if p.tok.kind == tokOp && p.tok.text == "," {
						if err := p.next(); err != nil {
							return nil, err
						}
						continue
					}
					break
				}
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return &callNode{name: name, args: args}, nil
		}
		return nil, fmt.Errorf("unknown identifier %q", name)
	case tokOp:
		if p.tok.text == "(" {
			if err := p.next(); err != nil {
				return nil, err
			}
			inner, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return inner, nil
		}
	}
	return nil, fmt.Errorf("unexpected %q", p.tok.text)
}

// ---- AST ----

type node interface {
	eval(*env) (any, error)
}

type litNode struct{ val any }

func (n *litNode) eval(*env) (any, error) { return n.val, nil }

type valueNode struct{}

func (n *valueNode) eval(e *env) (any, error) { return e.value, nil }

type paramNode struct{ key string }

func (n *paramNode) eval(e *env) (any, error) {
	if e.params == nil {
		return nil, nil
	}
	return e.params[n.key], nil
}

type condNode struct{ cond, then, els node }

func (n *condNode) eval(e *env) (any, error) {
	c, err := n.cond.eval(e)
	if err != nil {
		return nil, err
	}
	if truthy(c) {
		return n.then.eval(e)
	}
	return n.els.eval(e)
}

type unaryNode struct {
	op      string
	operand node
}

func (n *unaryNode) eval(e *env) (any, error) {
	v, err := n.operand.eval(e)
	if err != nil {
		return nil, err
	}
	switch n.op {
	case "-":
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("cannot negate %T", v)
		}
		return -f, nil
	case "!":
		return !truthy(v), nil
	}
	return nil, fmt.Errorf("unknown unary operator %q", n.op)
}

type binaryNode struct {
	op          string
	left, right node
}

func (n *binaryNode) eval(e *env) (any, error) {
	// Short-circuit logical operators.
	if n.op == "&&" || n.op == "||" {
		l, err := n.left.eval(e)
		if err != nil {
			return nil, err
		}
		if n.op == "&&" && !truthy(l) {
			return false, nil
		}
		if n.op == "||" && truthy(l) {
			return true, nil
		}
		r, err := n.right.eval(e)
		if err != nil {
			return nil, err
		}
		return truthy(r), nil
	}

	l, err := n.left.eval(e)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(e)
	if err != nil {
		return nil, err
	}

	switch n.op {
	case "==":
		return equal(l, r), nil
	case "!=":
		return !equal(l, r), nil
	case "<", "<=", ">", ">=":
		return compare(n.op, l, r)
	case "+":
		// String concatenation when either side is a string.
		if ls, ok := l.(string); ok {
			return ls + toString(r), nil
		}
		if rs, ok := r.(string); ok {
			return toString(l) + rs, nil
		}
	}

	lf, lok := toFloat(l)
	rf, rok := toFloat(r)
	if !lok || !rok {
		return nil, fmt.Errorf("operator %q needs numeric operands", n.op)
	}
	switch n.op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return math.Mod(lf, rf), nil
	case "^":
		return math.Pow(lf, rf), nil
	}
	return nil, fmt.Errorf("unknown operator %q", n.op)
}

type callNode struct {
	name string
	args []node
}

func (n *callNode) eval(e *env) (any, error) {
	args := make([]any, len(n.args))
	for i, a := range n.args {
		v, err := a.eval(e)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	fn := builtins[n.name]
	return fn(args)
}
