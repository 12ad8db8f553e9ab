package strategy

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"weex-trading-bot/internal/logging"
)

// RuleStrategy is an operator-defined rule persisted in the database.
type RuleStrategy struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Logic       string `json:"logic"`
	Action      string `json:"action"` // BUY or SELL
	IsActive    bool   `json:"is_active"`
}

// Env holds the only values a rule expression may reference.
type Env struct {
	RSI         float64
	Price       float64
	EMA20       float64
	Volatility  float64
	Trend       string
	VolumeSpike bool
}

func (e Env) lookup(name string) (value, bool) {
	switch name {
	case "rsi":
		return numberValue(e.RSI), true
	case "price":
		return numberValue(e.Price), true
	case "ema_20":
		return numberValue(e.EMA20), true
	case "volatility":
		return numberValue(e.Volatility), true
	case "trend":
		return stringValue(e.Trend), true
	case "volume_spike":
		return boolValue(e.VolumeSpike), true
	case "true":
		return boolValue(true), true
	case "false":
		return boolValue(false), true
	default:
		return value{}, false
	}
}

// TriggeredStrategy is the outcome of a winning rule evaluation.
type TriggeredStrategy struct {
	Name       string
	Action     string
	Confidence float64
	Reason     string
}

// Evaluator evaluates rule strategies against a market snapshot.
// Malformed expressions evaluate to false and never take the loop down.
type Evaluator struct {
	logger *logging.Logger
}

// NewEvaluator creates a rule evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{logger: logging.WithComponent("strategy_evaluator")}
}

// EvaluateAll runs the active strategies in order and returns the first one
// whose logic evaluates true, or nil when none trigger.
func (e *Evaluator) EvaluateAll(strategies []RuleStrategy, env Env) *TriggeredStrategy {
	for _, s := range strategies {
		if !s.IsActive {
			continue
		}
		ok, err := e.Evaluate(s.Logic, env)
		if err != nil {
			e.logger.Warn("Strategy logic rejected", "strategy", s.Name, "error", err)
			continue
		}
		if ok {
			return &TriggeredStrategy{
				Name:       s.Name,
				Action:     strings.ToUpper(s.Action),
				Confidence: 85,
				Reason:     fmt.Sprintf("Strategy '%s' triggered", s.Name),
			}
		}
	}
	return nil
}

// Evaluate parses and evaluates a single boolean expression.
func (e *Evaluator) Evaluate(logic string, env Env) (bool, error) {
	tokens, err := lex(logic)
	if err != nil {
		return false, err
	}

	p := &parser{tokens: tokens}
	node, err := p.parseExpression()
	if err != nil {
		return false, err
	}
	if !p.atEnd() {
		return false, fmt.Errorf("unexpected token %q", p.peek().text)
	}

	v, err := node.eval(env)
	if err != nil {
		return false, err
	}
	if v.kind != kindBool {
		return false, fmt.Errorf("expression is not boolean")
	}
	return v.b, nil
}

// ----------------------------------------------------------------------------
// values
// ----------------------------------------------------------------------------

type valueKind int

const (
	kindNumber valueKind = iota
	kindString
	kindBool
)

type value struct {
	kind valueKind
	n    float64
	s    string
	b    bool
}

func numberValue(n float64) value { return value{kind: kindNumber, n: n} }
func stringValue(s string) value  { return value{kind: kindString, s: s} }
func boolValue(b bool) value      { return value{kind: kindBool, b: b} }

// ----------------------------------------------------------------------------
// lexer
// ----------------------------------------------------------------------------

type tokenType int

const (
	tokIdent tokenType = iota
	tokNumber
	tokString
	tokOp     // comparison operators
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
)

type token struct {
	typ  tokenType
	text string
}

func lex(input string) ([]token, error) {
	var tokens []token
	runes := []rune(input)
	i := 0

	for i < len(runes) {
		r := runes[i]

		switch {
		case unicode.IsSpace(r):
			i++

		case r == '(':
			tokens = append(tokens, token{tokLParen, "("})
			i++

		case r == ')':
			tokens = append(tokens, token{tokRParen, ")"})
			i++

		case r == '\'' || r == '"':
			quote := r
			j := i + 1
			for j < len(runes) && runes[j] != quote {
				j++
			}
			if j >= len(runes) {
				return nil, fmt.Errorf("unterminated string literal")
			}
			tokens = append(tokens, token{tokString, string(runes[i+1 : j])})
			i = j + 1

		case unicode.IsDigit(r) || (r == '.' && i+1 < len(runes) && unicode.IsDigit(runes[i+1])):
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}
			tokens = append(tokens, token{tokNumber, string(runes[i:j])})
			i = j

		case unicode.IsLetter(r) || r == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_') {
				j++
			}
			word := string(runes[i:j])
			switch strings.ToLower(word) {
			case "and":
				tokens = append(tokens, token{tokAnd, word})
			case "or":
				tokens = append(tokens, token{tokOr, word})
			case "not":
				tokens = append(tokens, token{tokNot, word})
			default:
				tokens = append(tokens, token{tokIdent, strings.ToLower(word)})
			}
			i = j

		case r == '&':
			if i+1 < len(runes) && runes[i+1] == '&' {
				tokens = append(tokens, token{tokAnd, "&&"})
				i += 2
			} else {
				return nil, fmt.Errorf("unexpected character %q", r)
			}

		case r == '|':
			if i+1 < len(runes) && runes[i+1] == '|' {
				tokens = append(tokens, token{tokOr, "||"})
				i += 2
			} else {
				return nil, fmt.Errorf("unexpected character %q", r)
			}

		case r == '<' || r == '>':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{tokOp, string(r) + "="})
				i += 2
			} else {
				tokens = append(tokens, token{tokOp, string(r)})
				i++
			}

		case r == '=':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{tokOp, "=="})
				i += 2
			} else {
				return nil, fmt.Errorf("single '=' is not a comparison")
			}

		case r == '!':
			if i+1 < len(runes) && runes[i+1] == '=' {
				tokens = append(tokens, token{tokOp, "!="})
				i += 2
			} else {
				tokens = append(tokens, token{tokNot, "!"})
				i++
			}

		default:
			return nil, fmt.Errorf("unexpected character %q", r)
		}
	}

	return tokens, nil
}

// ----------------------------------------------------------------------------
// parser
//
// expression := orExpr
// orExpr     := andExpr ( OR andExpr )*
// andExpr    := notExpr ( AND notExpr )*
// notExpr    := NOT notExpr | comparison
// comparison := operand ( op operand )?
// operand    := IDENT | NUMBER | STRING | '(' expression ')'
// ----------------------------------------------------------------------------

type parser struct {
	tokens []token
	pos    int
}

func (p *parser) atEnd() bool { return p.pos >= len(p.tokens) }

func (p *parser) peek() token {
	if p.atEnd() {
		return token{}
	}
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	t := p.peek()
	p.pos++
	return t
}

type node interface {
	eval(env Env) (value, error)
}

func (p *parser) parseExpression() (node, error) {
	return p.parseOr()
}

func (p *parser) parseOr() (node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for !p.atEnd() && p.peek().typ == tokOr {
		p.next()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "or", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseAnd() (node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for !p.atEnd() && p.peek().typ == tokAnd {
		p.next()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &binaryNode{op: "and", left: left, right: right}
	}
	return left, nil
}

func (p *parser) parseNot() (node, error) {
	if !p.atEnd() && p.peek().typ == tokNot {
		p.next()
		inner, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notNode{inner: inner}, nil
	}
	return p.parseComparison()
}

func (p *parser) parseComparison() (node, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if !p.atEnd() && p.peek().typ == tokOp {
		op := p.next().text
		right, err := p.parseOperand()
		if err != nil {
			return nil, err
		}
		return &compareNode{op: op, left: left, right: right}, nil
	}
	return left, nil
}

func (p *parser) parseOperand() (node, error) {
	if p.atEnd() {
		return nil, fmt.Errorf("unexpected end of expression")
	}

	t := p.next()
	switch t.typ {
	case tokIdent:
		return &identNode{name: t.text}, nil
	case tokNumber:
		n, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", t.text)
		}
		return &literalNode{v: numberValue(n)}, nil
	case tokString:
		return &literalNode{v: stringValue(t.text)}, nil
	case tokLParen:
		inner, err := p.parseExpression()
		if err != nil {
			return nil, err
		}
		if p.atEnd() || p.peek().typ != tokRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}
		p.next()
		return inner, nil
	default:
		return nil, fmt.Errorf("unexpected token %q", t.text)
	}
}

// ----------------------------------------------------------------------------
// AST nodes
// ----------------------------------------------------------------------------

type literalNode struct{ v value }

func (n *literalNode) eval(Env) (value, error) { return n.v, nil }

type identNode struct{ name string }

func (n *identNode) eval(env Env) (value, error) {
	v, ok := env.lookup(n.name)
	if !ok {
		return value{}, fmt.Errorf("unknown identifier %q", n.name)
	}
	return v, nil
}

type notNode struct{ inner node }

func (n *notNode) eval(env Env) (value, error) {
	v, err := n.inner.eval(env)
	if err != nil {
		return value{}, err
	}
	if v.kind != kindBool {
		return value{}, fmt.Errorf("'not' requires a boolean operand")
	}
	return boolValue(!v.b), nil
}

type binaryNode struct {
	op          string
	left, right node
}

func (n *binaryNode) eval(env Env) (value, error) {
	l, err := n.left.eval(env)
	if err != nil {
		return value{}, err
	}
	if l.kind != kindBool {
		return value{}, fmt.Errorf("%q requires boolean operands", n.op)
	}

	// Short circuit
	if n.op == "and" && !l.b {
		return boolValue(false), nil
	}
	if n.op == "or" && l.b {
		return boolValue(true), nil
	}

	r, err := n.right.eval(env)
	if err != nil {
		return value{}, err
	}
	if r.kind != kindBool {
		return value{}, fmt.Errorf("%q requires boolean operands", n.op)
	}
	return boolValue(r.b), nil
}

type compareNode struct {
	op          string
	left, right node
}

func (n *compareNode) eval(env Env) (value, error) {
	l, err := n.left.eval(env)
	if err != nil {
		return value{}, err
	}
	r, err := n.right.eval(env)
	if err != nil {
		return value{}, err
	}

	if l.kind != r.kind {
		return value{}, fmt.Errorf("cannot compare mixed types with %q", n.op)
	}

	switch l.kind {
	case kindNumber:
		return boolValue(compareNumbers(n.op, l.n, r.n)), nil
	case kindString:
		switch n.op {
		case "==":
			return boolValue(strings.EqualFold(l.s, r.s)), nil
		case "!=":
			return boolValue(!strings.EqualFold(l.s, r.s)), nil
		default:
			return value{}, fmt.Errorf("operator %q not valid for strings", n.op)
		}
	case kindBool:
		switch n.op {
		case "==":
			return boolValue(l.b == r.b), nil
		case "!=":
			return boolValue(l.b != r.b), nil
		default:
			return value{}, fmt.Errorf("operator %q not valid for booleans", n.op)
		}
	}
	return value{}, fmt.Errorf("unsupported comparison")
}

func compareNumbers(op string, l, r float64) bool {
	switch op {
	case "<":
		return l < r
	case "<=":
		return l <= r
	case ">":
		return l > r
	case ">=":
		return l >= r
	case "==":
		return l == r
	case "!=":
		return l != r
	default:
		return false
	}
}
