package rule

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ppiankov/factorwatch/internal/model"
)

// Op is a comparison operator of the rule language.
type Op string

const (
	OpLT Op = "<"
	OpGT Op = ">"
	OpLE Op = "<="
	OpGE Op = ">="
	OpEQ Op = "=="
)

// Comparison is one clause: attribute op literal.
type Comparison struct {
	Attribute string
	Op        Op
	Value     float64
}

// Eval compares the attribute score against the literal.
// A missing attribute never satisfies the clause.
func (c Comparison) Eval(s model.Scores) bool {
	v, ok := s[c.Attribute]
	if !ok {
		return false
	}
	switch c.Op {
	case OpLT:
		return v < c.Value
	case OpGT:
		return v > c.Value
	case OpLE:
		return v <= c.Value
	case OpGE:
		return v >= c.Value
	case OpEQ:
		return v == c.Value
	default:
		return false
	}
}

func (c Comparison) String() string {
	return fmt.Sprintf("%s %s %s", c.Attribute, c.Op, strconv.FormatFloat(c.Value, 'g', -1, 64))
}

// Expression is a conjunction of comparisons evaluated against one factor's scores.
type Expression struct {
	Clauses []Comparison
}

// Eval reports whether every clause holds. The empty conjunction is true.
func (e Expression) Eval(s model.Scores) bool {
	for _, c := range e.Clauses {
		if !c.Eval(s) {
			return false
		}
	}
	return true
}

// Attributes returns the attribute names referenced by the expression.
func (e Expression) Attributes() []string {
	seen := make(map[string]bool, len(e.Clauses))
	var out []string
	for _, c := range e.Clauses {
		if !seen[c.Attribute] {
			seen[c.Attribute] = true
			out = append(out, c.Attribute)
		}
	}
	return out
}

func (e Expression) String() string {
	parts := make([]string, len(e.Clauses))
	for i, c := range e.Clauses {
		parts[i] = c.String()
	}
	return strings.Join(parts, " and ")
}

// ParseError locates a syntax error in a rule expression.
type ParseError struct {
	Input string
	Pos   int
	Msg   string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %q at offset %d: %s", e.Input, e.Pos, e.Msg)
}

// Parse compiles src into an Expression. The grammar is closed:
//
//	expr    := clause { ("and" | "&&" | "&") clause }
//	clause  := "(" clause ")" | operand op number
//	operand := identifier | scores['identifier']
//	op      := "<" | ">" | "<=" | ">=" | "=="
//
// Anything outside it is an error.
func Parse(src string) (Expression, error) {
	toks, err := lex(src)
	if err != nil {
		return Expression{}, err
	}
	p := &parser{src: src, toks: toks}
	if p.peek().kind == tokEOF {
		return Expression{}, p.errorf(p.peek(), "empty expression")
	}

	var expr Expression
	for {
		c, err := p.clause()
		if err != nil {
			return Expression{}, err
		}
		expr.Clauses = append(expr.Clauses, c)

		t := p.next()
		switch t.kind {
		case tokEOF:
			return expr, nil
		case tokAnd:
			continue
		default:
			return Expression{}, p.errorf(t, "expected 'and' or end of expression, got %q", t.text)
		}
	}
}

// Evaluate parses src and evaluates it against scores.
func Evaluate(src string, scores model.Scores) (bool, error) {
	expr, err := Parse(src)
	if err != nil {
		return false, err
	}
	return expr.Eval(scores), nil
}

type parser struct {
	src  string
	toks []token
	pos  int
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(t token, format string, args ...any) error {
	return &ParseError{Input: p.src, Pos: t.pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expect(kind tokKind, what string) (token, error) {
	t := p.next()
	if t.kind != kind {
		return t, p.errorf(t, "expected %s, got %q", what, t.text)
	}
	return t, nil
}

func (p *parser) clause() (Comparison, error) {
	if p.peek().kind == tokLParen {
		p.next()
		c, err := p.clause()
		if err != nil {
			return Comparison{}, err
		}
		if _, err := p.expect(tokRParen, "')'"); err != nil {
			return Comparison{}, err
		}
		return c, nil
	}

	attr, err := p.operand()
	if err != nil {
		return Comparison{}, err
	}

	opTok, err := p.expect(tokOp, "comparison operator")
	if err != nil {
		return Comparison{}, err
	}

	numTok, err := p.expect(tokNumber, "numeric literal")
	if err != nil {
		return Comparison{}, err
	}
	v, err := strconv.ParseFloat(numTok.text, 64)
	if err != nil || math.IsInf(v, 0) || math.IsNaN(v) {
		return Comparison{}, p.errorf(numTok, "invalid numeric literal %q", numTok.text)
	}

	return Comparison{Attribute: attr, Op: Op(opTok.text), Value: v}, nil
}

// operand accepts a bare identifier or the scores['X'] form.
func (p *parser) operand() (string, error) {
	t, err := p.expect(tokIdent, "attribute name")
	if err != nil {
		return "", err
	}
	if t.text != "scores" || p.peek().kind != tokLBracket {
		return t.text, nil
	}

	p.next()
	name, err := p.expect(tokString, "quoted attribute name")
	if err != nil {
		return "", err
	}
	if !isIdent(name.text) || strings.EqualFold(name.text, "and") {
		return "", p.errorf(name, "invalid attribute name %q", name.text)
	}
	if _, err := p.expect(tokRBracket, "']'"); err != nil {
		return "", err
	}
	return name.text, nil
}
