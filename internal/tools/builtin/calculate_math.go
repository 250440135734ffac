package builtin

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/crystaldolphin/toolsmith/internal/schema"
)

// CalculateMathTool evaluates arithmetic expressions without eval.
type CalculateMathTool struct{}

func NewCalculateMathTool() *CalculateMathTool { return &CalculateMathTool{} }

func (t *CalculateMathTool) Name() string { return "calculate_math" }
func (t *CalculateMathTool) Description() string {
	return "Evaluate an arithmetic expression with + - * / % and parentheses. % means per cent."
}
func (t *CalculateMathTool) Params() []schema.Param {
	return []schema.Param{{
		Name:        "expression",
		Type:        schema.TypeString,
		Required:    true,
		Description: "Expression such as '2+2*3' or '18% 250'",
	}}
}

func (t *CalculateMathTool) Execute(_ context.Context, args map[string]any) (string, error) {
	expr, _ := args["expression"].(string)
	result, err := evalExpr(expr)
	if err != nil {
		return "", fmt.Errorf("evaluate %q: %w", expr, err)
	}
	if math.IsInf(result, 0) || math.IsNaN(result) {
		return "", fmt.Errorf("evaluate %q: result is not finite", expr)
	}
	if result == math.Trunc(result) && math.Abs(result) < 1e15 {
		return strconv.FormatInt(int64(result), 10), nil
	}
	return strconv.FormatFloat(result, 'g', -1, 64), nil
}

// Recursive descent over: + - * / %, parentheses, unary minus.
type parser struct {
	input string
	pos   int
}

func evalExpr(expr string) (float64, error) {
	p := &parser{input: strings.TrimSpace(expr)}
	if p.input == "" {
		return 0, fmt.Errorf("empty expression")
	}
	result, err := p.parseAddSub()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected character at position %d: %q", p.pos, string(p.input[p.pos]))
	}
	return result, nil
}

func (p *parser) parseAddSub() (float64, error) {
	left, err := p.parseMulDiv()
	if err != nil {
		return 0, err
	}

	for {
		p.skipSpaces()
		if p.pos >= len(p.input) {
			return left, nil
		}
		op := p.input[p.pos]
		if op != '+' && op != '-' {
			return left, nil
		}
		p.pos++
		right, err := p.parseMulDiv()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			left += right
		} else {
			left -= right
		}
	}
}

func (p *parser) parseMulDiv() (float64, error) {
	left, err := p.parseUnary()
	if err != nil {
		return 0, err
	}

	for {
		p.skipSpaces()
		if p.pos >= len(p.input) {
			return left, nil
		}
		op := p.input[p.pos]
		switch op {
		case '%':
			// "a%" is a*0.01; "a% b" is a*0.01*b.
			p.pos++
			left *= 0.01
			if !p.operandAhead() {
				continue
			}
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			left *= right
		case '*', '/':
			p.pos++
			right, err := p.parseUnary()
			if err != nil {
				return 0, err
			}
			if op == '*' {
				left *= right
				continue
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		default:
			return left, nil
		}
	}
}

func (p *parser) operandAhead() bool {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return false
	}
	c := p.input[p.pos]
	return c == '(' || c == '.' || unicode.IsDigit(rune(c))
}

func (p *parser) parseUnary() (float64, error) {
	p.skipSpaces()
	if p.pos < len(p.input) && (p.input[p.pos] == '-' || p.input[p.pos] == '+') {
		neg := p.input[p.pos] == '-'
		p.pos++
		val, err := p.parseUnary()
		if err != nil {
			return 0, err
		}
		if neg {
			return -val, nil
		}
		return val, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (float64, error) {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0, fmt.Errorf("unexpected end of expression")
	}

	if p.input[p.pos] == '(' {
		p.pos++
		val, err := p.parseAddSub()
		if err != nil {
			return 0, err
		}
		p.skipSpaces()
		if p.pos >= len(p.input) || p.input[p.pos] != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return val, nil
	}

	return p.parseNumber()
}

func (p *parser) parseNumber() (float64, error) {
	p.skipSpaces()
	start := p.pos
	for p.pos < len(p.input) && (unicode.IsDigit(rune(p.input[p.pos])) || p.input[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at position %d", p.pos)
	}
	return strconv.ParseFloat(p.input[start:p.pos], 64)
}

func (p *parser) skipSpaces() {
	for p.pos < len(p.input) && unicode.IsSpace(rune(p.input[p.pos])) {
		p.pos++
	}
}
