package tools

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// CurrentTimeTool reports the host clock, optionally in a named zone.
type CurrentTimeTool struct{}

func NewCurrentTimeTool() *CurrentTimeTool { return &CurrentTimeTool{} }

func (t *CurrentTimeTool) Name() string        { return "current_time" }
func (t *CurrentTimeTool) Description() string { return "Get the current date and time" }
func (t *CurrentTimeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"timezone": map[string]interface{}{
				"type":        "string",
				"description": "IANA timezone name (e.g. 'Europe/London'). Defaults to the server timezone.",
			},
		},
	}
}

func (t *CurrentTimeTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	now := time.Now()
	if tz, _ := args["timezone"].(string); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return ErrorResult(fmt.Sprintf("unknown timezone: %s", tz))
		}
		now = now.In(loc)
	}
	return SilentResult(now.Format("Monday, 2 January 2006 15:04:05 MST"))
}

// CalculatorTool evaluates arithmetic expressions with + - * / % ^ and
// parentheses. No variables, no functions.
type CalculatorTool struct{}

func NewCalculatorTool() *CalculatorTool { return &CalculatorTool{} }

func (t *CalculatorTool) Name() string { return "calculator" }
func (t *CalculatorTool) Description() string {
	return "Evaluate an arithmetic expression (supports + - * / % ^ and parentheses)"
}
func (t *CalculatorTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"expression": map[string]interface{}{
				"type":        "string",
				"description": "The expression to evaluate, e.g. '(2 + 3) * 4'",
			},
		},
		"required": []string{"expression"},
	}
}

func (t *CalculatorTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	expr, _ := args["expression"].(string)
	if strings.TrimSpace(expr) == "" {
		return ErrorResult("expression is required")
	}
	value, err := evalExpression(expr)
	if err != nil {
		return ErrorResult(fmt.Sprintf("cannot evaluate %q: %v", expr, err))
	}
	return SilentResult(formatNumber(value))
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', 12, 64)
}

// --- recursive-descent expression evaluator ---

type exprParser struct {
	input []rune
	pos   int
}

func evalExpression(input string) (float64, error) {
	p := &exprParser{input: []rune(input)}
	v, err := p.parseAddSub()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected %q at position %d", string(p.input[p.pos]), p.pos)
	}
	return v, nil
}

func (p *exprParser) parseAddSub() (float64, error) {
	left, err := p.parseMulDiv()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch {
		case p.accept('+'):
			right, err := p.parseMulDiv()
			if err != nil {
				return 0, err
			}
			left += right
		case p.accept('-'):
			right, err := p.parseMulDiv()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parseMulDiv() (float64, error) {
	left, err := p.parsePower()
	if err != nil {
		return 0, err
	}
	for {
		p.skipSpace()
		switch {
		case p.accept('*'):
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			left *= right
		case p.accept('/'):
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			if right == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			left /= right
		case p.accept('%'):
			right, err := p.parsePower()
			if err != nil {
				return 0, err
			}
			if int64(right) == 0 {
				return 0, fmt.Errorf("modulo by zero")
			}
			left = float64(int64(left) % int64(right))
		default:
			return left, nil
		}
	}
}

func (p *exprParser) parsePower() (float64, error) {
	base, err := p.parseUnary()
	if err != nil {
		return 0, err
	}
	p.skipSpace()
	if p.accept('^') {
		// Right-associative.
		exp, err := p.parsePower()
		if err != nil {
			return 0, err
		}
		return math.Pow(base, exp), nil
	}
	return base, nil
}

func (p *exprParser) parseUnary() (float64, error) {
	p.skipSpace()
	if p.accept('-') {
		v, err := p.parseUnary()
		return -v, err
	}
	if p.accept('+') {
		return p.parseUnary()
	}
	return p.parseAtom()
}

func (p *exprParser) parseAtom() (float64, error) {
	p.skipSpace()
	if p.accept('(') {
		v, err := p.parseAddSub()
		if err != nil {
			return 0, err
		}
		p.skipSpace()
		if !p.accept(')') {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		return v, nil
	}
	start := p.pos
	for p.pos < len(p.input) && (unicode.IsDigit(p.input[p.pos]) || p.input[p.pos] == '.') {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected a number at position %d", start)
	}
	return strconv.ParseFloat(string(p.input[start:p.pos]), 64)
}

func (p *exprParser) skipSpace() {
	for p.pos < len(p.input) && unicode.IsSpace(p.input[p.pos]) {
		p.pos++
	}
}

func (p *exprParser) accept(r rune) bool {
	if p.pos < len(p.input) && p.input[p.pos] == r {
		p.pos++
		return true
	}
	return false
}
