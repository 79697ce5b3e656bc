package tools

import (
	"fmt"
	"strconv"
	"strings"
)

// NewCalculatorTool creates the calculator tool. Only pure arithmetic
// is accepted: digits, + - * / ( ) . and whitespace. Anything else is
// rejected before evaluation.
func NewCalculatorTool() *Tool {
	return &Tool{
		Name:        "calculator",
		Description: "Evaluates a pure arithmetic expression (digits, + - * / and parentheses).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "Arithmetic expression to evaluate, e.g. '2 + 2 * 3'",
				},
			},
			"required": []string{"expression"},
		},
		Execute: executeCalculator,
	}
}

func executeCalculator(args map[string]any) (string, error) {
	expression, ok := stringArg(args, "expression", "query")
	if !ok || expression == "" {
		return "Error: Expression is None", nil
	}

	for _, c := range expression {
		if !strings.ContainsRune("0123456789+-*/(). \t", c) {
			return fmt.Sprintf("Error: Invalid characters in expression: %s", expression), nil
		}
	}

	result, err := evalArithmetic(expression)
	if err != nil {
		return fmt.Sprintf("Error: %v", err), nil
	}

	// Integral results print without a decimal point
	if result == float64(int64(result)) {
		return strconv.FormatInt(int64(result), 10), nil
	}
	return strconv.FormatFloat(result, 'g', -1, 64), nil
}

// evalArithmetic is a small recursive descent parser over the allowed
// character set.
func evalArithmetic(input string) (float64, error) {
	p := &exprParser{input: strings.ReplaceAll(strings.ReplaceAll(input, " ", ""), "\t", "")}
	if p.input == "" {
		return 0, fmt.Errorf("empty expression")
	}
	result, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	if p.pos != len(p.input) {
		return 0, fmt.Errorf("unexpected character at position %d", p.pos)
	}
	return result, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) peek() byte {
	if p.pos < len(p.input) {
		return p.input[p.pos]
	}
	return 0
}

// parseExpr handles + and -
func (p *exprParser) parseExpr() (float64, error) {
	left, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '+':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left += right
		case '-':
			p.pos++
			right, err := p.parseTerm()
			if err != nil {
				return 0, err
			}
			left -= right
		default:
			return left, nil
		}
	}
}

// parseTerm handles * and /
func (p *exprParser) parseTerm() (float64, error) {
	left, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		switch p.peek() {
		case '*':
			p.pos++
			right, err := p.parseFactor()
			if err != nil {
				return 0, err
			}
			left *= right
		case '/':
			p.pos++
			right, err := p.parseFactor()
			if err != nil {
				return 0, err
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

// parseFactor handles numbers, unary minus and parentheses
func (p *exprParser) parseFactor() (float64, error) {
	if p.peek() == '-' {
		p.pos++
		v, err := p.parseFactor()
		return -v, err
	}
	if p.peek() == '(' {
		p.pos++
		v, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		if p.peek() != ')' {
			return 0, fmt.Errorf("unbalanced parentheses")
		}
		p.pos++
		return v, nil
	}

	start := p.pos
	for p.pos < len(p.input) && (p.input[p.pos] == '.' || (p.input[p.pos] >= '0' && p.input[p.pos] <= '9')) {
		p.pos++
	}
	if start == p.pos {
		return 0, fmt.Errorf("expected number at position %d", start)
	}
	return strconv.ParseFloat(p.input[start:p.pos], 64)
}
