package condition

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// A small expression language for condition nodes: identifiers resolve
// against the node's input data, literals are numbers, quoted strings,
// true/false and null, and the operators are the comparison set
// (=== !== == != >= <= > <) plus && || ! and parentheses. Expressions are
// parsed and evaluated directly, never handed to a host-language eval.

type tokenKind int

const (
	tokenIdent tokenKind = iota
	tokenNumber
	tokenString
	tokenCompare
	tokenAnd
	tokenOr
	tokenNot
	tokenLParen
	tokenRParen
	tokenEOF
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(expression string) ([]token, error) {
	var tokens []token

	runes := []rune(expression)
	i := 0

	for i < len(runes) {
		ch := runes[i]

		switch {
		case unicode.IsSpace(ch):
			i++
		case ch == '(':
			tokens = append(tokens, token{kind: tokenLParen})
			i++
		case ch == ')':
			tokens = append(tokens, token{kind: tokenRParen})
			i++
		case ch == '\'' || ch == '"':
			quote := ch
			j := i + 1

			for j < len(runes) && runes[j] != quote {
				j++
			}

			if j >= len(runes) {
				return nil, fmt.Errorf("unterminated string starting at position %d", i)
			}

			tokens = append(tokens, token{kind: tokenString, text: string(runes[i+1 : j])})
			i = j + 1
		case ch == '&':
			if i+1 >= len(runes) || runes[i+1] != '&' {
				return nil, fmt.Errorf("unexpected character '&' at position %d", i)
			}

			tokens = append(tokens, token{kind: tokenAnd})
			i += 2
		case ch == '|':
			if i+1 >= len(runes) || runes[i+1] != '|' {
				return nil, fmt.Errorf("unexpected character '|' at position %d", i)
			}

			tokens = append(tokens, token{kind: tokenOr})
			i += 2
		case ch == '=' || ch == '!' || ch == '<' || ch == '>':
			op, width, err := scanOperator(runes[i:])
			if err != nil {
				return nil, fmt.Errorf("%w at position %d", err, i)
			}

			if op == "!" {
				tokens = append(tokens, token{kind: tokenNot})
			} else {
				tokens = append(tokens, token{kind: tokenCompare, text: op})
			}

			i += width
		case unicode.IsDigit(ch):
			j := i
			for j < len(runes) && (unicode.IsDigit(runes[j]) || runes[j] == '.') {
				j++
			}

			tokens = append(tokens, token{kind: tokenNumber, text: string(runes[i:j])})
			i = j
		case unicode.IsLetter(ch) || ch == '_':
			j := i
			for j < len(runes) && (unicode.IsLetter(runes[j]) || unicode.IsDigit(runes[j]) || runes[j] == '_' || runes[j] == '.') {
				j++
			}

			tokens = append(tokens, token{kind: tokenIdent, text: string(runes[i:j])})
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q at position %d", ch, i)
		}
	}

	return append(tokens, token{kind: tokenEOF}), nil
}

// scanOperator reads the longest comparison operator at the head of runes.
func scanOperator(runes []rune) (string, int, error) {
	head := string(runes[:min(4, len(runes))])

	for _, op := range []string{"===", "!==", "==", "!=", ">=", "<=", ">", "<", "!"} {
		if strings.HasPrefix(head, op) {
			return op, len(op), nil
		}
	}

	return "", 0, fmt.Errorf("unexpected character %q", runes[0])
}

type parser struct {
	tokens []token
	pos    int
	data   map[string]any
}

// evaluateExpression parses and evaluates a boolean expression against data.
func evaluateExpression(expression string, data map[string]any) (bool, error) {
	tokens, err := tokenize(expression)
	if err != nil {
		return false, err
	}

	p := &parser{tokens: tokens, data: data}

	value, err := p.parseOr()
	if err != nil {
		return false, err
	}

	if p.peek().kind != tokenEOF {
		return false, fmt.Errorf("unexpected trailing token in expression %q", expression)
	}

	return truthy(value), nil
}

func (p *parser) peek() token {
	return p.tokens[p.pos]
}

func (p *parser) next() token {
	tok := p.tokens[p.pos]
	p.pos++

	return tok
}

func (p *parser) parseOr() (any, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokenOr {
		p.next()

		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}

		left = truthy(left) || truthy(right)
	}

	return left, nil
}

func (p *parser) parseAnd() (any, error) {
	left, err := p.parseComparison()
	if err != nil {
		return nil, err
	}

	for p.peek().kind == tokenAnd {
		p.next()

		right, err := p.parseComparison()
		if err != nil {
			return nil, err
		}

		left = truthy(left) && truthy(right)
	}

	return left, nil
}

func (p *parser) parseComparison() (any, error) {
	left, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	if p.peek().kind != tokenCompare {
		return left, nil
	}

	op := p.next().text

	right, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	return applyComparison(op, left, right)
}

func (p *parser) parseUnary() (any, error) {
	if p.peek().kind == tokenNot {
		p.next()

		value, err := p.parseUnary()
		if err != nil {
			return nil, err
		}

		return !truthy(value), nil
	}

	return p.parsePrimary()
}

func (p *parser) parsePrimary() (any, error) {
	tok := p.next()

	switch tok.kind {
	case tokenNumber:
		num, err := strconv.ParseFloat(tok.text, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", tok.text)
		}

		return num, nil
	case tokenString:
		return tok.text, nil
	case tokenIdent:
		switch tok.text {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "null":
			return nil, nil
		}

		return lookupPath(p.data, tok.text), nil
	case tokenLParen:
		value, err := p.parseOr()
		if err != nil {
			return nil, err
		}

		if p.next().kind != tokenRParen {
			return nil, fmt.Errorf("missing closing parenthesis")
		}

		return value, nil
	default:
		return nil, fmt.Errorf("unexpected token in expression")
	}
}

func applyComparison(op string, left, right any) (any, error) {
	switch op {
	case "===", "==":
		return looseEqual(left, right), nil
	case "!==", "!=":
		return !looseEqual(left, right), nil
	case ">", "<", ">=", "<=":
		leftNum, leftOK := toNumber(left)
		rightNum, rightOK := toNumber(right)

		if !leftOK || !rightOK {
			return false, nil
		}

		switch op {
		case ">":
			return leftNum > rightNum, nil
		case "<":
			return leftNum < rightNum, nil
		case ">=":
			return leftNum >= rightNum, nil
		default:
			return leftNum <= rightNum, nil
		}
	default:
		return nil, fmt.Errorf("unknown comparison operator %q", op)
	}
}

// lookupPath walks a dotted path through nested maps, returning nil when
// any segment is missing.
func lookupPath(data map[string]any, path string) any {
	var current any = data

	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil
		}

		current, ok = node[segment]
		if !ok {
			return nil
		}
	}

	return current
}

// looseEqual compares numerically when both sides convert to numbers,
// otherwise by string form.
func looseEqual(left, right any) bool {
	if left == nil || right == nil {
		return left == nil && right == nil
	}

	leftNum, leftOK := toNumber(left)
	rightNum, rightOK := toNumber(right)

	if leftOK && rightOK {
		return leftNum == rightNum
	}

	return stringify(left) == stringify(right)
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	case int:
		return v != 0
	case int64:
		return v != 0
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

func toNumber(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case bool:
		if v {
			return 1, true
		}

		return 0, true
	case string:
		num, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}

		return num, true
	default:
		return 0, false
	}
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", v)
	}
}
