// Package condition provides the CONDITION node executor that gates
// workflow branches.
package condition

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/loomworks/loom/pkg/models"
	"github.com/loomworks/loom/pkg/template"
)

const timestampFormat = "2006-01-02T15:04:05.000Z07:00"

var validOperators = map[string]bool{
	"equals": true, "not_equals": true,
	"greater_than": true, "less_than": true,
	"greater_equal": true, "less_equal": true,
	"contains": true, "not_contains": true,
	"starts_with": true, "ends_with": true,
	"is_empty": true, "is_not_empty": true,
	"exists": true, "not_exists": true,
}

// ConditionExecutor evaluates either a field/operator/value condition or a
// boolean expression and records which branch the run should take.
type ConditionExecutor struct {
	resolver *template.Resolver
}

func NewConditionExecutor(resolver *template.Resolver) *ConditionExecutor {
	return &ConditionExecutor{resolver: resolver}
}

func (e *ConditionExecutor) Type() models.NodeType {
	return models.NodeTypeCondition
}

func (e *ConditionExecutor) Name() string {
	return "Condition Node"
}

func (e *ConditionExecutor) Description() string {
	return "Evaluates conditions and controls workflow flow"
}

func (e *ConditionExecutor) Execute(_ context.Context, config map[string]any, input map[string]any, run models.RuntimeContext) (map[string]any, error) {
	logger := run.Log()
	logger.Info("Evaluating condition")

	condition, _ := config["condition"].(string)
	expression, _ := config["expression"].(string)

	operator, _ := config["operator"].(string)
	if operator == "" {
		operator = "equals"
	}

	var (
		result  bool
		details map[string]any
	)

	switch {
	case expression != "":
		resolved := e.resolver.Resolve(expression, input)

		value, err := evaluateExpression(resolved, input)
		if err != nil {
			logger.Error("Condition evaluation failed", "error", err)

			return nil, fmt.Errorf("condition evaluation failed: %w", err)
		}

		result = value
		details = map[string]any{
			"type":       "expression",
			"expression": expression,
			"result":     result,
		}
	case condition != "":
		value, err := e.evaluateCondition(condition, operator, config["value"], input)
		if err != nil {
			logger.Error("Condition evaluation failed", "error", err)

			return nil, fmt.Errorf("condition evaluation failed: %w", err)
		}

		result = value
		details = map[string]any{
			"type":      "condition",
			"condition": condition,
			"operator":  operator,
			"value":     config["value"],
			"result":    result,
		}
	default:
		return nil, fmt.Errorf("condition evaluation failed: no condition or expression provided")
	}

	logger.Info("Condition evaluated", "result", result)

	branch := "false"
	if result {
		branch = "true"
	}

	output := map[string]any{
		"result":            result,
		"branch":            branch,
		"evaluationDetails": details,
		"timestamp":         time.Now().UTC().Format(timestampFormat),
	}

	for key, value := range input {
		output[key] = value
	}

	return output, nil
}

func (e *ConditionExecutor) evaluateCondition(condition, operator string, value any, input map[string]any) (bool, error) {
	left := convertValue(e.resolver.Resolve(condition, input))
	right := convertValue(value)

	switch operator {
	case "equals":
		return looseEqual(left, right), nil
	case "not_equals":
		return !looseEqual(left, right), nil
	case "greater_than", "less_than", "greater_equal", "less_equal":
		leftNum, leftOK := toNumber(left)
		rightNum, rightOK := toNumber(right)

		if !leftOK || !rightOK {
			return false, nil
		}

		switch operator {
		case "greater_than":
			return leftNum > rightNum, nil
		case "less_than":
			return leftNum < rightNum, nil
		case "greater_equal":
			return leftNum >= rightNum, nil
		default:
			return leftNum <= rightNum, nil
		}
	case "contains":
		return strings.Contains(stringify(left), stringify(right)), nil
	case "not_contains":
		return !strings.Contains(stringify(left), stringify(right)), nil
	case "starts_with":
		return strings.HasPrefix(stringify(left), stringify(right)), nil
	case "ends_with":
		return strings.HasSuffix(stringify(left), stringify(right)), nil
	case "is_empty":
		return isEmpty(left), nil
	case "is_not_empty":
		return !isEmpty(left), nil
	case "exists":
		return exists(left), nil
	case "not_exists":
		return !exists(left), nil
	default:
		return false, fmt.Errorf("unknown operator: %s", operator)
	}
}

// convertValue coerces a raw value for comparison: strings are tried as a
// number, then a boolean, then JSON, and kept as-is when nothing matches.
func convertValue(value any) any {
	str, ok := value.(string)
	if !ok {
		return value
	}

	if str == "" {
		return str
	}

	if num, err := strconv.ParseFloat(str, 64); err == nil {
		return num
	}

	switch strings.ToLower(str) {
	case "true":
		return true
	case "false":
		return false
	}

	var parsed any
	if err := json.Unmarshal([]byte(str), &parsed); err == nil {
		return parsed
	}

	return str
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case bool:
		return !v
	case float64:
		return v == 0
	case int:
		return v == 0
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}

func exists(value any) bool {
	if value == nil {
		return false
	}

	str, ok := value.(string)

	return !ok || str != ""
}

func (e *ConditionExecutor) Validate(config map[string]any) models.ValidationResult {
	var errs []string

	condition, _ := config["condition"].(string)
	expression, _ := config["expression"].(string)
	operator, hasOperator := config["operator"].(string)

	if condition == "" && expression == "" {
		errs = append(errs, "Either condition or expression must be provided")
	}

	if condition != "" && expression != "" {
		errs = append(errs, "Cannot provide both condition and expression")
	}

	if condition != "" && (!hasOperator || operator == "") {
		errs = append(errs, "Operator is required when using condition")
	}

	if operator != "" && !validOperators[operator] {
		errs = append(errs, "Invalid operator")
	}

	return models.NewValidationResult(errs)
}

func (e *ConditionExecutor) Schema() map[string]any {
	operators := []any{
		"equals", "not_equals", "greater_than", "less_than",
		"greater_equal", "less_equal", "contains", "not_contains",
		"starts_with", "ends_with", "is_empty", "is_not_empty",
		"exists", "not_exists",
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition": map[string]any{
				"type":        "string",
				"title":       "Condition Field",
				"description": "Field to evaluate (use {{variable}} syntax)",
			},
			"operator": map[string]any{
				"type":  "string",
				"enum":  operators,
				"title": "Operator",
			},
			"value": map[string]any{
				"title":       "Value",
				"description": "Value to compare against",
			},
			"expression": map[string]any{
				"type":        "string",
				"title":       "Expression",
				"description": `Custom expression (e.g., 'status === "success" && count > 5')`,
			},
		},
	}
}
