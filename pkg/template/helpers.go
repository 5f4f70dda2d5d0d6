package template

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"text/template"
	"time"
)

const isoFormat = "2006-01-02T15:04:05.000Z07:00"

// helperFuncs returns the fixed helper vocabulary available inside
// templates. Output formats are part of the engine's wire contract.
func helperFuncs() template.FuncMap {
	return template.FuncMap{
		"json":       jsonHelper,
		"uppercase":  uppercaseHelper,
		"lowercase":  lowercaseHelper,
		"default":    defaultHelper,
		"timestamp":  timestampHelper,
		"math":       mathHelper,
		"formatDate": formatDateHelper,
	}
}

func jsonHelper(value any) string {
	encoded, err := json.Marshal(value)
	if err != nil {
		return ""
	}

	return string(encoded)
}

func uppercaseHelper(value any) string {
	if value == nil {
		return ""
	}

	return strings.ToUpper(stringify(value))
}

func lowercaseHelper(value any) string {
	if value == nil {
		return ""
	}

	return strings.ToLower(stringify(value))
}

// defaultHelper returns value unless it is nil or empty, in which case the
// fallback wins.
func defaultHelper(value, fallback any) any {
	if value == nil || value == "" {
		return fallback
	}

	return value
}

func timestampHelper() string {
	return time.Now().UTC().Format(isoFormat)
}

// mathHelper applies a binary arithmetic operator to two numeric operands.
// Division by zero yields 0; an unknown operator yields the left operand.
func mathHelper(left any, operator string, right any) float64 {
	lvalue := toFloat(left)
	rvalue := toFloat(right)

	switch operator {
	case "+":
		return lvalue + rvalue
	case "-":
		return lvalue - rvalue
	case "*":
		return lvalue * rvalue
	case "/":
		if rvalue == 0 {
			return 0
		}

		return lvalue / rvalue
	default:
		return lvalue
	}
}

// formatDateHelper renders a date with a named preset. Unparseable input
// renders as an empty string; an unknown preset falls back to a full textual
// form.
func formatDateHelper(value any, format string) string {
	parsed, ok := toTime(value)
	if !ok {
		return ""
	}

	switch format {
	case "iso":
		return parsed.UTC().Format(isoFormat)
	case "date":
		return parsed.Format("Mon Jan 02 2006")
	case "time":
		return parsed.Format("15:04:05")
	case "short":
		return fmt.Sprintf("%d/%d/%d", int(parsed.Month()), parsed.Day(), parsed.Year())
	default:
		return parsed.Format("Mon Jan 02 2006 15:04:05 GMT-0700")
	}
}

func stringify(value any) string {
	if s, ok := value.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", value)
}

func toFloat(value any) float64 {
	switch v := value.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0
		}

		return parsed
	default:
		return 0
	}
}

func toTime(value any) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v, true
	case string:
		if v == "" {
			return time.Time{}, false
		}

		for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if parsed, err := time.Parse(layout, v); err == nil {
				return parsed, true
			}
		}

		return time.Time{}, false
	case float64:
		// Epoch milliseconds, as produced by editor clients.
		return time.UnixMilli(int64(v)).UTC(), true
	case int64:
		return time.UnixMilli(v).UTC(), true
	default:
		return time.Time{}, false
	}
}
