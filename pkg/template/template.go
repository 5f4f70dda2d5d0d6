// Package template provides tolerant string templating over a nested data
// context for dynamic node configuration.
package template

import (
	"log/slog"
	"strings"
	"text/template"
)

// Resolver renders {{...}} templates against a run's accumulated context.
// Resolution is tolerant: on any parse or render failure the original
// template is returned unchanged and a warning is logged, so a bad template
// degrades to a literal instead of failing the node.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a resolver that reports template problems to logger.
func NewResolver(logger *slog.Logger) *Resolver {
	return &Resolver{logger: logger}
}

// Resolve renders a single template string against data.
func (r *Resolver) Resolve(templateStr string, data map[string]any) string {
	if !strings.Contains(templateStr, "{{") {
		return templateStr
	}

	tmpl, err := template.
		New("node").
		Option("missingkey=error").
		Funcs(helperFuncs()).
		Parse(normalize(templateStr))
	if err != nil {
		r.logger.Warn("Template compilation failed, using literal value",
			"template", templateStr, "error", err)

		return templateStr
	}

	var buf strings.Builder

	if err := tmpl.Execute(&buf, data); err != nil {
		r.logger.Warn("Template rendering failed, using literal value",
			"template", templateStr, "error", err)

		return templateStr
	}

	return buf.String()
}

// ResolveDeep applies Resolve recursively through string values of maps and
// slices, leaving every other value untouched.
func (r *Resolver) ResolveDeep(value any, data map[string]any) any {
	switch v := value.(type) {
	case string:
		return r.Resolve(v, data)
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = r.ResolveDeep(item, data)
		}

		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = r.ResolveDeep(item, data)
		}

		return out
	default:
		return value
	}
}

// reserved holds template keywords, builtins and helper names that must not
// be rewritten into context lookups.
var reserved = map[string]bool{
	"if": true, "else": true, "end": true, "range": true, "with": true,
	"template": true, "block": true, "define": true, "nil": true,
	"true": true, "false": true, "and": true, "or": true, "not": true,
	"eq": true, "ne": true, "lt": true, "le": true, "gt": true, "ge": true,
	"len": true, "index": true, "printf": true, "print": true, "println": true,
	"uppercase": true, "lowercase": true, "default": true, "timestamp": true,
	"math": true, "formatDate": true, "json": true,
}

// normalize rewrites bare context paths inside {{...}} actions into
// field references, so workflow authors can write {{user.name}} and
// {{uppercase user.name}} instead of {{.user.name}}.
func normalize(templateStr string) string {
	var out strings.Builder

	rest := templateStr

	for {
		open := strings.Index(rest, "{{")
		if open < 0 {
			out.WriteString(rest)

			break
		}

		close := strings.Index(rest[open:], "}}")
		if close < 0 {
			out.WriteString(rest)

			break
		}

		out.WriteString(rest[:open+2])
		out.WriteString(normalizeAction(rest[open+2 : open+close]))
		out.WriteString("}}")

		rest = rest[open+close+2:]
	}

	return out.String()
}

func normalizeAction(action string) string {
	var out strings.Builder

	token := strings.Builder{}
	inString := byte(0)

	flush := func() {
		if token.Len() == 0 {
			return
		}

		out.WriteString(normalizeToken(token.String()))
		token.Reset()
	}

	for i := 0; i < len(action); i++ {
		ch := action[i]

		if inString != 0 {
			out.WriteByte(ch)

			if ch == inString {
				inString = 0
			}

			continue
		}

		switch ch {
		case '"', '\'', '`':
			flush()
			out.WriteByte(ch)

			inString = ch
		case ' ', '\t', '(', ')', '|':
			flush()
			out.WriteByte(ch)
		default:
			token.WriteByte(ch)
		}
	}

	flush()

	return out.String()
}

func normalizeToken(token string) string {
	if reserved[token] || strings.HasPrefix(token, ".") || strings.HasPrefix(token, "$") {
		return token
	}

	if !isIdentPath(token) {
		return token
	}

	return "." + token
}

func isIdentPath(token string) bool {
	if token == "" {
		return false
	}

	first := token[0]
	if !isAlpha(first) && first != '_' {
		return false
	}

	for i := 1; i < len(token); i++ {
		ch := token[i]
		if !isAlpha(ch) && !isDigit(ch) && ch != '_' && ch != '.' {
			return false
		}
	}

	return true
}

func isAlpha(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
