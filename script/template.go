package script

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

// placeholderPattern matches {{name}} placeholders. Names may contain dots,
// dashes and underscores; surrounding whitespace is ignored.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_.\-]*)\s*\}\}`)

// Template is text containing {{variable}} placeholders.
type Template struct {
	raw   string
	parts []string
	names []string // names[i] follows parts[i]
}

// NewTemplate parses raw into a Template.
func NewTemplate(raw string) *Template {
	t := &Template{raw: raw}
	matches := placeholderPattern.FindAllStringSubmatchIndex(raw, -1)
	var lastEnd int
	for _, match := range matches {
		t.parts = append(t.parts, raw[lastEnd:match[0]])
		t.names = append(t.names, raw[match[2]:match[3]])
		lastEnd = match[1]
	}
	t.parts = append(t.parts, raw[lastEnd:])
	return t
}

// Names returns the placeholder names in order of appearance.
func (t *Template) Names() []string {
	return append([]string(nil), t.names...)
}

// Render substitutes each placeholder with the stringified variable value.
// Unknown variables render as the empty string.
func (t *Template) Render(vars map[string]any) string {
	if len(t.names) == 0 {
		return t.raw
	}
	var sb strings.Builder
	for i, name := range t.names {
		sb.WriteString(t.parts[i])
		sb.WriteString(Stringify(Lookup(vars, name)))
	}
	sb.WriteString(t.parts[len(t.parts)-1])
	return sb.String()
}

// Render is shorthand for NewTemplate(text).Render(vars).
func Render(text string, vars map[string]any) string {
	return NewTemplate(text).Render(vars)
}

// SinglePlaceholder returns the variable name when text consists of exactly
// one placeholder and nothing else.
func SinglePlaceholder(text string) (string, bool) {
	match := placeholderPattern.FindStringSubmatch(strings.TrimSpace(text))
	if match == nil || match[0] != strings.TrimSpace(text) {
		return "", false
	}
	return match[1], true
}

// Lookup resolves a possibly dotted name against vars. A direct key match
// wins over traversal of nested maps.
func Lookup(vars map[string]any, name string) any {
	if v, ok := vars[name]; ok {
		return v
	}
	var current any = vars
	for _, part := range strings.Split(name, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[part]
	}
	return current
}

// Bind rewrites the {{variable}} placeholders of an expression into generated
// identifiers and returns the rewritten expression with an environment
// binding each identifier to the variable's value. Values are never spliced
// into the expression text, so they cannot change its structure. Variables
// whose names are valid identifiers are also bound under their own name.
func Bind(expression string, vars map[string]any) (string, map[string]any) {
	env := make(map[string]any, len(vars))
	for name, value := range vars {
		if identPattern.MatchString(name) {
			env[name] = value
		}
	}
	idents := map[string]string{}
	rewritten := placeholderPattern.ReplaceAllStringFunc(expression, func(m string) string {
		name := placeholderPattern.FindStringSubmatch(m)[1]
		ident, ok := idents[name]
		if !ok {
			ident = fmt.Sprintf("_v%d", len(idents))
			idents[name] = ident
			env[ident] = Lookup(vars, name)
		}
		return ident
	})
	return rewritten, env
}

var identPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// EvaluateCondition binds the placeholders of expression against vars,
// evaluates it with compiler and returns its truthiness.
func EvaluateCondition(ctx context.Context, compiler Compiler, expression string, vars map[string]any) (bool, error) {
	if strings.TrimSpace(expression) == "" {
		return false, fmt.Errorf("empty expression")
	}
	code, env := Bind(expression, vars)
	s, err := compiler.Compile(ctx, code)
	if err != nil {
		return false, err
	}
	result, err := s.Evaluate(ctx, env)
	if err != nil {
		return false, err
	}
	return result.IsTruthy(), nil
}
