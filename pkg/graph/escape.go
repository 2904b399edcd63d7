package graph

import (
	"fmt"
	"sort"
	"strings"
)

// EscapeName renders a label, relationship type, or property key safe for
// direct inclusion in a Cypher statement. Literal \u0060 escape sequences
// are normalized to a real backtick first so they cannot smuggle a closing
// backtick past the doubling step. Property values are never inlined, they
// are always bound as parameters.
func EscapeName(name string) string {
	s := strings.ReplaceAll(name, `\u0060`, "`")
	s = strings.ReplaceAll(s, "`", "``")
	return "`" + s + "`"
}

// propertyMatch renders a `{key: $param, ...}` fragment for the given
// properties, binding every value under a prefixed positional parameter in
// params. Keys are sorted so generated statements are deterministic and the
// server-side query cache stays warm. Returns "" for an empty map.
func propertyMatch(props map[string]any, prefix string, params map[string]any) string {
	if len(props) == 0 {
		return ""
	}

	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for i, k := range keys {
		param := fmt.Sprintf("%s%d", prefix, i)
		parts = append(parts, fmt.Sprintf("%s: $%s", EscapeName(k), param))
		params[param] = props[k]
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// nodePattern renders a node pattern like (n1:`Label` {props}) with an
// optional label and optional property match.
func nodePattern(variable, label string, props map[string]any, prefix string, params map[string]any) string {
	var b strings.Builder
	b.WriteString("(")
	b.WriteString(variable)
	if label != "" {
		b.WriteString(":")
		b.WriteString(EscapeName(label))
	}
	if match := propertyMatch(props, prefix, params); match != "" {
		b.WriteString(" ")
		b.WriteString(match)
	}
	b.WriteString(")")
	return b.String()
}

// relPattern renders a relationship pattern like -[r:`TYPE` {props}]-> with
// an optional type and optional property match.
func relPattern(variable, relType string, props map[string]any, prefix string, params map[string]any) string {
	var b strings.Builder
	b.WriteString("-[")
	b.WriteString(variable)
	if relType != "" {
		b.WriteString(":")
		b.WriteString(EscapeName(relType))
	}
	if match := propertyMatch(props, prefix, params); match != "" {
		b.WriteString(" ")
		b.WriteString(match)
	}
	b.WriteString("]->")
	return b.String()
}
