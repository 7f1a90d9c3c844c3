package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/roach88/nodom/internal/value"
)

// refPattern matches ${data.<key>} references.
var refPattern = regexp.MustCompile(`\$\{data\.([A-Za-z_][A-Za-z0-9_]*)\}`)

// References returns the data keys a template refers to, in order of first use.
func References(template string) []string {
	var keys []string
	seen := make(map[string]bool)
	for _, m := range refPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			keys = append(keys, m[1])
		}
	}
	return keys
}

// Lookup reads a data key.
type Lookup func(key string) (value.Value, bool)

// Render substitutes every ${data.<key>} in template. A reference to a key
// lookup does not know is an error.
func Render(template string, lookup Lookup) (string, error) {
	var firstErr error
	out := refPattern.ReplaceAllStringFunc(template, func(m string) string {
		key := refPattern.FindStringSubmatch(m)[1]
		v, ok := lookup(key)
		if !ok {
			if firstErr == nil {
				firstErr = fmt.Errorf("template references unknown data key %q", key)
			}
			return m
		}
		s, err := Literal(v)
		if err != nil && firstErr == nil {
			firstErr = fmt.Errorf("render data key %q: %w", key, err)
		}
		return s
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

// Literal renders v for splicing into a statement. A top-level string is
// spliced as is; arrays become SQL list literals with quoted strings, e.g.
// ['a.parquet', 'b.parquet']. Objects render as canonical JSON.
func Literal(v value.Value) (string, error) {
	switch val := v.(type) {
	case value.Array:
		var sb strings.Builder
		if err := writeList(&sb, val); err != nil {
			return "", err
		}
		return sb.String(), nil
	default:
		return value.Text(v)
	}
}

func writeList(sb *strings.Builder, arr value.Array) error {
	sb.WriteByte('[')
	for i, elem := range arr {
		if i > 0 {
			sb.WriteString(", ")
		}
		if err := writeElem(sb, elem); err != nil {
			return fmt.Errorf("list[%d]: %w", i, err)
		}
	}
	sb.WriteByte(']')
	return nil
}

func writeElem(sb *strings.Builder, v value.Value) error {
	switch val := v.(type) {
	case value.String:
		sb.WriteString(quote(string(val)))
	case value.Array:
		return writeList(sb, val)
	case value.Null, nil:
		sb.WriteString("NULL")
	case value.Bool:
		sb.WriteString(strconv.FormatBool(bool(val)))
	default:
		s, err := value.Text(val)
		if err != nil {
			return err
		}
		if _, isObj := val.(value.Object); isObj {
			s = quote(s)
		}
		sb.WriteString(s)
	}
	return nil
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
