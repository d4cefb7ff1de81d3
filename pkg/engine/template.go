package engine

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrUnresolvedPlaceholder indica um {campo} sem valor no item nem no pai.
	ErrUnresolvedPlaceholder = errors.New("placeholder não resolvido")

	placeholderRegex = regexp.MustCompile(`\{([^{}]*)\}`)
)

// Substitute troca os placeholders {campo} do template pelos valores do item.
// Placeholders ausentes no item são procurados nos campos de topo do pai.
// Valores nulos contam como ausentes. O nome do campo é comparado exatamente,
// e chaves que sobram no template (como "{}" ou "{{id}}") também tornam a URL
// não resolvida.
func Substitute(tmpl string, item, parent map[string]interface{}) (string, error) {
	var missing []string

	out := placeholderRegex.ReplaceAllStringFunc(tmpl, func(match string) string {
		key := match[1 : len(match)-1]
		if v, ok := lookup(item, key); ok {
			return v
		}
		if v, ok := lookup(parent, key); ok {
			return v
		}
		missing = append(missing, key)
		return match
	})

	if rest := placeholderRegex.ReplaceAllString(tmpl, ""); hasBracePair(rest) {
		missing = append(missing, "chaves sem placeholder válido")
	}

	if len(missing) > 0 {
		return out, fmt.Errorf("%w: %s", ErrUnresolvedPlaceholder, strings.Join(missing, ", "))
	}
	return out, nil
}

// Placeholders lista os nomes referenciados no template, na ordem em que aparecem.
func Placeholders(tmpl string) []string {
	matches := placeholderRegex.FindAllStringSubmatch(tmpl, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, m[1])
	}
	return out
}

func hasBracePair(s string) bool {
	open := strings.Index(s, "{")
	return open >= 0 && strings.Contains(s[open+1:], "}")
}

func lookup(fields map[string]interface{}, key string) (string, bool) {
	if fields == nil {
		return "", false
	}
	v, ok := fields[key]
	if !ok || v == nil {
		return "", false
	}
	return stringify(v), true
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case map[string]interface{}, []interface{}:
		if b, err := json.Marshal(t); err == nil {
			return string(b)
		}
	}
	return fmt.Sprint(v)
}
