package registry

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Args são os argumentos nomeados de um processador, vindos da configuração.
type Args map[string]interface{}

// Merge devolve uma cópia com os valores de override aplicados sobre a.
func (a Args) Merge(override Args) Args {
	out := make(Args, len(a)+len(override))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

func (a Args) String(key, def string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return def
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func (a Args) Int(key string, def int) int {
	switch v := a[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
		if f, err := v.Float64(); err == nil {
			return int(f)
		}
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func (a Args) Bool(key string, def bool) bool {
	switch v := a[key].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Duration aceita "90s"/"5m" ou número de segundos.
func (a Args) Duration(key string, def time.Duration) time.Duration {
	switch v := a[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	case nil:
		return def
	default:
		if n := a.Int(key, -1); n >= 0 {
			return time.Duration(n) * time.Second
		}
	}
	return def
}

// Strings aceita lista ou string única.
func (a Args) Strings(key string) []string {
	switch v := a[key].(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	}
	return nil
}

// StringMap converte um mapa de argumentos em map[string]string.
func (a Args) StringMap(key string) map[string]string {
	switch v := a[key].(type) {
	case map[string]string:
		return v
	case map[string]interface{}:
		out := make(map[string]string, len(v))
		for k, item := range v {
			out[k] = fmt.Sprint(item)
		}
		return out
	}
	return nil
}

// Map devolve um submapa de argumentos.
func (a Args) Map(key string) map[string]interface{} {
	if m, ok := a[key].(map[string]interface{}); ok {
		return m
	}
	return nil
}
