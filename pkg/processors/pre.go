package processors

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/raywall/api-poller/pkg/config"
	"github.com/raywall/api-poller/pkg/registry"
)

// updateTimeRange troca {start_time}/{end_time} no body pela janela
// [agora - time_range_hours, agora]. Com start_param/end_param os valores
// também entram nos query params.
func (b *builtins) updateTimeRange(_ context.Context, spec config.APICallSpec, args registry.Args) (config.APICallSpec, error) {
	hours := args.Int("time_range_hours", 24)
	layout := args.String("date_format", "2006-01-02T15:04:05")

	end := b.Now()
	start := end.Add(-time.Duration(hours) * time.Hour)
	startStr, endStr := start.Format(layout), end.Format(layout)

	replace := strings.NewReplacer("{start_time}", startStr, "{end_time}", endStr)

	switch body := spec.Body.(type) {
	case string:
		spec.Body = replace.Replace(body)
	case map[string]interface{}:
		for k, v := range body {
			if s, ok := v.(string); ok {
				body[k] = replace.Replace(s)
			}
		}
	}

	for k, v := range spec.Params {
		spec.Params[k] = replace.Replace(v)
	}
	if p := args.String("start_param", ""); p != "" {
		spec.Params = ensure(spec.Params)
		spec.Params[p] = startStr
	}
	if p := args.String("end_param", ""); p != "" {
		spec.Params = ensure(spec.Params)
		spec.Params[p] = endStr
	}

	b.logger.Info().Str("start", startStr).Str("end", endStr).Msg("Janela de tempo atualizada")
	return spec, nil
}

func (b *builtins) addHeaders(_ context.Context, spec config.APICallSpec, args registry.Args) (config.APICallSpec, error) {
	headers := args.StringMap("headers")
	spec.Headers = ensure(spec.Headers)

	names := make([]string, 0, len(headers))
	for k, v := range headers {
		spec.Headers[k] = v
		names = append(names, k)
	}

	b.logger.Info().Strs("headers", names).Msg("Headers customizados adicionados")
	return spec, nil
}

func (b *builtins) templateURL(_ context.Context, spec config.APICallSpec, args registry.Args) (config.APICallSpec, error) {
	for name, value := range args.StringMap("variables") {
		spec.URL = strings.ReplaceAll(spec.URL, "{"+name+"}", value)
	}

	b.logger.Info().Str("url", spec.URL).Msg("URL após substituição de template")
	return spec, nil
}

func (b *builtins) paginationParams(_ context.Context, spec config.APICallSpec, args registry.Args) (config.APICallSpec, error) {
	pageParam := args.String("page_param", "page")
	sizeParam := args.String("size_param", "size")
	page := args.Int("page", 1)
	size := args.Int("size", 100)

	spec.Params = ensure(spec.Params)
	spec.Params[pageParam] = strconv.Itoa(page)
	spec.Params[sizeParam] = strconv.Itoa(size)

	b.logger.Info().Int(pageParam, page).Int(sizeParam, size).Msg("Parâmetros de paginação adicionados")
	return spec, nil
}

// celParams calcula query params com expressões CEL.
// Variáveis: spec {url, method, params, headers}, now, env, args.
func (b *builtins) celParams(_ context.Context, spec config.APICallSpec, args registry.Args) (config.APICallSpec, error) {
	exprs := args.StringMap("params")
	if len(exprs) == 0 {
		return spec, nil
	}

	vars := map[string]interface{}{
		"spec": map[string]interface{}{
			"url":     spec.URL,
			"method":  spec.HTTPMethod(),
			"params":  stringMapToAny(spec.Params),
			"headers": stringMapToAny(spec.Headers),
		},
		"now":  b.Now(),
		"env":  environ(),
		"args": map[string]interface{}(args),
	}

	spec.Params = ensure(spec.Params)
	for name, expr := range exprs {
		val, err := b.Rules.EvaluateValue(expr, vars)
		if err != nil {
			return spec, fmt.Errorf("param '%s': %w", name, err)
		}
		spec.Params[name] = formatValue(val)
	}
	return spec, nil
}

func ensure(m config.StringMap) config.StringMap {
	if m == nil {
		return config.StringMap{}
	}
	return m
}

func stringMapToAny(m config.StringMap) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func environ() map[string]interface{} {
	out := make(map[string]interface{})
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}

func formatValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		return t.Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}
