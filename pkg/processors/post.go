package processors

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/raywall/api-poller/json/path"
	"github.com/raywall/api-poller/pkg/registry"
	"github.com/raywall/api-poller/pkg/rules"
	"github.com/raywall/api-poller/pkg/storage"
	"github.com/raywall/api-poller/pkg/transport"
)

var errNotJSON = errors.New("resposta não é JSON")

func decode(resp *transport.Response) (interface{}, error) {
	data, err := resp.JSON()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errNotJSON, err)
	}
	return data, nil
}

// filterResponse mantém apenas os campos listados em fields.
func (b *builtins) filterResponse(_ context.Context, resp *transport.Response, args registry.Args) (interface{}, error) {
	data, err := decode(resp)
	if err != nil {
		return nil, err
	}

	fields := args.Strings("fields")
	if len(fields) == 0 {
		b.logger.Warn().Msg("filter_response sem 'fields': resposta mantida")
		return data, nil
	}
	keep := make(map[string]bool, len(fields))
	for _, f := range fields {
		keep[f] = true
	}

	filter := func(m map[string]interface{}) map[string]interface{} {
		out := make(map[string]interface{}, len(keep))
		for k, v := range m {
			if keep[k] {
				out[k] = v
			}
		}
		return out
	}

	switch v := data.(type) {
	case map[string]interface{}:
		return filter(v), nil
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				out[i] = filter(m)
				continue
			}
			out[i] = item
		}
		b.logger.Info().Int("items", len(out)).Msg("Itens da lista filtrados")
		return out, nil
	default:
		return data, nil
	}
}

// flattenJSON serializa a resposta em uma única linha (opcionalmente com _metadata).
func (b *builtins) flattenJSON(_ context.Context, resp *transport.Response, args registry.Args) (interface{}, error) {
	data, err := decode(resp)
	if err != nil {
		return nil, err
	}

	if args.Bool("add_metadata", false) {
		if m, ok := data.(map[string]interface{}); ok {
			m["_metadata"] = map[string]interface{}{
				"endpoint":    resp.URL,
				"status_code": resp.StatusCode,
				"timestamp":   b.Now().Format(time.RFC3339),
			}
		}
	}

	flat, err := compactJSON(data)
	if err != nil {
		return nil, err
	}
	return storage.Flat(flat), nil
}

// splitJSONArray quebra o array em array_path em um documento JSON por linha.
func (b *builtins) splitJSONArray(_ context.Context, resp *transport.Response, args registry.Args) (interface{}, error) {
	data, err := decode(resp)
	if err != nil {
		return nil, err
	}

	arrayPath := args.String("array_path", "")
	if arrayPath == "" {
		return nil, fmt.Errorf("split_json_array exige 'array_path'")
	}

	target, err := path.NovoExtratorDe(data).Extrair(arrayPath)
	if err != nil {
		return nil, fmt.Errorf("caminho '%s': %w", arrayPath, err)
	}
	items, ok := target.([]interface{})
	if !ok {
		return nil, fmt.Errorf("caminho '%s' não aponta para um array", arrayPath)
	}

	if args.Bool("add_metadata", false) {
		parent := make(map[string]interface{})
		if root, ok := data.(map[string]interface{}); ok {
			for _, field := range args.Strings("parent_fields") {
				if v, ok := root[field]; ok {
					parent[field] = v
				}
			}
		}
		ts := b.Now().Format(time.RFC3339)
		for _, item := range items {
			if m, ok := item.(map[string]interface{}); ok {
				m["_parent"] = parent
				m["_timestamp"] = ts
			}
		}
	}

	lines := make(storage.Lines, 0, len(items))
	for _, item := range items {
		line, err := compactJSON(item)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, nil
}

var (
	snakeFirst = regexp.MustCompile(`(.)([A-Z][a-z]+)`)
	snakeAll   = regexp.MustCompile(`([a-z0-9])([A-Z])`)
)

// transformKeys renomeia chaves (replacements) e aplica case lower|upper|snake, recursivamente.
func (b *builtins) transformKeys(_ context.Context, resp *transport.Response, args registry.Args) (interface{}, error) {
	data, err := decode(resp)
	if err != nil {
		return nil, err
	}

	replacements := args.StringMap("replacements")
	mode := args.String("case", "")

	transformKey := func(key string) string {
		if r, ok := replacements[key]; ok {
			key = r
		}
		switch mode {
		case "lower":
			return strings.ToLower(key)
		case "upper":
			return strings.ToUpper(key)
		case "snake":
			s := snakeFirst.ReplaceAllString(key, "${1}_${2}")
			return strings.ToLower(snakeAll.ReplaceAllString(s, "${1}_${2}"))
		}
		return key
	}

	var walk func(v interface{}) interface{}
	walk = func(v interface{}) interface{} {
		switch t := v.(type) {
		case map[string]interface{}:
			out := make(map[string]interface{}, len(t))
			for k, item := range t {
				out[transformKey(k)] = walk(item)
			}
			return out
		case []interface{}:
			out := make([]interface{}, len(t))
			for i, item := range t {
				out[i] = walk(item)
			}
			return out
		}
		return v
	}

	return walk(data), nil
}

// extractNested devolve o valor em path; se ausente devolve default.
func (b *builtins) extractNested(_ context.Context, resp *transport.Response, args registry.Args) (interface{}, error) {
	data, err := decode(resp)
	if err != nil {
		return nil, err
	}

	caminho := strings.Join(args.Strings("path"), ".")
	val, err := path.NovoExtratorDe(data).Extrair(caminho)
	if err != nil {
		b.logger.Warn().Err(err).Str("path", caminho).Msg("Caminho não encontrado, usando default")
		return args["default"], nil
	}
	return val, nil
}

// celFilter mantém os itens (da raiz ou de path) para os quais expr é verdadeira.
// Variáveis: item, response, status, args.
func (b *builtins) celFilter(_ context.Context, resp *transport.Response, args registry.Args) (interface{}, error) {
	data, err := decode(resp)
	if err != nil {
		return nil, err
	}

	expr := args.String("expr", "")
	if expr == "" {
		return nil, fmt.Errorf("cel_filter exige 'expr'")
	}

	target := data
	if p := args.String("path", ""); p != "" {
		if target, err = path.NovoExtratorDe(data).Extrair(p); err != nil {
			return nil, fmt.Errorf("caminho '%s': %w", p, err)
		}
	}
	items, ok := target.([]interface{})
	if !ok {
		items = []interface{}{target}
	}

	normalized := rules.Normalize(data)
	kept := make([]interface{}, 0, len(items))
	for _, item := range items {
		ok, err := b.Rules.EvaluateBool(expr, map[string]interface{}{
			"item":     item,
			"response": normalized,
			"status":   resp.StatusCode,
			"args":     map[string]interface{}(args),
		})
		if err != nil {
			return nil, err
		}
		if ok {
			kept = append(kept, item)
		}
	}

	b.logger.Info().Int("total", len(items)).Int("kept", len(kept)).Msg("Filtro CEL aplicado")
	return kept, nil
}

// celTransform avalia expr sobre a resposta. Com when, a expressão só vale se a
// condição for verdadeira (senão usa else ou mantém a resposta original).
func (b *builtins) celTransform(_ context.Context, resp *transport.Response, args registry.Args) (interface{}, error) {
	data, err := decode(resp)
	if err != nil {
		return nil, err
	}

	res, err := b.Rules.ExecuteTransformation(rules.Transformation{
		Name:      "cel_transform",
		Condition: args.String("when", ""),
		Value:     args.String("expr", ""),
		ElseValue: args.String("else", ""),
	}, map[string]interface{}{
		"response": data,
		"status":   resp.StatusCode,
		"args":     map[string]interface{}(args),
	})
	if err != nil {
		return nil, err
	}
	if !res.Applied {
		return data, nil
	}
	return res.Value, nil
}
