package processors

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/raywall/api-poller/json/path"
	"github.com/raywall/api-poller/pkg/registry"
	"github.com/raywall/api-poller/pkg/storage"
)

// records normaliza o dado processado em uma lista de eventos.
func records(data interface{}) ([]interface{}, error) {
	switch v := data.(type) {
	case map[string]interface{}:
		if split, ok := v[storage.SplitMarker]; ok {
			return records(toLines(split))
		}
		if flat, ok := v[storage.FlattenMarker]; ok {
			return records(storage.Flat(fmt.Sprint(flat)))
		}
		return []interface{}{v}, nil
	case []interface{}:
		return v, nil
	case storage.Lines:
		out := make([]interface{}, 0, len(v))
		for _, line := range v {
			out = append(out, decodeLine(line))
		}
		return out, nil
	case storage.Flat:
		return []interface{}{decodeLine(string(v))}, nil
	default:
		return nil, fmt.Errorf("tipo de dado não suportado: %T", data)
	}
}

// lines serializa cada evento em uma linha JSON compacta.
func lines(data interface{}) ([]string, error) {
	switch v := data.(type) {
	case storage.Lines:
		return v, nil
	case storage.Flat:
		return []string{string(v)}, nil
	case map[string]interface{}:
		if split, ok := v[storage.SplitMarker]; ok {
			return toLines(split), nil
		}
		if flat, ok := v[storage.FlattenMarker]; ok {
			return []string{fmt.Sprint(flat)}, nil
		}
	}

	recs, err := records(data)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(recs))
	for _, r := range recs {
		line, err := compactJSON(r)
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, nil
}

func toLines(v interface{}) storage.Lines {
	switch t := v.(type) {
	case storage.Lines:
		return t
	case []string:
		return t
	case []interface{}:
		out := make(storage.Lines, 0, len(t))
		for _, item := range t {
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return storage.Lines{fmt.Sprint(v)}
}

func decodeLine(line string) interface{} {
	if v, err := path.Decode([]byte(line)); err == nil {
		return v
	}
	return line
}

func (b *builtins) outputPath(args registry.Args, endpoint, ext string) (string, error) {
	dir := args.String("directory", b.OutputDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("erro ao criar diretório '%s': %w", dir, err)
	}
	name := args.String("filename", "")
	if name == "" {
		name = artifactName(endpoint, ext, b.Now())
	}
	return filepath.Join(dir, name), nil
}

// csvFile grava os registros como CSV. Sem fields usa as chaves do primeiro registro (ordenadas).
func (b *builtins) csvFile(_ context.Context, data interface{}, endpoint string, args registry.Args) (bool, error) {
	recs, err := records(data)
	if err != nil {
		return false, err
	}

	fields := args.Strings("fields")
	if len(fields) == 0 && len(recs) > 0 {
		if first, ok := recs[0].(map[string]interface{}); ok {
			for k := range first {
				fields = append(fields, k)
			}
			sort.Strings(fields)
		}
	}

	file, err := b.outputPath(args, endpoint, ".csv")
	if err != nil {
		return false, err
	}

	f, err := os.Create(file)
	if err != nil {
		return false, fmt.Errorf("erro ao criar CSV: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if args.Bool("headers", true) {
		if err := w.Write(fields); err != nil {
			return false, err
		}
	}
	for _, rec := range recs {
		row, ok := rec.(map[string]interface{})
		if !ok {
			continue
		}
		cells := make([]string, len(fields))
		for i, field := range fields {
			cells[i] = cell(row[field])
		}
		if err := w.Write(cells); err != nil {
			return false, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return false, fmt.Errorf("erro ao gravar CSV: %w", err)
	}

	b.logger.Info().Str("endpoint", endpoint).Str("file", file).Msg("Resposta salva como CSV")
	return true, nil
}

func cell(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]interface{}, []interface{}:
		s, err := compactJSON(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return s
	}
	return fmt.Sprint(v)
}

// jsonlFile grava um objeto JSON por linha.
func (b *builtins) jsonlFile(_ context.Context, data interface{}, endpoint string, args registry.Args) (bool, error) {
	out, err := lines(data)
	if err != nil {
		return false, err
	}

	file, err := b.outputPath(args, endpoint, ".jsonl")
	if err != nil {
		return false, err
	}

	var sb strings.Builder
	for _, line := range out {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	if err := os.WriteFile(file, []byte(sb.String()), 0o644); err != nil {
		return false, fmt.Errorf("erro ao gravar JSONL: %w", err)
	}

	b.logger.Info().Str("endpoint", endpoint).Str("file", file).Int("lines", len(out)).Msg("Resposta salva como JSONL")
	return true, nil
}
