package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Marcadores aceitos em mapas produzidos por processadores externos.
const (
	FlattenMarker = "__flatten_json_output"
	SplitMarker   = "__split_json_output"
)

// Flat é conteúdo já serializado, gravado sem alteração.
type Flat string

// Lines são documentos independentes, gravados um por linha.
type Lines []string

// Render converte o dado processado no conteúdo do artefato:
//   - Flat, string, []byte ou marcador de flatten: texto puro
//   - Lines ou marcador de split: uma linha por item
//   - lista de listas: linhas delimitadas por '|'
//   - demais valores: JSON indentado com 2 espaços
func Render(data interface{}) ([]byte, error) {
	switch v := data.(type) {
	case Flat:
		return []byte(v), nil
	case Lines:
		return []byte(strings.Join(v, "\n")), nil
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	case map[string]interface{}:
		if flat, ok := v[FlattenMarker]; ok {
			return []byte(fmt.Sprint(flat)), nil
		}
		if split, ok := v[SplitMarker]; ok {
			return []byte(strings.Join(toStrings(split), "\n")), nil
		}
	case []interface{}:
		if rows, ok := asRows(v); ok {
			return []byte(strings.Join(rows, "\n")), nil
		}
	}
	return prettyJSON(data)
}

// RenderError monta o conteúdo de um artefato de erro.
func RenderError(status int, body string) []byte {
	return []byte(fmt.Sprintf("Status code: %d\nResponse: %s\n", status, body))
}

func prettyJSON(data interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		return nil, fmt.Errorf("erro ao serializar artefato: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// asRows reconhece listas de listas de escalares.
func asRows(list []interface{}) ([]string, bool) {
	if len(list) == 0 {
		return nil, false
	}
	rows := make([]string, 0, len(list))
	for _, item := range list {
		row, ok := item.([]interface{})
		if !ok {
			return nil, false
		}
		cells := make([]string, len(row))
		for i, cell := range row {
			switch cell.(type) {
			case map[string]interface{}, []interface{}:
				return nil, false
			case nil:
				cells[i] = ""
			default:
				cells[i] = fmt.Sprint(cell)
			}
		}
		rows = append(rows, strings.Join(cells, "|"))
	}
	return rows, true
}

func toStrings(v interface{}) []string {
	switch t := v.(type) {
	case []string:
		return t
	case Lines:
		return t
	case []interface{}:
		out := make([]string, len(t))
		for i, item := range t {
			if s, ok := item.(string); ok {
				out[i] = s
				continue
			}
			b, err := json.Marshal(item)
			if err != nil {
				out[i] = fmt.Sprint(item)
				continue
			}
			out[i] = string(b)
		}
		return out
	default:
		return []string{fmt.Sprint(v)}
	}
}
