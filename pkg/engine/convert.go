package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// ConvertToYAML converte um arquivo de configuração JSON em YAML mantendo a ordem das chaves.
// yamlPath vazio grava ao lado do original com extensão .yaml.
func ConvertToYAML(jsonPath, yamlPath string) (string, error) {
	if yamlPath == "" {
		yamlPath = strings.TrimSuffix(jsonPath, filepath.Ext(jsonPath)) + ".yaml"
	}

	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return "", fmt.Errorf("erro ao ler '%s': %w", jsonPath, err)
	}

	doc, err := decodeOrdered(data)
	if err != nil {
		return "", fmt.Errorf("JSON malformado em '%s': %w", jsonPath, err)
	}

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("erro ao gerar YAML: %w", err)
	}
	if err := os.WriteFile(yamlPath, out, 0o644); err != nil {
		return "", fmt.Errorf("erro ao gravar '%s': %w", yamlPath, err)
	}
	return yamlPath, nil
}

// decodeOrdered lê JSON para yaml.MapSlice, preservando a ordem dos objetos.
func decodeOrdered(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	v, err := readValue(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("conteúdo após o documento")
	}
	return v, nil
}

func readValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			out := yaml.MapSlice{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				val, err := readValue(dec)
				if err != nil {
					return nil, err
				}
				out = append(out, yaml.MapItem{Key: keyTok, Value: val})
			}
			_, err := dec.Token() // '}'
			return out, err
		case '[':
			out := []interface{}{}
			for dec.More() {
				val, err := readValue(dec)
				if err != nil {
					return nil, err
				}
				out = append(out, val)
			}
			_, err := dec.Token() // ']'
			return out, err
		}
		return nil, fmt.Errorf("delimitador inesperado '%v'", t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		return t.Float64()
	default:
		return t, nil
	}
}
