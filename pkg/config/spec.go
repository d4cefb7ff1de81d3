package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// APICallSpec descreve uma chamada HTTP e o pipeline de processadores associado.
// O valor lido da configuração nunca é alterado: executor e orquestrador trabalham sobre Clone().
type APICallSpec struct {
	URL     string      `json:"url" yaml:"url" validate:"required"`
	Method  string      `json:"method,omitempty" yaml:"method,omitempty"`
	Params  StringMap   `json:"params,omitempty" yaml:"params,omitempty"`
	Headers StringMap   `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    interface{} `json:"body,omitempty" yaml:"body,omitempty"`
	Verify  *bool       `json:"verify,omitempty" yaml:"verify,omitempty"`

	// Interval em segundos entre chamadas filhas (default 1, <= 0 desliga a espera).
	Interval *float64 `json:"interval,omitempty" yaml:"interval,omitempty"`
	// ItemsPath é o caminho pontilhado usado na resposta do pai.
	ItemsPath string `json:"items_path,omitempty" yaml:"items_path,omitempty"`

	Preprocess  *ProcessorRef `json:"preprocess,omitempty" yaml:"preprocess,omitempty"`
	Postprocess *ProcessorRef `json:"postprocess,omitempty" yaml:"postprocess,omitempty"`
	Output      *ProcessorRef `json:"output,omitempty" yaml:"output,omitempty"`
}

// Clone produz uma cópia profunda (maps, body e args).
func (s APICallSpec) Clone() APICallSpec {
	out := s
	out.Params = s.Params.Clone()
	out.Headers = s.Headers.Clone()
	out.Body = DeepCopy(s.Body)
	if s.Verify != nil {
		v := *s.Verify
		out.Verify = &v
	}
	if s.Interval != nil {
		v := *s.Interval
		out.Interval = &v
	}
	out.Preprocess = s.Preprocess.clone()
	out.Postprocess = s.Postprocess.clone()
	out.Output = s.Output.clone()
	return out
}

// HTTPMethod retorna o verbo em maiúsculas (GET quando vazio).
func (s APICallSpec) HTTPMethod() string {
	m := strings.ToUpper(strings.TrimSpace(s.Method))
	if m == "" {
		return "GET"
	}
	return m
}

// IntervalDuration converte o intervalo configurado.
func (s APICallSpec) IntervalDuration() time.Duration {
	if s.Interval == nil {
		return DefaultInterval
	}
	if *s.Interval <= 0 {
		return 0
	}
	return time.Duration(*s.Interval * float64(time.Second))
}

// VerifyTLS aplica a flag da chamada sobre o default global.
func (s APICallSpec) VerifyTLS(def bool) bool {
	return boolOr(s.Verify, def)
}

// Endpoint é o último segmento da URL, usado para nomear artefatos e tags.
func (s APICallSpec) Endpoint() string {
	return LastURLSegment(s.URL)
}

// LastURLSegment devolve o trecho após a última barra, com '?' e '&' trocados por '_'.
func LastURLSegment(raw string) string {
	seg := raw
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		seg = raw[i+1:]
	}
	seg = strings.NewReplacer("?", "_", "&", "_").Replace(seg)
	if seg == "" {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return u.Host
		}
		return "response"
	}
	return seg
}

// StringMap aceita valores escalares (números, booleanos) e os converte para string.
type StringMap map[string]string

func (m StringMap) Clone() StringMap {
	if m == nil {
		return nil
	}
	out := make(StringMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (m *StringMap) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("mapa de strings inválido: %w", err)
	}
	*m = fromRaw(raw)
	return nil
}

func (m *StringMap) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]interface{}
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("mapa de strings inválido: %w", err)
	}
	*m = fromRaw(raw)
	return nil
}

func fromRaw(raw map[string]interface{}) StringMap {
	if raw == nil {
		return nil
	}
	out := make(StringMap, len(raw))
	for k, v := range raw {
		if v == nil {
			continue
		}
		out[k] = fmt.Sprint(v)
	}
	return out
}

// DeepCopy copia recursivamente valores no formato JSON genérico.
func DeepCopy(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = DeepCopy(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = DeepCopy(val)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, val := range t {
			out[k] = val
		}
		return out
	default:
		return v
	}
}
