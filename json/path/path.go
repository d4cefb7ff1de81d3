package path

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrSegmentNotFound indica um campo ausente ou um segmento incompatível com o tipo atual.
	ErrSegmentNotFound = errors.New("segmento não encontrado")
	// ErrIndexOutOfRange indica um índice numérico fora dos limites do array.
	ErrIndexOutOfRange = errors.New("índice fora do intervalo")
)

// Extrator navega em documentos JSON decodificados (objeto, array ou escalar na raiz).
type Extrator struct {
	data interface{}
}

// NovoExtrator cria uma nova instância do extrator a partir de bytes JSON.
// Números são preservados como json.Number.
func NovoExtrator(jsonBytes []byte) (*Extrator, error) {
	data, err := Decode(jsonBytes)
	if err != nil {
		return nil, err
	}
	return &Extrator{data: data}, nil
}

// NovoExtratorDe cria o extrator sobre um valor já decodificado.
func NovoExtratorDe(data interface{}) *Extrator {
	return &Extrator{data: data}
}

// Decode faz o parse de JSON mantendo números como json.Number.
func Decode(jsonBytes []byte) (interface{}, error) {
	var data interface{}
	dec := json.NewDecoder(bytes.NewReader(jsonBytes))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("erro ao fazer parse do JSON: %w", err)
	}
	// Conteúdo extra após o primeiro documento não é JSON válido
	if dec.More() {
		return nil, fmt.Errorf("erro ao fazer parse do JSON: conteúdo após o documento")
	}
	return data, nil
}

// Extrair resolve um caminho pontilhado.
// Exemplos de caminhos válidos:
//   - "" -> documento completo
//   - "data.items" -> navega em objetos aninhados
//   - "items.0.id" -> segmento numérico indexa arrays
//   - "items[1].nome" -> notação com colchetes também é aceita
//
// Em objetos o segmento é sempre tratado como chave, mesmo se numérico.
func (e *Extrator) Extrair(caminho string) (interface{}, error) {
	caminho = strings.TrimSpace(caminho)
	if caminho == "" {
		return e.data, nil
	}

	atual := e.data
	partes := parseCaminho(caminho)

	for i, parte := range partes {
		switch no := atual.(type) {
		case map[string]interface{}:
			valor, existe := no[parte]
			if !existe {
				return nil, fmt.Errorf("%w: '%s' no caminho '%s'", ErrSegmentNotFound, parte, strings.Join(partes[:i+1], "."))
			}
			atual = valor

		case []interface{}:
			indice, err := strconv.Atoi(parte)
			if err != nil {
				return nil, fmt.Errorf("%w: esperado índice numérico em '%s', recebido '%s'", ErrSegmentNotFound, caminho, parte)
			}
			if indice < 0 || indice >= len(no) {
				return nil, fmt.Errorf("%w: %d (tamanho %d) no caminho '%s'", ErrIndexOutOfRange, indice, len(no), caminho)
			}
			atual = no[indice]

		default:
			return nil, fmt.Errorf("%w: '%s' aplicado sobre %T no caminho '%s'", ErrSegmentNotFound, parte, atual, caminho)
		}
	}

	return atual, nil
}

// ExtrairString é um helper que extrai e converte para string
func (e *Extrator) ExtrairString(caminho string) (string, error) {
	valor, err := e.Extrair(caminho)
	if err != nil {
		return "", err
	}

	switch v := valor.(type) {
	case string:
		return v, nil
	case nil:
		return "", fmt.Errorf("valor é null")
	default:
		return fmt.Sprintf("%v", v), nil
	}
}

// Existe verifica se um caminho existe no JSON
func (e *Extrator) Existe(caminho string) bool {
	_, err := e.Extrair(caminho)
	return err == nil
}

// UltimoSegmento devolve o último segmento não vazio do caminho ("" se não houver).
func UltimoSegmento(caminho string) string {
	partes := parseCaminho(caminho)
	if len(partes) == 0 {
		return ""
	}
	return partes[len(partes)-1]
}

// parseCaminho divide o caminho em segmentos, convertendo "campo[0]" em "campo", "0".
func parseCaminho(caminho string) []string {
	normalizado := strings.NewReplacer("[", ".", "]", "").Replace(strings.TrimSpace(caminho))

	var partes []string
	for _, segmento := range strings.Split(normalizado, ".") {
		if segmento == "" {
			continue
		}
		partes = append(partes, segmento)
	}
	return partes
}

// ToJSONIndent converte o valor extraído para JSON formatado
func ToJSONIndent(valor interface{}) ([]byte, error) {
	return json.MarshalIndent(valor, "", "  ")
}
