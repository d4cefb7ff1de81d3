package rules

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// RuleManager gerencia a compilação e avaliação de expressões CEL.
type RuleManager struct {
	env *cel.Env

	mu       sync.RWMutex
	programs map[string]cel.Program
}

// NewRuleManager inicializa o ambiente CEL com as variáveis padrão esperadas.
func NewRuleManager() (*RuleManager, error) {
	env, err := cel.NewEnv(
		cel.Variable("response", cel.DynType), // Corpo da resposta (JSON decodificado)
		cel.Variable("item", cel.DynType),     // Elemento corrente em filtros
		cel.Variable("status", cel.IntType),   // Status HTTP
		cel.Variable("spec", cel.DynType),     // Chamada em pré-processamento
		cel.Variable("call", cel.DynType),     // Dados da chamada (métricas)
		cel.Variable("args", cel.DynType),     // Argumentos do processador
		cel.Variable("env", cel.DynType),      // Variáveis de ambiente
		cel.Variable("now", cel.TimestampType),
	)
	if err != nil {
		return nil, fmt.Errorf("erro fatal CEL init: %w", err)
	}

	return &RuleManager{env: env, programs: make(map[string]cel.Program)}, nil
}

// EvaluateBool processa regras de validação (deve retornar true/false).
func (rm *RuleManager) EvaluateBool(expression string, vars map[string]interface{}) (bool, error) {
	if expression == "" {
		return true, nil // Expressão vazia = aprova
	}

	out, err := rm.eval(expression, vars)
	if err != nil {
		return false, err
	}

	if val, ok := out.Value().(bool); ok {
		return val, nil
	}
	return false, fmt.Errorf("resultado de '%s' não é booleano", expression)
}

// EvaluateValue processa regras de transformação (retorna um valor nativo Go).
func (rm *RuleManager) EvaluateValue(expression string, vars map[string]interface{}) (interface{}, error) {
	if expression == "" {
		return nil, nil
	}

	out, err := rm.eval(expression, vars)
	if err != nil {
		return nil, err
	}
	return ToNative(out), nil
}

// CompileProgram expõe a compilação do CEL (usada pelo analisador de configuração).
func (rm *RuleManager) CompileProgram(expr string) (cel.Program, error) {
	rm.mu.RLock()
	prg, ok := rm.programs[expr]
	rm.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := rm.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("erro de compilação CEL '%s': %w", expr, issues.Err())
	}
	prg, err := rm.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("erro ao gerar programa CEL: %w", err)
	}

	rm.mu.Lock()
	rm.programs[expr] = prg
	rm.mu.Unlock()
	return prg, nil
}

func (rm *RuleManager) eval(expression string, vars map[string]interface{}) (ref.Val, error) {
	prg, err := rm.CompileProgram(expression)
	if err != nil {
		return nil, err
	}

	activation := make(map[string]interface{}, len(vars))
	for k, v := range vars {
		activation[k] = Normalize(v)
	}

	out, _, err := prg.Eval(activation)
	if err != nil {
		return nil, fmt.Errorf("erro execução CEL '%s': %w", expression, err)
	}
	return out, nil
}

// Normalize converte json.Number em int64/float64, que o CEL entende como números.
func Normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[k] = Normalize(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, item := range t {
			out[i] = Normalize(item)
		}
		return out
	case int:
		return int64(t)
	default:
		return v
	}
}

// ToNative converte o resultado CEL em tipos Go genéricos (mapas, listas, escalares).
func ToNative(v ref.Val) interface{} {
	switch t := v.(type) {
	case types.Null:
		return nil
	case traits.Mapper:
		out := make(map[string]interface{})
		it := t.Iterator()
		for it.HasNext() == types.True {
			k := it.Next()
			out[fmt.Sprint(k.Value())] = ToNative(t.Get(k))
		}
		return out
	case traits.Lister:
		var out []interface{}
		it := t.Iterator()
		for it.HasNext() == types.True {
			out = append(out, ToNative(it.Next()))
		}
		if out == nil {
			out = []interface{}{}
		}
		return out
	}
	return v.Value()
}
