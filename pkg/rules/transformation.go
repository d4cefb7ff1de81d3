package rules

import (
	"fmt"
)

// Transformation descreve um cálculo condicional: quando Condition é verdadeira
// usa Value, senão ElseValue (se houver).
type Transformation struct {
	Name      string
	Condition string
	Value     string
	ElseValue string
}

// TransformationResult contém o resultado de uma operação de transformação.
type TransformationResult struct {
	Applied bool
	Value   interface{}
}

// ExecuteTransformation processa uma regra de transformação completa.
func (rm *RuleManager) ExecuteTransformation(rule Transformation, vars map[string]interface{}) (*TransformationResult, error) {
	// 1. Avaliar a Condição (Deve retornar booleano)
	conditionMet, err := rm.EvaluateBool(rule.Condition, vars)
	if err != nil {
		return nil, fmt.Errorf("falha ao avaliar condição da transformação '%s': %w", rule.Name, err)
	}

	exprToEvaluate := rule.Value
	if !conditionMet {
		if rule.ElseValue == "" {
			// Nenhuma ação necessária (condição falsa e sem else)
			return &TransformationResult{Applied: false}, nil
		}
		exprToEvaluate = rule.ElseValue
	}

	// 2. Calcular o Valor Final
	val, err := rm.EvaluateValue(exprToEvaluate, vars)
	if err != nil {
		return nil, fmt.Errorf("falha ao calcular valor da transformação '%s': %w", rule.Name, err)
	}

	return &TransformationResult{Value: val, Applied: true}, nil
}
