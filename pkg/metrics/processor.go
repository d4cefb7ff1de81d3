package metrics

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/raywall/api-poller/pkg/config"
	"github.com/raywall/api-poller/pkg/rules"
)

// Processor avalia as métricas customizadas (CEL) e as envia ao provider.
type Processor struct {
	rules       []config.CustomMetricRule
	provider    Provider
	ruleManager *rules.RuleManager
}

// NewProcessor cria um processador para as regras configuradas.
func NewProcessor(conf []config.CustomMetricRule, provider Provider, rm *rules.RuleManager) *Processor {
	return &Processor{
		rules:       conf,
		provider:    provider,
		ruleManager: rm,
	}
}

// ProcessRules avalia todas as regras; continua nas seguintes e devolve o primeiro erro.
func (p *Processor) ProcessRules(vars map[string]interface{}) error {
	var firstErr error
	for _, rule := range p.rules {
		if err := p.processSingleRule(rule, vars); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Processor) processSingleRule(rule config.CustomMetricRule, vars map[string]interface{}) error {
	// 1. Avaliar a condição de registro
	ok, err := p.ruleManager.EvaluateBool(rule.When, vars)
	if err != nil {
		return fmt.Errorf("erro ao avaliar condição da métrica %s: %w", rule.Name, err)
	}
	if !ok {
		return nil
	}

	// 2. Avaliar o Valor (CEL)
	rawVal, err := p.ruleManager.EvaluateValue(rule.Value, vars)
	if err != nil {
		return fmt.Errorf("erro ao avaliar valor da métrica %s: %w", rule.Name, err)
	}

	val, err := toFloat64(rawVal)
	if err != nil {
		return fmt.Errorf("valor da métrica %s inválido: %w", rule.Name, err)
	}

	// 3. Avaliar Tags (CEL), em ordem estável
	keys := make([]string, 0, len(rule.Tags))
	for k := range rule.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	finalTags := make([]string, 0, len(keys))
	for _, k := range keys {
		tagVal, err := p.ruleManager.EvaluateValue(rule.Tags[k], vars)
		if err != nil {
			return fmt.Errorf("erro ao avaliar tag %s da métrica %s: %w", k, rule.Name, err)
		}
		finalTags = append(finalTags, fmt.Sprintf("%s:%v", k, tagVal))
	}

	// 4. Enviar para o Provider
	switch MetricType(rule.Type) {
	case TypeCount:
		return p.provider.Count(rule.Name, val, finalTags)
	case TypeGauge:
		return p.provider.Gauge(rule.Name, val, finalTags)
	case TypeHistogram:
		return p.provider.Histogram(rule.Name, val, finalTags)
	default:
		return fmt.Errorf("tipo de métrica desconhecido: %s", rule.Type)
	}
}

// Helper para converter retorno do CEL (int, int64, float64, string) para float64
func toFloat64(v interface{}) (float64, error) {
	switch i := v.(type) {
	case float64:
		return i, nil
	case float32:
		return float64(i), nil
	case int:
		return float64(i), nil
	case int64:
		return float64(i), nil
	case uint64:
		return float64(i), nil
	case bool:
		if i {
			return 1, nil
		}
		return 0, nil
	case string:
		return strconv.ParseFloat(i, 64)
	default:
		return 0, fmt.Errorf("tipo numérico não suportado: %T", v)
	}
}
