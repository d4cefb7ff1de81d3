package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/raywall/api-poller/pkg/config"
	"github.com/raywall/api-poller/pkg/registry"
	"github.com/raywall/api-poller/pkg/rules"
)

// ValidationReport contém o resultado detalhado da análise.
type ValidationReport struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// argumentos CEL conhecidos por processador built-in
var celArgs = map[string][]string{
	"cel_filter":    {"expr"},
	"cel_transform": {"expr", "when", "else"},
}

// Analyze realiza uma inspeção profunda na configuração já validada.
// reg pode ser nil; nesse caso os nomes de processadores não são conferidos.
func Analyze(cfg *config.PollerConfig, reg *registry.Registry) (*ValidationReport, error) {
	report := &ValidationReport{
		Valid:    true,
		Errors:   []string{},
		Warnings: []string{},
	}

	// 1. Inicializa dependências necessárias para checagem (compilador CEL)
	rm, err := rules.NewRuleManager()
	if err != nil {
		return nil, fmt.Errorf("falha interna ao iniciar analisador de regras: %w", err)
	}
	a := &analysis{report: report, reg: reg, rm: rm}

	// 2. Chamadas simples
	for i, api := range cfg.SingleAPIs {
		where := fmt.Sprintf("single_apis[%d]", i)
		a.call(where, api)
		a.unexpectedPlaceholders(where, api)
	}

	// 3. Grupos aninhados
	for i, group := range cfg.NestedAPIs {
		where := fmt.Sprintf("nested_apis[%d]", i)
		a.call(where+".parent_api", group.Parent)
		a.unexpectedPlaceholders(where+".parent_api", group.Parent)

		for j, child := range group.Children {
			cw := fmt.Sprintf("%s.child_apis[%d]", where, j)
			a.call(cw, child)
			if len(Placeholders(child.URL)) == 0 {
				report.Warnings = append(report.Warnings,
					fmt.Sprintf("%s: URL sem placeholders, a mesma chamada será repetida para cada item", cw))
			}
		}
	}

	// 4. Métricas customizadas
	for _, m := range cfg.Metrics.Datadog.Custom {
		a.compile(fmt.Sprintf("metrics.custom[%s].value", m.Name), m.Value)
		if m.When != "" {
			a.compile(fmt.Sprintf("metrics.custom[%s].when", m.Name), m.When)
		}
	}

	if len(report.Errors) > 0 {
		report.Valid = false
	}

	return report, nil
}

type analysis struct {
	report *ValidationReport
	reg    *registry.Registry
	rm     *rules.RuleManager
}

func (a *analysis) call(where string, api config.APICallSpec) {
	a.processor(where+".preprocess", registry.KindPreprocessor, api.Preprocess)
	a.processor(where+".postprocess", registry.KindPostprocessor, api.Postprocess)
	a.processor(where+".output", registry.KindOutput, api.Output)
}

func (a *analysis) processor(where string, kind registry.Kind, ref *config.ProcessorRef) {
	if ref == nil || ref.Name == "" {
		return
	}
	if a.reg != nil && !a.reg.Has(kind, ref.Name) {
		a.report.Errors = append(a.report.Errors,
			fmt.Sprintf("%s: processador desconhecido '%s' (%s)", where, ref.Name, kind))
	}

	args := registry.Args(ref.Args)
	for _, key := range celArgs[ref.Name] {
		if expr := args.String(key, ""); expr != "" {
			a.compile(fmt.Sprintf("%s.args.%s", where, key), expr)
		}
	}
	if ref.Name == "cel_params" {
		params := args.StringMap("params")
		names := make([]string, 0, len(params))
		for name := range params {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			a.compile(fmt.Sprintf("%s.args.params.%s", where, name), params[name])
		}
	}
}

func (a *analysis) compile(where, expr string) {
	if _, err := a.rm.CompileProgram(expr); err != nil {
		a.report.Errors = append(a.report.Errors, fmt.Sprintf("%s: Erro de sintaxe CEL: %v", where, err))
	}
}

// unexpectedPlaceholders avisa sobre {campo} em chamadas que não passam por substituição.
func (a *analysis) unexpectedPlaceholders(where string, api config.APICallSpec) {
	names := Placeholders(api.URL)
	if len(names) == 0 {
		return
	}
	if api.Preprocess != nil && api.Preprocess.Name != "" {
		return
	}
	a.report.Warnings = append(a.report.Warnings,
		fmt.Sprintf("%s: placeholders {%s} não serão substituídos sem um pré-processador", where, strings.Join(names, "}, {")))
}
