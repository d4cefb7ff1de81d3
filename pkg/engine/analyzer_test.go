package engine

import (
	"testing"

	"github.com/raywall/api-poller/pkg/config"
	"github.com/raywall/api-poller/pkg/registry"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func analyzerRegistry() *registry.Registry {
	reg := registry.New(zerolog.Nop())
	reg.RegisterPostprocessor("cel_filter", nil)
	reg.RegisterPostprocessor("cel_transform", nil)
	reg.RegisterPreprocessor("cel_params", nil)
	reg.RegisterOutput("jsonl_file", nil)
	return reg
}

func TestAnalyze_Detection(t *testing.T) {
	// Config com erros intencionais: processador inexistente e sintaxe CEL incompleta
	cfg := &config.PollerConfig{
		SingleAPIs: []config.APICallSpec{
			{
				URL:         "https://api.example.com/alerts",
				Postprocess: &config.ProcessorRef{Name: "cel_filter", Args: map[string]interface{}{"expr": "item.sev > "}},
				Output:      &config.ProcessorRef{Name: "nao_existe"},
			},
			{
				URL:        "https://api.example.com/{tenant}/events",
				Preprocess: &config.ProcessorRef{Name: "cel_params", Args: map[string]interface{}{"params": map[string]interface{}{"since": "now -"}}},
			},
		},
		Metrics: config.MetricsConf{Datadog: config.DatadogConf{Custom: []config.CustomMetricRule{
			{Name: "slow", Type: "count", Value: "1", When: "call.latency_ms >"},
		}}},
	}

	report, err := Analyze(cfg, analyzerRegistry())
	require.NoError(t, err)

	assert.False(t, report.Valid, "Deveria ser inválido devido aos erros de sintaxe CEL")
	assert.Len(t, report.Errors, 4)
	assert.Contains(t, report.Errors[0], "single_apis[0].postprocess.args.expr")
	assert.Contains(t, report.Errors[1], "processador desconhecido 'nao_existe'")
	assert.Contains(t, report.Errors[2], "single_apis[1].preprocess.args.params.since")
	assert.Contains(t, report.Errors[3], "metrics.custom[slow].when")
	// Placeholder com pré-processador não gera aviso
	assert.Empty(t, report.Warnings)
}

func TestAnalyze_Warnings(t *testing.T) {
	cfg := &config.PollerConfig{
		SingleAPIs: []config.APICallSpec{{URL: "https://api.example.com/{tenant}/alerts"}},
		NestedAPIs: []config.NestedCallSpec{{
			Parent: config.APICallSpec{URL: "https://api.example.com/hosts", ItemsPath: "hosts"},
			Children: []config.APICallSpec{
				{URL: "https://api.example.com/hosts/{id}", Output: &config.ProcessorRef{Name: "jsonl_file"}},
				{URL: "https://api.example.com/summary"},
			},
		}},
	}

	report, err := Analyze(cfg, analyzerRegistry())
	require.NoError(t, err)

	assert.True(t, report.Valid)
	assert.Equal(t, []string{
		"single_apis[0]: placeholders {tenant} não serão substituídos sem um pré-processador",
		"nested_apis[0].child_apis[1]: URL sem placeholders, a mesma chamada será repetida para cada item",
	}, report.Warnings)
}

func TestAnalyze_WithoutRegistry(t *testing.T) {
	cfg := &config.PollerConfig{
		SingleAPIs: []config.APICallSpec{{
			URL:         "https://api.example.com/a",
			Postprocess: &config.ProcessorRef{Name: "qualquer"},
		}},
	}

	report, err := Analyze(cfg, nil)
	require.NoError(t, err)
	assert.True(t, report.Valid)
}
