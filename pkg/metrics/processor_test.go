package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/raywall/api-poller/pkg/config"
	"github.com/raywall/api-poller/pkg/rules"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	Kind  string
	Name  string
	Value float64
	Tags  []string
}

// MockProvider para verificar chamadas
type MockProvider struct {
	mu    sync.Mutex
	Calls []sent
	Err   error
}

func (m *MockProvider) record(kind, name string, val float64, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, sent{kind, name, val, tags})
	return m.Err
}

func (m *MockProvider) Count(name string, val float64, tags []string) error {
	return m.record("count", name, val, tags)
}
func (m *MockProvider) Gauge(name string, val float64, tags []string) error {
	return m.record("gauge", name, val, tags)
}
func (m *MockProvider) Histogram(name string, val float64, tags []string) error {
	return m.record("histogram", name, val, tags)
}

func (m *MockProvider) byName(name string) []sent {
	var out []sent
	for _, c := range m.Calls {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

func TestProcessor_ProcessRules(t *testing.T) {
	rm, err := rules.NewRuleManager()
	require.NoError(t, err)

	vars := map[string]interface{}{
		"call": map[string]interface{}{
			"endpoint":   "https://api.example.com/alerts",
			"status":     int64(503),
			"latency_ms": int64(150),
			"error":      true,
		},
	}

	t.Run("Deve registrar Count com tags dinâmicas", func(t *testing.T) {
		provider := &MockProvider{}
		p := NewProcessor([]config.CustomMetricRule{{
			Name:  "alerts.failures",
			Type:  "count",
			Value: "1",
			When:  "call.error",
			Tags: map[string]string{
				"status": "string(call.status)",
				"env":    "'prod'",
			},
		}}, provider, rm)

		require.NoError(t, p.ProcessRules(vars))
		require.Len(t, provider.Calls, 1)
		assert.Equal(t, "count", provider.Calls[0].Kind)
		assert.Equal(t, 1.0, provider.Calls[0].Value)
		assert.Equal(t, []string{"env:prod", "status:503"}, provider.Calls[0].Tags)
	})

	t.Run("Condição falsa não envia", func(t *testing.T) {
		provider := &MockProvider{}
		p := NewProcessor([]config.CustomMetricRule{{
			Name: "slow", Type: "gauge", Value: "call.latency_ms", When: "call.latency_ms > 1000",
		}}, provider, rm)

		require.NoError(t, p.ProcessRules(vars))
		assert.Empty(t, provider.Calls)
	})

	t.Run("Gauge com valor calculado", func(t *testing.T) {
		provider := &MockProvider{}
		p := NewProcessor([]config.CustomMetricRule{{
			Name: "latency", Type: "gauge", Value: "call.latency_ms * 2",
		}}, provider, rm)

		require.NoError(t, p.ProcessRules(vars))
		require.Len(t, provider.Calls, 1)
		assert.Equal(t, 300.0, provider.Calls[0].Value)
	})

	t.Run("Erro de expressão não impede as demais regras", func(t *testing.T) {
		provider := &MockProvider{}
		p := NewProcessor([]config.CustomMetricRule{
			{Name: "bad", Type: "count", Value: "call.nope +"},
			{Name: "good", Type: "count", Value: "1"},
		}, provider, rm)

		err := p.ProcessRules(vars)
		assert.Error(t, err)
		assert.Len(t, provider.byName("good"), 1)
	})
}

func TestRecorder(t *testing.T) {
	provider := &MockProvider{}
	rec := NewRecorder(provider, nil, []string{"service:poller"}, zerolog.Nop())

	rec.Call(CallSample{Endpoint: "/a", Method: "GET", Status: 200, Latency: 42 * time.Millisecond, Outcome: "ok"})
	rec.Artifact("data")
	rec.NestedSkipped("placeholder")

	calls := provider.byName(MetricCall)
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"service:poller", "endpoint:/a", "method:GET", "status:200", "outcome:ok"}, calls[0].Tags)

	latency := provider.byName(MetricCallLatency)
	require.Len(t, latency, 1)
	assert.Equal(t, 42.0, latency[0].Value)

	assert.Len(t, provider.byName(MetricArtifact), 1)
	assert.Len(t, provider.byName(MetricNestedSkipped), 1)

	t.Run("Recorder nil é seguro", func(t *testing.T) {
		var nilRec *Recorder
		assert.NotPanics(t, func() { nilRec.Call(CallSample{}) })
	})

	t.Run("Erro do provider é apenas logado", func(t *testing.T) {
		failing := &MockProvider{Err: errors.New("udp down")}
		r := NewRecorder(failing, nil, nil, zerolog.Nop())
		assert.NotPanics(t, func() { r.Artifact("error") })
	})
}
