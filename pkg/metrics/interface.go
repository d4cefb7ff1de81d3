package metrics

// Provider define o contrato para envio de métricas.
type Provider interface {
	Count(name string, value float64, tags []string) error
	Gauge(name string, value float64, tags []string) error
	Histogram(name string, value float64, tags []string) error
}

// MetricType define os tipos suportados.
type MetricType string

const (
	TypeCount     MetricType = "count"
	TypeGauge     MetricType = "gauge"
	TypeHistogram MetricType = "histogram"
)

// Nomes das métricas emitidas pelo poller.
const (
	MetricCall          = "poller.call"
	MetricCallLatency   = "poller.call.latency_ms"
	MetricArtifact      = "poller.artifact"
	MetricNestedSkipped = "poller.nested.skipped"
	MetricRun           = "poller.run"
)
