package metrics

import (
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

// CallSample descreve uma chamada HTTP concluída (ou falha de transporte).
type CallSample struct {
	Endpoint string
	Method   string
	Status   int
	Latency  time.Duration
	Outcome  string // ok | http_error | transport_error
}

// Recorder traduz eventos do poller em métricas. Falhas de envio são apenas logadas.
type Recorder struct {
	provider Provider
	custom   *Processor
	tags     []string
	logger   zerolog.Logger
}

// NewRecorder cria o gravador; custom pode ser nil.
func NewRecorder(provider Provider, custom *Processor, tags []string, logger zerolog.Logger) *Recorder {
	return &Recorder{
		provider: provider,
		custom:   custom,
		tags:     tags,
		logger:   logger.With().Str("component", "metrics").Logger(),
	}
}

// Call registra contagem e latência da chamada e avalia as métricas customizadas.
func (r *Recorder) Call(s CallSample) {
	if r == nil {
		return
	}
	tags := r.with(
		"endpoint:"+s.Endpoint,
		"method:"+s.Method,
		"status:"+strconv.Itoa(s.Status),
		"outcome:"+s.Outcome,
	)
	r.check(r.provider.Count(MetricCall, 1, tags))
	r.check(r.provider.Histogram(MetricCallLatency, float64(s.Latency.Milliseconds()), tags))

	if r.custom != nil {
		vars := map[string]interface{}{
			"call": map[string]interface{}{
				"endpoint":   s.Endpoint,
				"method":     s.Method,
				"status":     int64(s.Status),
				"latency_ms": s.Latency.Milliseconds(),
				"error":      s.Outcome != "ok",
				"outcome":    s.Outcome,
			},
		}
		if err := r.custom.ProcessRules(vars); err != nil {
			r.logger.Warn().Err(err).Msg("Falha ao avaliar métrica customizada")
		}
	}
}

// Artifact registra um artefato persistido (kind: data | error | sink).
func (r *Recorder) Artifact(kind string) {
	if r == nil {
		return
	}
	r.check(r.provider.Count(MetricArtifact, 1, r.with("kind:"+kind)))
}

// NestedSkipped registra um par (item, filho) descartado.
func (r *Recorder) NestedSkipped(reason string) {
	if r == nil {
		return
	}
	r.check(r.provider.Count(MetricNestedSkipped, 1, r.with("reason:"+reason)))
}

// Run registra o fim de uma rodada.
func (r *Recorder) Run(status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.check(r.provider.Gauge(MetricRun, float64(elapsed.Milliseconds()), r.with("status:"+status)))
}

func (r *Recorder) with(extra ...string) []string {
	out := make([]string, 0, len(r.tags)+len(extra))
	out = append(out, r.tags...)
	return append(out, extra...)
}

func (r *Recorder) check(err error) {
	if err != nil {
		r.logger.Debug().Err(err).Msg("Falha ao enviar métrica")
	}
}
