package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/raywall/api-poller/pkg/config"
	"github.com/raywall/api-poller/pkg/metrics"
	"github.com/rs/zerolog"
)

// ErrRunAborted indica um erro inesperado que interrompeu a rodada inteira.
var ErrRunAborted = errors.New("rodada abortada")

// RunSummary resume uma rodada completa.
type RunSummary struct {
	RunID         string
	Singles       int
	SinglesFailed int
	Groups        int
	GroupsFailed  int
	Nested        NestedSummary
	Removed       int
	Elapsed       time.Duration
}

// Poller executa a configuração: chamadas simples primeiro, depois os grupos
// aninhados, sempre em sequência. Falhas individuais não interrompem a rodada.
type Poller struct {
	cfg      *config.PollerConfig
	executor *Executor
	nested   *Orchestrator
	cleaners []Cleaner
	recorder *metrics.Recorder
	logger   zerolog.Logger
}

type PollerOption func(*Poller)

// WithCleaners registra os diretórios limpos ao final de cada rodada.
func WithCleaners(c ...Cleaner) PollerOption {
	return func(p *Poller) { p.cleaners = append(p.cleaners, c...) }
}

func WithRunRecorder(r *metrics.Recorder) PollerOption {
	return func(p *Poller) { p.recorder = r }
}

func WithRunLogger(l zerolog.Logger) PollerOption {
	return func(p *Poller) { p.logger = l }
}

// New cria o poller. O orquestrador padrão usa o mesmo executor.
func New(cfg *config.PollerConfig, exec *Executor, opts ...PollerOption) *Poller {
	p := &Poller{
		cfg:      cfg,
		executor: exec,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithOrchestrator troca o orquestrador de chamadas aninhadas.
func WithOrchestrator(o *Orchestrator) PollerOption {
	return func(p *Poller) { p.nested = o }
}

// Run executa uma rodada. Só devolve erro em cancelamento do contexto ou
// em falha inesperada (panic), que aborta a rodada.
func (p *Poller) Run(ctx context.Context) (summary RunSummary, err error) {
	start := time.Now()
	summary.RunID = uuid.NewString()

	log := loggerFrom(ctx, p.logger).With().Str("run_id", summary.RunID).Logger()
	ctx = log.WithContext(ctx)

	nested := p.nested
	if nested == nil {
		nested = NewOrchestrator(p.executor, WithNestedRecorder(p.recorder), WithNestedLogger(p.logger))
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v", ErrRunAborted, rec)
		}
		summary.Elapsed = time.Since(start)

		status := "ok"
		ev := log.Info()
		if err != nil {
			status = "aborted"
			ev = log.Error().Err(err)
		}
		p.recorder.Run(status, summary.Elapsed)
		ev.Int("singles", summary.Singles).
			Int("singles_failed", summary.SinglesFailed).
			Int("groups", summary.Groups).
			Int("groups_failed", summary.GroupsFailed).
			Int64("latency_ms", summary.Elapsed.Milliseconds()).
			Msg("Rodada finalizada")
	}()

	log.Info().
		Int("single_apis", len(p.cfg.SingleAPIs)).
		Int("nested_apis", len(p.cfg.NestedAPIs)).
		Msg("🚀 Iniciando rodada")

	// 1. Chamadas simples
	for i, api := range p.cfg.SingleAPIs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Singles++
		res, err := p.executor.Execute(ctx, api)
		if err != nil || res.IsError {
			summary.SinglesFailed++
			log.Warn().Int("index", i).Str("url", api.URL).Msg("Chamada simples sem sucesso")
		}
	}

	// 2. Grupos aninhados
	for i, group := range p.cfg.NestedAPIs {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Groups++
		ns, err := nested.ExecuteNested(ctx, group)
		summary.Nested.Items += ns.Items
		summary.Nested.Executed += ns.Executed
		summary.Nested.Failed += ns.Failed
		summary.Nested.Skipped += ns.Skipped
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return summary, ctxErr
			}
			summary.GroupsFailed++
			log.Warn().Err(err).Int("index", i).Str("url", group.Parent.URL).Msg("Grupo aninhado interrompido")
		}
	}

	// 3. Limpeza de arquivos antigos
	// cleanup_days: 0 desativa a limpeza
	maxAge := p.cfg.CleanupAfter()
	if maxAge <= 0 {
		return summary, nil
	}
	for _, c := range p.cleaners {
		removed, err := c.Cleanup(maxAge)
		if err != nil {
			log.Error().Err(err).Msg("Falha na limpeza de arquivos antigos")
			continue
		}
		summary.Removed += removed
	}

	return summary, nil
}
