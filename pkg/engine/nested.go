package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/raywall/api-poller/json/path"
	"github.com/raywall/api-poller/pkg/config"
	"github.com/raywall/api-poller/pkg/metrics"
	"github.com/rs/zerolog"
)

// ErrParentFailed indica que a chamada pai falhou e nenhum filho foi executado.
var ErrParentFailed = errors.New("chamada pai falhou")

// Motivos de descarte de um par (item, filho).
const (
	SkipUnresolved = "unresolved_placeholder"
)

// Sleeper espera d ou até o contexto ser cancelado.
type Sleeper func(ctx context.Context, d time.Duration) error

// ContextSleep é o Sleeper padrão.
func ContextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// NestedSummary resume um grupo pai/filhos.
type NestedSummary struct {
	Items    int
	Executed int
	Failed   int
	Skipped  int
}

// Orchestrator executa chamadas aninhadas: o pai é chamado uma vez e cada
// item extraído da sua resposta gera uma chamada para cada filho, em ordem.
type Orchestrator struct {
	exec     *Executor
	sleep    Sleeper
	recorder *metrics.Recorder
	logger   zerolog.Logger
}

type OrchestratorOption func(*Orchestrator)

// WithSleeper troca a espera entre chamadas filhas.
func WithSleeper(s Sleeper) OrchestratorOption {
	return func(o *Orchestrator) { o.sleep = s }
}

func WithNestedRecorder(r *metrics.Recorder) OrchestratorOption {
	return func(o *Orchestrator) { o.recorder = r }
}

func WithNestedLogger(l zerolog.Logger) OrchestratorOption {
	return func(o *Orchestrator) { o.logger = l }
}

func NewOrchestrator(exec *Executor, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		exec:   exec,
		sleep:  ContextSleep,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ExecuteNested roda o pai e, para cada (item, filho), a chamada filha resolvida.
// Erros devolvidos abortam apenas este grupo; pares com placeholders sem valor
// são descartados e contados em Skipped.
func (o *Orchestrator) ExecuteNested(ctx context.Context, group config.NestedCallSpec) (NestedSummary, error) {
	var summary NestedSummary
	log := loggerFrom(ctx, o.logger).With().
		Str("component", "nested").
		Str("parent_url", group.Parent.URL).
		Logger()

	// 1. Chamada pai
	parent, err := o.exec.Execute(ctx, group.Parent)
	if err != nil {
		log.Error().Err(err).Msg("Chamada pai falhou, filhos não serão executados")
		return summary, fmt.Errorf("%w: %w", ErrParentFailed, err)
	}
	if parent.IsError {
		log.Error().Int("status", parent.StatusCode).Msg("Chamada pai retornou erro, filhos não serão executados")
		return summary, fmt.Errorf("%w: status %d", ErrParentFailed, parent.StatusCode)
	}

	// 2. Parse do corpo bruto do pai e resolução do items_path
	doc, err := path.Decode(parent.RawBody)
	if err != nil {
		log.Error().Err(err).Msg("Resposta do pai não é JSON")
		return summary, fmt.Errorf("resposta do pai inválida: %w", err)
	}
	log.Debug().Bytes("body", parent.RawBody).Msg("Resposta do pai")

	itemsPath := group.Parent.ItemsPath
	target, err := path.NovoExtratorDe(doc).Extrair(itemsPath)
	if err != nil {
		log.Error().Err(err).Str("items_path", itemsPath).Msg("Falha ao resolver items_path")
		return summary, fmt.Errorf("items_path '%s': %w", itemsPath, err)
	}

	// 3. Classificação do alvo
	items := classify(target, itemsPath)
	summary.Items = len(items)
	parentFields, _ := doc.(map[string]interface{})
	log.Info().Int("items", len(items)).Int("children", len(group.Children)).Msg("Processando itens do pai")

	// 4. Um par (item, filho) por vez, na ordem da resposta e da configuração
	for _, raw := range items {
		item, ok := raw.(map[string]interface{})
		if !ok {
			log.Warn().Interface("item", raw).Msg("Item não é um objeto, usando a chave 'item'")
			item = map[string]interface{}{"item": raw}
		}

		for _, child := range group.Children {
			if err := ctx.Err(); err != nil {
				return summary, err
			}

			work := child.Clone()
			url, err := Substitute(work.URL, item, parentFields)
			if err != nil {
				summary.Skipped++
				o.recorder.NestedSkipped(SkipUnresolved)
				log.Error().Err(err).Str("url", url).Msg("Placeholders não resolvidos, chamada filha ignorada")
				continue
			}
			log.Info().Str("url", url).Str("original", child.URL).Msg("Chamando API filha")
			work.URL = url

			res, err := o.exec.Execute(ctx, work)
			summary.Executed++
			if err != nil || res.IsError {
				summary.Failed++
			}

			if d := work.IntervalDuration(); d > 0 {
				if err := o.sleep(ctx, d); err != nil {
					return summary, err
				}
			}
		}
	}

	log.Info().
		Int("executed", summary.Executed).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Msg("Chamadas aninhadas finalizadas")
	return summary, nil
}

// classify transforma o alvo do items_path em itens:
// lista itera cada elemento, objeto vira um item e escalar vira {<último segmento>: valor}.
func classify(target interface{}, itemsPath string) []interface{} {
	switch v := target.(type) {
	case []interface{}:
		return v
	case map[string]interface{}:
		return []interface{}{v}
	default:
		key := path.UltimoSegmento(itemsPath)
		if key == "" {
			key = "value"
		}
		return []interface{}{map[string]interface{}{key: v}}
	}
}
