// Package registry mantém os processadores do pipeline de cada chamada
// (pré-processamento, pós-processamento e saída) em namespaces independentes.
//
// Nenhuma invocação propaga falha ao chamador: processador desconhecido, erro
// ou panic degradam para o comportamento pass-through do tipo, informado em Outcome.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/raywall/api-poller/pkg/config"
	"github.com/raywall/api-poller/pkg/transport"
	"github.com/rs/zerolog"
)

// Kind identifica o namespace de um processador.
type Kind string

const (
	KindPreprocessor  Kind = "preprocessor"
	KindPostprocessor Kind = "postprocessor"
	KindOutput        Kind = "output"
)

var (
	ErrUnknownProcessor = errors.New("processador não registrado")
	ErrProcessorPanic   = errors.New("processador entrou em panic")
)

// Preprocessor transforma a especificação antes do envio.
type Preprocessor func(ctx context.Context, spec config.APICallSpec, args Args) (config.APICallSpec, error)

// Postprocessor transforma a resposta. Retorno nil significa "use a resposta original".
type Postprocessor func(ctx context.Context, resp *transport.Response, args Args) (interface{}, error)

// OutputSink persiste ou transmite o dado processado. true indica que a
// persistência padrão não é necessária.
type OutputSink func(ctx context.Context, data interface{}, endpoint string, args Args) (bool, error)

// Outcome é o resultado explícito de uma invocação.
// FellBack indica que Value é o pass-through; Err traz o motivo, quando houver.
type Outcome[T any] struct {
	Value    T
	FellBack bool
	Err      error
}

// Registry é construído explicitamente e repassado ao executor.
type Registry struct {
	mu     sync.RWMutex
	pre    map[string]Preprocessor
	post   map[string]Postprocessor
	out    map[string]OutputSink
	logger zerolog.Logger
}

// New cria um registry vazio.
func New(logger zerolog.Logger) *Registry {
	return &Registry{
		pre:    make(map[string]Preprocessor),
		post:   make(map[string]Postprocessor),
		out:    make(map[string]OutputSink),
		logger: logger.With().Str("component", "registry").Logger(),
	}
}

func (r *Registry) RegisterPreprocessor(name string, fn Preprocessor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.pre[name]; exists {
		r.warnOverwrite(KindPreprocessor, name)
	}
	r.pre[name] = fn
}

func (r *Registry) RegisterPostprocessor(name string, fn Postprocessor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.post[name]; exists {
		r.warnOverwrite(KindPostprocessor, name)
	}
	r.post[name] = fn
}

func (r *Registry) RegisterOutput(name string, fn OutputSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.out[name]; exists {
		r.warnOverwrite(KindOutput, name)
	}
	r.out[name] = fn
}

func (r *Registry) warnOverwrite(kind Kind, name string) {
	r.logger.Warn().Str("kind", string(kind)).Str("name", name).Msg("Processador já registrado, sobrescrevendo")
}

// Preprocessor resolve um pré-processador pelo nome.
func (r *Registry) Preprocessor(name string) (Preprocessor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.pre[name]
	return fn, ok
}

// Postprocessor resolve um pós-processador pelo nome.
func (r *Registry) Postprocessor(name string) (Postprocessor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.post[name]
	return fn, ok
}

// Output resolve um output sink pelo nome.
func (r *Registry) Output(name string) (OutputSink, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.out[name]
	return fn, ok
}

// Has indica se existe um processador com o nome no namespace.
func (r *Registry) Has(kind Kind, name string) bool {
	switch kind {
	case KindPreprocessor:
		_, ok := r.Preprocessor(name)
		return ok
	case KindPostprocessor:
		_, ok := r.Postprocessor(name)
		return ok
	case KindOutput:
		_, ok := r.Output(name)
		return ok
	}
	return false
}

// Names lista os nomes registrados de um namespace em ordem alfabética.
func (r *Registry) Names(kind Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	switch kind {
	case KindPreprocessor:
		for n := range r.pre {
			names = append(names, n)
		}
	case KindPostprocessor:
		for n := range r.post {
			names = append(names, n)
		}
	case KindOutput:
		for n := range r.out {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names
}

// RunPreprocessor aplica o pré-processador sobre uma cópia da spec.
// Em qualquer falha a spec recebida é devolvida sem alterações.
func (r *Registry) RunPreprocessor(ctx context.Context, name string, spec config.APICallSpec, args Args) Outcome[config.APICallSpec] {
	fn, ok := r.Preprocessor(name)
	if !ok {
		r.logUnknown(KindPreprocessor, name)
		return Outcome[config.APICallSpec]{Value: spec, FellBack: true, Err: unknown(KindPreprocessor, name)}
	}

	result, err := safeCall(func() (config.APICallSpec, error) {
		return fn(ctx, spec.Clone(), args)
	})
	if err != nil {
		r.logFailure(KindPreprocessor, name, err)
		return Outcome[config.APICallSpec]{Value: spec, FellBack: true, Err: err}
	}
	return Outcome[config.APICallSpec]{Value: result}
}

// RunPostprocessor aplica o pós-processador. Falha ou retorno nil devolvem a
// resposta original (JSON quando possível, texto caso contrário).
func (r *Registry) RunPostprocessor(ctx context.Context, name string, resp *transport.Response, args Args) Outcome[interface{}] {
	fallback := func(err error) Outcome[interface{}] {
		return Outcome[interface{}]{Value: resp.Parsed(), FellBack: true, Err: err}
	}

	fn, ok := r.Postprocessor(name)
	if !ok {
		r.logUnknown(KindPostprocessor, name)
		return fallback(unknown(KindPostprocessor, name))
	}

	result, err := safeCall(func() (interface{}, error) {
		return fn(ctx, resp, args)
	})
	if err != nil {
		r.logFailure(KindPostprocessor, name, err)
		return fallback(err)
	}
	if result == nil {
		r.logger.Warn().Str("name", name).Msg("Pós-processador retornou nil, usando resposta original")
		return fallback(nil)
	}
	return Outcome[interface{}]{Value: result}
}

// RunOutput executa o output sink. Falha devolve false para que a
// persistência padrão aconteça.
func (r *Registry) RunOutput(ctx context.Context, name string, data interface{}, endpoint string, args Args) Outcome[bool] {
	fn, ok := r.Output(name)
	if !ok {
		r.logUnknown(KindOutput, name)
		return Outcome[bool]{Value: false, FellBack: true, Err: unknown(KindOutput, name)}
	}

	handled, err := safeCall(func() (bool, error) {
		return fn(ctx, data, endpoint, args)
	})
	if err != nil {
		r.logFailure(KindOutput, name, err)
		return Outcome[bool]{Value: false, FellBack: true, Err: err}
	}
	return Outcome[bool]{Value: handled}
}

func (r *Registry) logUnknown(kind Kind, name string) {
	r.logger.Warn().Str("kind", string(kind)).Str("name", name).Msg("Processador desconhecido, usando pass-through")
}

func (r *Registry) logFailure(kind Kind, name string, err error) {
	r.logger.Error().Err(err).Str("kind", string(kind)).Str("name", name).Msg("Falha no processador, usando pass-through")
}

func unknown(kind Kind, name string) error {
	return fmt.Errorf("%w: %s '%s'", ErrUnknownProcessor, kind, name)
}

// safeCall converte panics em erro.
func safeCall[T any](fn func() (T, error)) (val T, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			var zero T
			val = zero
			err = fmt.Errorf("%w: %v", ErrProcessorPanic, rec)
		}
	}()
	return fn()
}
