package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/raywall/api-poller/pkg/auth"
	"github.com/raywall/api-poller/pkg/config"
	"github.com/raywall/api-poller/pkg/metrics"
	"github.com/raywall/api-poller/pkg/registry"
	"github.com/raywall/api-poller/pkg/transport"
	"github.com/rs/zerolog"
)

// Resultados de chamada usados em logs e métricas.
const (
	OutcomeOK             = "ok"
	OutcomeHTTPError      = "http_error"
	OutcomeTransportError = "transport_error"
)

// CallResult é o resultado de uma chamada executada.
type CallResult struct {
	StatusCode int
	RawBody    []byte
	// Parsed é o dado após o pós-processamento (JSON, texto ou o formato do processador).
	Parsed        interface{}
	IsError       bool
	Artifact      string // caminho do artefato gravado ("" quando um sink tratou a saída)
	HandledBySink bool
	Response      *transport.Response
}

// Executor roda uma chamada pelo pipeline completo:
// pré-processamento, transporte, pós-processamento, output e persistência.
type Executor struct {
	registry *registry.Registry
	auth     auth.Provider
	client   Performer
	store    Persister
	recorder *metrics.Recorder
	logger   zerolog.Logger
	verify   bool
	timeout  time.Duration
}

type ExecutorOption func(*Executor)

// WithRecorder liga as métricas de chamada.
func WithRecorder(r *metrics.Recorder) ExecutorOption {
	return func(e *Executor) { e.recorder = r }
}

func WithLogger(l zerolog.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithVerify define o default global de verificação TLS.
func WithVerify(verify bool) ExecutorOption {
	return func(e *Executor) { e.verify = verify }
}

// WithTimeout define o timeout por requisição; valores <= 0 mantêm o default.
func WithTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// NewExecutor cria o executor de chamadas simples.
func NewExecutor(reg *registry.Registry, provider auth.Provider, client Performer, store Persister, opts ...ExecutorOption) *Executor {
	e := &Executor{
		registry: reg,
		auth:     provider,
		client:   client,
		store:    store,
		logger:   zerolog.Nop(),
		verify:   true,
		timeout:  config.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute roda uma chamada. Erros de transporte devolvem resultado nil; status >= 400
// devolve o resultado com IsError e grava um artefato de erro, sem passar pelos hooks.
// A spec recebida nunca é alterada.
func (e *Executor) Execute(ctx context.Context, spec config.APICallSpec) (*CallResult, error) {
	log := loggerFrom(ctx, e.logger).With().Str("component", "executor").Logger()
	work := spec.Clone()

	// 1. Pré-processamento
	if ref := work.Preprocess; ref != nil && ref.Name != "" {
		log.Debug().Str("kind", string(registry.KindPreprocessor)).Str("name", ref.Name).Msg("Aplicando processador")
		work = e.registry.RunPreprocessor(ctx, ref.Name, work, registry.Args(ref.Args)).Value
	}

	method := work.HTTPMethod()
	log = log.With().Str("method", method).Str("url", work.URL).Logger()

	// 2. Headers: default do provider + headers da chamada (a chamada vence)
	headers := make(map[string]string)
	if e.auth != nil {
		for k, v := range e.auth.Headers(ctx) {
			headers[k] = v
		}
	}
	for k, v := range work.Headers {
		headers[k] = v
	}

	req := transport.Request{
		Method:  method,
		URL:     work.URL,
		Params:  work.Params,
		Headers: headers,
		Body:    work.Body,
		Verify:  work.VerifyTLS(e.verify),
		Timeout: e.timeout,
	}
	if e.auth != nil {
		if user, pass, ok := e.auth.BasicAuth(); ok {
			req.BasicAuth = &transport.Credentials{Username: user, Password: pass}
		}
	}

	// 3. Transporte
	log.Info().Msg("Chamando API")
	resp, err := e.client.Perform(ctx, req)
	if err != nil {
		e.recorder.Call(metrics.CallSample{Endpoint: work.Endpoint(), Method: method, Outcome: OutcomeTransportError})
		log.Error().Err(err).Msg("Falha de transporte na chamada")
		return nil, fmt.Errorf("falha na chamada %s %s: %w", method, work.URL, err)
	}

	result := &CallResult{
		StatusCode: resp.StatusCode,
		RawBody:    resp.Body,
		IsError:    resp.IsError(),
		Response:   resp,
	}
	log = log.With().Int("status", resp.StatusCode).Logger()

	// 4. Resposta de erro: artefato de erro, sem pós-processamento nem output
	if result.IsError {
		e.recorder.Call(e.sample(work, method, resp, OutcomeHTTPError))
		log.Error().Msg("API respondeu com erro")
		result.Parsed = resp.Text()
		if file, err := e.store.SaveError(work.URL, resp.StatusCode, resp.Text()); err != nil {
			log.Error().Err(err).Msg("Falha ao gravar artefato de erro")
		} else {
			result.Artifact = file
			e.recorder.Artifact("error")
			log.Info().Str("file", file).Msg("Artefato de erro salvo")
		}
		return result, nil
	}
	e.recorder.Call(e.sample(work, method, resp, OutcomeOK))
	log.Info().Dur("duration", resp.Duration).Msg("Resposta recebida")

	// 5. JSON quando possível, texto caso contrário
	data := resp.Parsed()

	// 6. Pós-processamento
	if ref := work.Postprocess; ref != nil && ref.Name != "" {
		log.Debug().Str("kind", string(registry.KindPostprocessor)).Str("name", ref.Name).Msg("Aplicando processador")
		data = e.registry.RunPostprocessor(ctx, ref.Name, resp, registry.Args(ref.Args)).Value
	}
	result.Parsed = data

	// 7. Output sink
	if ref := work.Output; ref != nil && ref.Name != "" {
		log.Debug().Str("kind", string(registry.KindOutput)).Str("name", ref.Name).Msg("Aplicando processador")
		if e.registry.RunOutput(ctx, ref.Name, data, work.URL, registry.Args(ref.Args)).Value {
			result.HandledBySink = true
			e.recorder.Artifact("sink")
			log.Info().Str("output", ref.Name).Msg("Saída tratada pelo output sink")
			return result, nil
		}
	}

	// 8. Persistência padrão
	file, err := e.store.Save(work.URL, data)
	if err != nil {
		log.Error().Err(err).Msg("Falha ao gravar artefato")
		return result, nil
	}
	result.Artifact = file
	e.recorder.Artifact("data")
	log.Info().Str("file", file).Msg("Artefato salvo")

	return result, nil
}

func (e *Executor) sample(spec config.APICallSpec, method string, resp *transport.Response, outcome string) metrics.CallSample {
	return metrics.CallSample{
		Endpoint: spec.Endpoint(),
		Method:   method,
		Status:   resp.StatusCode,
		Latency:  resp.Duration,
		Outcome:  outcome,
	}
}

// loggerFrom prefere o logger do contexto (run_id, correlation_id).
func loggerFrom(ctx context.Context, fallback zerolog.Logger) zerolog.Logger {
	if l := zerolog.Ctx(ctx); l != nil && l.GetLevel() != zerolog.Disabled {
		return *l
	}
	return fallback
}
