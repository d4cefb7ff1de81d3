package transport

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RunFunc executa uma rodada completa do poller.
type RunFunc func(ctx context.Context) error

// LambdaHandler adapta eventos agendados (EventBridge/CloudWatch) para rodadas do poller.
type LambdaHandler struct {
	run    RunFunc
	logger zerolog.Logger
}

// NewLambdaHandler cria uma nova instância do adaptador
func NewLambdaHandler(run RunFunc, logger zerolog.Logger) *LambdaHandler {
	return &LambdaHandler{run: run, logger: logger}
}

// Handle processa um disparo agendado. Erro devolvido marca a invocação como falha.
func (h *LambdaHandler) Handle(ctx context.Context, evt events.CloudWatchEvent) error {
	start := time.Now()

	// 1. Correlation ID: id do evento ou um novo UUID
	corrID := evt.ID
	if corrID == "" {
		corrID = uuid.NewString()
	}

	logger := h.logger.With().Str("correlation_id", corrID).Logger()
	ctx = logger.WithContext(ctx)

	logger.Info().
		Str("source", evt.Source).
		Str("detail_type", evt.DetailType).
		Msg("🔄 Disparo agendado recebido")

	// 2. Executa a rodada
	err := h.run(ctx)

	// 3. Log final
	ev := logger.Info()
	if err != nil {
		ev = logger.Error().Err(err)
	}
	ev.Int64("latency_ms", time.Since(start).Milliseconds()).Msg("rodada lambda finalizada")

	return err
}
