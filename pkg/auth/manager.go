package auth

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// RefreshMargin antecipa a renovação: um token que expira em menos de 4h é renovado.
	RefreshMargin = 4 * time.Hour
	// DefaultTokenTTL é usado quando o provedor não informa expires_in.
	DefaultTokenTTL = time.Hour
)

// TokenFetcher define a função que sabe como buscar um novo token.
type TokenFetcher func(ctx context.Context) (string, time.Duration, error)

// Manager mantém o token em cache e renova sob demanda.
// A renovação é serializada: chamadas concorrentes aguardam a mesma busca.
type Manager struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time

	fetcher TokenFetcher
	margin  time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

// ManagerOption customiza o Manager.
type ManagerOption func(*Manager)

// WithClock injeta o relógio (testes).
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// WithLogger define o logger usado nas falhas de renovação.
func WithLogger(l zerolog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// NewManager cria um gerenciador genérico.
func NewManager(fetcher TokenFetcher, opts ...ManagerOption) *Manager {
	m := &Manager{
		fetcher: fetcher,
		margin:  RefreshMargin,
		now:     time.Now,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Token retorna um token válido, renovando quando ausente ou perto de expirar.
// Falha na renovação devolve string vazia e a chamada segue sem autenticação;
// a próxima chamada tenta de novo.
func (m *Manager) Token(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && m.now().Add(m.margin).Before(m.expiresAt) {
		return m.token
	}

	token, ttl, err := m.fetcher(ctx)
	if err != nil || token == "" {
		m.token = ""
		m.expiresAt = time.Time{}
		m.logger.Error().Err(err).Msg("Falha ao renovar token OAuth, seguindo sem autenticação")
		return ""
	}

	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	m.token = token
	m.expiresAt = m.now().Add(ttl)
	m.logger.Info().Time("expires_at", m.expiresAt).Msg("Token OAuth renovado")

	return m.token
}

// ExpiresAt expõe a expiração do token atual.
func (m *Manager) ExpiresAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expiresAt
}
