package auth

import (
	"context"
	"fmt"

	"github.com/raywall/api-poller/pkg/config"
	"github.com/rs/zerolog"
)

// Provider produz as credenciais de cada chamada: headers default
// (Content-Type e Authorization) ou o par usuário/senha do basic auth.
type Provider interface {
	Headers(ctx context.Context) map[string]string
	BasicAuth() (username, password string, ok bool)
}

func defaultHeaders() map[string]string {
	return map[string]string{"Content-Type": "application/json"}
}

// BasicProvider delega a autenticação ao transporte.
type BasicProvider struct {
	Username string
	Password string
}

func (p *BasicProvider) Headers(ctx context.Context) map[string]string {
	return defaultHeaders()
}

func (p *BasicProvider) BasicAuth() (string, string, bool) {
	if p.Username == "" && p.Password == "" {
		return "", "", false
	}
	return p.Username, p.Password, true
}

// BearerProvider injeta um token estático.
type BearerProvider struct {
	Token string
}

func (p *BearerProvider) Headers(ctx context.Context) map[string]string {
	h := defaultHeaders()
	h["Authorization"] = "Bearer " + p.Token
	return h
}

func (p *BearerProvider) BasicAuth() (string, string, bool) { return "", "", false }

// OAuthProvider injeta o token mantido pelo Manager.
type OAuthProvider struct {
	manager *Manager
}

// NewOAuthProvider envolve um Manager já configurado.
func NewOAuthProvider(m *Manager) *OAuthProvider {
	return &OAuthProvider{manager: m}
}

func (p *OAuthProvider) Headers(ctx context.Context) map[string]string {
	h := defaultHeaders()
	if token := p.manager.Token(ctx); token != "" {
		h["Authorization"] = "Bearer " + token
	}
	return h
}

func (p *OAuthProvider) BasicAuth() (string, string, bool) { return "", "", false }

// NewProvider escolhe a implementação a partir de auth_type.
func NewProvider(cfg *config.PollerConfig, logger zerolog.Logger) (Provider, error) {
	switch cfg.AuthType {
	case config.AuthBasic, "":
		return &BasicProvider{Username: cfg.Username, Password: cfg.Password}, nil
	case config.AuthBearer:
		return &BearerProvider{Token: cfg.Token}, nil
	case config.AuthOAuth:
		if cfg.OAuth == nil {
			return nil, fmt.Errorf("oauth_config ausente para auth_type 'oauth'")
		}
		l := logger.With().Str("component", "oauth").Logger()
		m := NewManager(NewOAuth2Fetcher(*cfg.OAuth), WithLogger(l))
		return NewOAuthProvider(m), nil
	default:
		return nil, fmt.Errorf("%w: '%s'", config.ErrUnsupportedAuthType, cfg.AuthType)
	}
}
