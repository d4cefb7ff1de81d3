package config

import (
	"errors"
	"strings"
	"time"
)

// Tipos de autenticação suportados pelo documento de configuração.
const (
	AuthBasic  = "basic"
	AuthBearer = "bearer"
	AuthOAuth  = "oauth"
)

const (
	DefaultCleanupDays = 7
	DefaultOutputDir   = "logs"
	DefaultInterval    = time.Second
	DefaultTimeout     = 30 * time.Second
)

// ErrUnsupportedAuthType indica um auth_type fora de basic, bearer ou oauth.
var ErrUnsupportedAuthType = errors.New("tipo de autenticação não suportado")

// PollerConfig é a raiz do documento de configuração (JSON ou YAML, mesmas chaves).
type PollerConfig struct {
	AuthType string     `json:"auth_type" yaml:"auth_type"`
	Username string     `json:"username,omitempty" yaml:"username,omitempty"`
	Password string     `json:"password,omitempty" yaml:"password,omitempty"`
	Token    string     `json:"token,omitempty" yaml:"token,omitempty"`
	OAuth    *OAuthConf `json:"oauth_config,omitempty" yaml:"oauth_config,omitempty"`

	Proxy  string `json:"proxy,omitempty" yaml:"proxy,omitempty" validate:"omitempty,url"`
	Verify *bool  `json:"verify,omitempty" yaml:"verify,omitempty"`

	SingleAPIs []APICallSpec    `json:"single_apis" yaml:"single_apis" validate:"dive"`
	NestedAPIs []NestedCallSpec `json:"nested_apis" yaml:"nested_apis" validate:"dive"`

	CleanupDays    *int   `json:"cleanup_days,omitempty" yaml:"cleanup_days,omitempty" validate:"omitempty,min=0"`
	ProcessorsPath string `json:"processors_path,omitempty" yaml:"processors_path,omitempty"`
	OutputDir      string `json:"output_dir,omitempty" yaml:"output_dir,omitempty"`
	LogDir         string `json:"log_dir,omitempty" yaml:"log_dir,omitempty"`

	Logging LoggingConf `json:"logging" yaml:"logging"`
	Metrics MetricsConf `json:"metrics" yaml:"metrics"`
}

// OAuthConf descreve o fluxo client credentials.
type OAuthConf struct {
	ClientID     string `json:"client_id" yaml:"client_id" validate:"required"`
	ClientSecret string `json:"client_secret" yaml:"client_secret" validate:"required"`
	TokenURL     string `json:"token_url" yaml:"token_url" validate:"required,url"`
	Scope        string `json:"scope,omitempty" yaml:"scope,omitempty"`
	Verify       *bool  `json:"verify,omitempty" yaml:"verify,omitempty"`
}

// VerifyTLS retorna a flag de verificação do endpoint de token (default true).
func (o OAuthConf) VerifyTLS() bool {
	return boolOr(o.Verify, true)
}

// NestedCallSpec liga uma chamada pai a uma lista ordenada de chamadas filhas.
type NestedCallSpec struct {
	Parent   APICallSpec   `json:"parent_api" yaml:"parent_api"`
	Children []APICallSpec `json:"child_apis" yaml:"child_apis" validate:"min=1,dive"`
}

// ProcessorRef referencia um processador registrado e seus argumentos nomeados.
type ProcessorRef struct {
	Name string                 `json:"name" yaml:"name" validate:"required"`
	Args map[string]interface{} `json:"args,omitempty" yaml:"args,omitempty"`
}

func (p *ProcessorRef) clone() *ProcessorRef {
	if p == nil {
		return nil
	}
	out := &ProcessorRef{Name: p.Name}
	if p.Args != nil {
		out.Args = DeepCopy(p.Args).(map[string]interface{})
	}
	return out
}

type LoggingConf struct {
	Enabled *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Level   string `json:"level,omitempty" yaml:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Format  string `json:"format,omitempty" yaml:"format,omitempty" validate:"omitempty,oneof=json console"`
}

// IsEnabled considera o log habilitado quando a chave não foi informada.
func (l LoggingConf) IsEnabled() bool {
	return boolOr(l.Enabled, true)
}

type MetricsConf struct {
	Datadog DatadogConf `json:"datadog" yaml:"datadog"`
}

type DatadogConf struct {
	Enabled   bool               `json:"enabled" yaml:"enabled" env:"DD_ENABLED"`
	Addr      string             `json:"addr,omitempty" yaml:"addr,omitempty" env:"DD_AGENT_HOST" validate:"required_if=Enabled true"`
	Namespace string             `json:"namespace,omitempty" yaml:"namespace,omitempty"`
	Tags      []string           `json:"tags,omitempty" yaml:"tags,omitempty"`
	Custom    []CustomMetricRule `json:"custom,omitempty" yaml:"custom,omitempty" validate:"dive"`
}

// CustomMetricRule é avaliada (CEL) a cada chamada executada.
type CustomMetricRule struct {
	Name  string            `json:"name" yaml:"name" validate:"required"`
	Type  string            `json:"type" yaml:"type" validate:"oneof=count gauge histogram"`
	Value string            `json:"value" yaml:"value" validate:"required"`
	When  string            `json:"when,omitempty" yaml:"when,omitempty"`
	Tags  map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// VerifyTLS retorna a flag global de verificação TLS (default true).
func (c *PollerConfig) VerifyTLS() bool {
	return boolOr(c.Verify, true)
}

// CleanupAfter converte cleanup_days em duração.
func (c *PollerConfig) CleanupAfter() time.Duration {
	days := DefaultCleanupDays
	if c.CleanupDays != nil {
		days = *c.CleanupDays
	}
	return time.Duration(days) * 24 * time.Hour
}

// ApplyDefaults normaliza campos opcionais antes da validação.
func (c *PollerConfig) ApplyDefaults() {
	c.AuthType = strings.ToLower(strings.TrimSpace(c.AuthType))
	if c.AuthType == "" {
		c.AuthType = AuthBasic
	}
	if c.CleanupDays == nil {
		days := DefaultCleanupDays
		c.CleanupDays = &days
	}
	if c.OutputDir == "" {
		c.OutputDir = DefaultOutputDir
	}
	if c.LogDir == "" {
		c.LogDir = c.OutputDir
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// Bool devolve um ponteiro para b.
func Bool(b bool) *bool { return &b }
