package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true,
	"DELETE": true, "HEAD": true, "OPTIONS": true,
}

type ConfigValidator struct {
	validate *validator.Validate
}

// NewValidator cria uma nova instância do validador
func NewValidator() *ConfigValidator {
	return &ConfigValidator{
		validate: validator.New(),
	}
}

// Validate realiza validações estruturais (tags) e semânticas (lógica)
func (cv *ConfigValidator) Validate(cfg *PollerConfig) error {
	// 1. Validação Estrutural (Tags do struct: required, oneof, etc)
	if err := cv.validate.Struct(cfg); err != nil {
		if validationErrors, ok := err.(validator.ValidationErrors); ok {
			var errMsgs []string
			for _, e := range validationErrors {
				errMsgs = append(errMsgs, fmt.Sprintf("Campo '%s' falhou na regra '%s'", e.Namespace(), e.Tag()))
			}
			return fmt.Errorf("erros de validação estrutural:\n- %s", strings.Join(errMsgs, "\n- "))
		}
		return fmt.Errorf("erro de validação estrutural: %w", err)
	}

	// 2. Validação Semântica (Regras de negócio da configuração)
	if err := cv.validateSemantics(cfg); err != nil {
		return fmt.Errorf("erro de validação semântica: %w", err)
	}

	return nil
}

func (cv *ConfigValidator) validateSemantics(cfg *PollerConfig) error {
	// 1. Autenticação
	switch strings.ToLower(cfg.AuthType) {
	case AuthBasic, "":
	case AuthBearer:
		if cfg.Token == "" {
			return fmt.Errorf("auth_type 'bearer' exige o campo 'token'")
		}
	case AuthOAuth:
		if cfg.OAuth == nil {
			return fmt.Errorf("auth_type 'oauth' exige o bloco 'oauth_config'")
		}
	default:
		return fmt.Errorf("%w: '%s'", ErrUnsupportedAuthType, cfg.AuthType)
	}

	// 2. Métodos HTTP de todas as chamadas
	for i, api := range cfg.SingleAPIs {
		if err := checkMethod(fmt.Sprintf("single_apis[%d]", i), api); err != nil {
			return err
		}
	}
	for i, group := range cfg.NestedAPIs {
		if err := checkMethod(fmt.Sprintf("nested_apis[%d].parent_api", i), group.Parent); err != nil {
			return err
		}
		for j, child := range group.Children {
			if err := checkMethod(fmt.Sprintf("nested_apis[%d].child_apis[%d]", i, j), child); err != nil {
				return err
			}
		}
	}

	return nil
}

func checkMethod(where string, api APICallSpec) error {
	if !validMethods[api.HTTPMethod()] {
		return fmt.Errorf("%s: método HTTP inválido '%s'", where, api.Method)
	}
	return nil
}
