package injector

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/raywall/api-poller/pkg/cloud"
)

// Regex para capturar padrões ${tipo.chave}
// Ex: ${env.API_KEY}, ${ssm./poller/token}, ${secret.oauth#client_secret}
var pattern = regexp.MustCompile(`\$\{(env|ssm|secret)\.([^}]+)\}`)

// Resolver busca o valor de uma chave em uma fonte (env, ssm, secret).
type Resolver func(ctx context.Context, key string) (string, error)

type Injector struct {
	resolvers map[string]Resolver
}

// New cria um Injector com as fontes padrão (ambiente, SSM e Secrets Manager).
func New() *Injector {
	region := os.Getenv("AWS_REGION")
	return &Injector{
		resolvers: map[string]Resolver{
			"env": func(_ context.Context, key string) (string, error) {
				return os.Getenv(key), nil // Variável ausente vira string vazia
			},
			"ssm": func(ctx context.Context, key string) (string, error) {
				return cloud.Parameter(ctx, region, key)
			},
			"secret": func(ctx context.Context, key string) (string, error) {
				return cloud.Secret(ctx, region, key)
			},
		},
	}
}

// WithResolver substitui a fonte informada (útil para testes).
func (i *Injector) WithResolver(source string, r Resolver) *Injector {
	i.resolvers[source] = r
	return i
}

// Inject percorre a struct e resolve tags env:"..." e interpolações ${...}
// em strings, mapas, slices e campos dinâmicos (interface{}).
func (i *Injector) Inject(ctx context.Context, target interface{}) error {
	v := reflect.ValueOf(target)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return fmt.Errorf("target deve ser um ponteiro para struct não nulo")
	}
	return i.injectRecursive(ctx, v.Elem())
}

func (i *Injector) injectRecursive(ctx context.Context, v reflect.Value) error {
	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for k := 0; k < t.NumField(); k++ {
			field := t.Field(k)
			value := v.Field(k)
			if !value.CanSet() {
				continue
			}

			// 1. Processa Tags (env:"...")
			if tag := field.Tag.Get("env"); tag != "" {
				if val, exists := os.LookupEnv(tag); exists {
					if err := setFromEnv(value, val); err != nil {
						return fmt.Errorf("campo %s (%s): %w", field.Name, tag, err)
					}
				}
			}

			// 2. Strings com Interpolação "${...}"
			if value.Kind() == reflect.String {
				newValue, err := i.interpolateString(ctx, value.String())
				if err != nil {
					return fmt.Errorf("campo %s: %w", field.Name, err)
				}
				value.SetString(newValue)
				continue
			}

			// 3. Campos dinâmicos (body, args)
			if value.Kind() == reflect.Interface {
				if value.IsNil() {
					continue
				}
				newValue, err := i.interpolateValue(ctx, value.Interface())
				if err != nil {
					return fmt.Errorf("campo %s: %w", field.Name, err)
				}
				value.Set(reflect.ValueOf(newValue))
				continue
			}

			// 4. Recursão
			if err := i.injectRecursive(ctx, value); err != nil {
				return err
			}
		}

	case reflect.Map:
		if v.IsNil() || v.Type().Key().Kind() != reflect.String {
			return nil
		}
		return i.injectMap(ctx, v)

	case reflect.Ptr:
		if !v.IsNil() {
			return i.injectRecursive(ctx, v.Elem())
		}

	case reflect.String:
		if v.CanSet() {
			newValue, err := i.interpolateString(ctx, v.String())
			if err != nil {
				return err
			}
			v.SetString(newValue)
		}

	case reflect.Slice:
		for j := 0; j < v.Len(); j++ {
			if err := i.injectRecursive(ctx, v.Index(j)); err != nil {
				return err
			}
		}
	}
	return nil
}

// setFromEnv aplica o valor de uma tag env:"..." em campos string ou bool.
func setFromEnv(value reflect.Value, raw string) error {
	switch value.Kind() {
	case reflect.String:
		value.SetString(raw)
	case reflect.Bool:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return err
		}
		value.SetBool(b)
	}
	return nil
}

// injectMap lida com mapas de string e mapas dinâmicos
func (i *Injector) injectMap(ctx context.Context, v reflect.Value) error {
	elemType := v.Type().Elem()
	if elemType.Kind() != reflect.String && elemType.Kind() != reflect.Interface {
		return nil
	}

	iter := v.MapRange()
	updates := make(map[string]interface{})
	for iter.Next() {
		newVal, err := i.interpolateValue(ctx, iter.Value().Interface())
		if err != nil {
			return fmt.Errorf("chave %s: %w", iter.Key().String(), err)
		}
		updates[iter.Key().String()] = newVal
	}

	for k, val := range updates {
		rv := reflect.Zero(elemType)
		if val != nil {
			rv = reflect.ValueOf(val).Convert(elemType)
		}
		v.SetMapIndex(reflect.ValueOf(k).Convert(v.Type().Key()), rv)
	}
	return nil
}

// interpolateValue resolve recursivamente valores no formato JSON genérico.
func (i *Injector) interpolateValue(ctx context.Context, val interface{}) (interface{}, error) {
	switch t := val.(type) {
	case string:
		return i.interpolateString(ctx, t)
	case map[string]interface{}:
		for k, item := range t {
			newItem, err := i.interpolateValue(ctx, item)
			if err != nil {
				return nil, err
			}
			t[k] = newItem
		}
		return t, nil
	case []interface{}:
		for idx, item := range t {
			newItem, err := i.interpolateValue(ctx, item)
			if err != nil {
				return nil, err
			}
			t[idx] = newItem
		}
		return t, nil
	default:
		return val, nil
	}
}

// interpolateString realiza a substituição baseada em Regex
func (i *Injector) interpolateString(ctx context.Context, input string) (string, error) {
	if !strings.Contains(input, "${") {
		return input, nil
	}

	var err error
	result := pattern.ReplaceAllStringFunc(input, func(match string) string {
		if err != nil {
			return match
		}
		groups := pattern.FindStringSubmatch(match)
		resolver, ok := i.resolvers[groups[1]]
		if !ok {
			return match
		}

		val, resolveErr := resolver(ctx, groups[2])
		if resolveErr != nil {
			err = fmt.Errorf("falha ao resolver %s: %w", match, resolveErr)
			return match
		}
		return val
	})

	return result, err
}
