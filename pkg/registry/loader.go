package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/raywall/api-poller/pkg/config"
	"github.com/raywall/api-poller/pkg/transport"
	"gopkg.in/yaml.v3"
)

// Definition declara um processador derivado de outro já registrado,
// com argumentos pré-definidos. Argumentos da chamada sobrescrevem os da definição.
//
//	processors:
//	  - kind: postprocessor
//	    name: only_critical
//	    base: cel_filter
//	    args:
//	      expr: "item.severity == 'critical'"
type Definition struct {
	Kind Kind   `yaml:"kind"`
	Name string `yaml:"name"`
	Base string `yaml:"base"`
	Args Args   `yaml:"args"`
}

type definitionFile struct {
	Processors []Definition `yaml:"processors"`
}

// LoadDir registra as definições de todos os arquivos .yaml/.yml/.json do diretório,
// em ordem alfabética. Pode ser chamado depois dos registros built-in.
func (r *Registry) LoadDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("erro ao ler diretório de processadores '%s': %w", dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml", ".json":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)

	loaded := 0
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return loaded, fmt.Errorf("erro ao ler '%s': %w", file, err)
		}

		var df definitionFile
		if err := yaml.Unmarshal(data, &df); err != nil {
			return loaded, fmt.Errorf("definição malformada em '%s': %w", file, err)
		}

		for _, def := range df.Processors {
			if err := r.Define(def); err != nil {
				return loaded, fmt.Errorf("%s: %w", file, err)
			}
			loaded++
		}
	}

	r.logger.Info().Str("dir", dir).Int("loaded", loaded).Msg("Processadores externos carregados")
	return loaded, nil
}

// Define registra um processador derivado. A base precisa existir no mesmo namespace.
func (r *Registry) Define(def Definition) error {
	if def.Name == "" || def.Base == "" {
		return fmt.Errorf("definição de processador exige 'name' e 'base'")
	}

	preset := def.Args
	switch def.Kind {
	case KindPreprocessor:
		base, ok := r.Preprocessor(def.Base)
		if !ok {
			return unknown(def.Kind, def.Base)
		}
		r.RegisterPreprocessor(def.Name, func(ctx context.Context, spec config.APICallSpec, args Args) (config.APICallSpec, error) {
			return base(ctx, spec, preset.Merge(args))
		})

	case KindPostprocessor:
		base, ok := r.Postprocessor(def.Base)
		if !ok {
			return unknown(def.Kind, def.Base)
		}
		r.RegisterPostprocessor(def.Name, func(ctx context.Context, resp *transport.Response, args Args) (interface{}, error) {
			return base(ctx, resp, preset.Merge(args))
		})

	case KindOutput:
		base, ok := r.Output(def.Base)
		if !ok {
			return unknown(def.Kind, def.Base)
		}
		r.RegisterOutput(def.Name, func(ctx context.Context, data interface{}, endpoint string, args Args) (bool, error) {
			return base(ctx, data, endpoint, preset.Merge(args))
		})

	default:
		return fmt.Errorf("tipo de processador inválido '%s' em '%s'", def.Kind, def.Name)
	}
	return nil
}
