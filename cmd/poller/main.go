package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/joho/godotenv"
	"github.com/raywall/api-poller/envloader"
	"github.com/raywall/api-poller/pkg/auth"
	"github.com/raywall/api-poller/pkg/config"
	"github.com/raywall/api-poller/pkg/engine"
	"github.com/raywall/api-poller/pkg/logger"
	"github.com/raywall/api-poller/pkg/observability"
	"github.com/raywall/api-poller/pkg/processors"
	"github.com/raywall/api-poller/pkg/registry"
	"github.com/raywall/api-poller/pkg/rules"
	"github.com/raywall/api-poller/pkg/storage"
	"github.com/raywall/api-poller/pkg/transport"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Variáveis injetáveis para mocking
	lambdaStarter = func(handler interface{}) { lambda.Start(handler) }
)

// settings são lidas do ambiente (e do .env, quando existir).
type settings struct {
	ConfigFile    string        `env:"POLLER_CONFIG_FILE" envDefault:"config.json"`
	ProcessorsDir string        `env:"POLLER_PROCESSORS_DIR"`
	Runtime       string        `env:"POLLER_RUNTIME" envDefault:"local"`
	LogDir        string        `env:"POLLER_LOG_DIR"`
	Region        string        `env:"AWS_REGION"`
	HTTPTimeout   time.Duration `env:"POLLER_HTTP_TIMEOUT" envDefault:"30s"`
	DatadogTags   []string      `env:"POLLER_DD_TAGS"`
}

// lambdaSettings: na Lambda não há flags, a origem da configuração precisa ser explícita.
type lambdaSettings struct {
	ConfigFile string `env:"POLLER_CONFIG_FILE" envRequired:"true"`
}

func main() {
	_ = godotenv.Load() // .env é opcional

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	env, envErr := loadSettings()

	var configPath, processorsDir, convertPath string

	root := &cobra.Command{
		Use:   "poller",
		Short: "Coleta periódica de APIs HTTP com chamadas aninhadas e processadores",
		Long: `Executa as chamadas single_apis e nested_apis descritas no arquivo de configuração
(JSON ou YAML), aplicando os processadores configurados e gravando um artefato por chamada.

Exemplo:
  poller --config config.yaml --processors ./processors`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if envErr != nil {
				return envErr
			}
			if convertPath != "" {
				out, err := engine.ConvertToYAML(convertPath, "")
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Configuração convertida: %s\n", out)
				return nil
			}
			if processorsDir != "" {
				env.ProcessorsDir = processorsDir
			}
			if env.Runtime == "lambda" && !cmd.Flags().Changed("config") {
				var lambdaEnv lambdaSettings
				if err := envloader.Load(&lambdaEnv); err != nil {
					return err
				}
				configPath = lambdaEnv.ConfigFile
			}
			return run(cmd.Context(), configPath, env)
		},
	}

	root.Flags().StringVar(&configPath, "config", env.ConfigFile, "Caminho do arquivo de configuração (JSON/YAML, s3:// ou dynamodb://)")
	root.Flags().StringVar(&processorsDir, "processors", "", "Diretório com definições de processadores")
	root.Flags().StringVar(&convertPath, "convert-to-yaml", "", "Converte um arquivo de configuração JSON para YAML e encerra")

	root.AddCommand(newValidateCmd(env.ConfigFile))
	return root
}

func loadSettings() (settings, error) {
	var env settings
	if err := envloader.Load(&env); err != nil {
		return settings{}, fmt.Errorf("variáveis de ambiente inválidas: %w", err)
	}
	return env, nil
}

func newValidateCmd(defaultConfig string) *cobra.Command {
	var configPath, processorsDir string

	cmd := &cobra.Command{
		Use:          "validate",
		Short:        "Valida a configuração sem executar chamadas",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd.Context(), cmd.OutOrStdout(), configPath, processorsDir)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", defaultConfig, "Caminho do arquivo de configuração")
	cmd.Flags().StringVar(&processorsDir, "processors", "", "Diretório com definições de processadores")
	return cmd
}

func runValidate(ctx context.Context, out io.Writer, path, processorsDir string) error {
	fmt.Fprintf(out, "🔍 Analisando configuração: %s ...\n", path)

	// 1. Load (Validação Estrutural)
	cfg, err := engine.Load(ctx, path)
	if err != nil {
		return fmt.Errorf("erro de carregamento/estrutura: %w", err)
	}

	// 2. Registry com os built-ins e as definições externas
	reg := registry.New(zerolog.Nop())
	if err := processors.RegisterBuiltins(reg, processors.Deps{OutputDir: cfg.OutputDir, Logger: zerolog.Nop()}); err != nil {
		return err
	}
	if dir := firstNonEmpty(processorsDir, cfg.ProcessorsPath); dir != "" {
		if _, err := reg.LoadDir(dir); err != nil {
			return err
		}
	}

	// 3. Analyze (Validação Lógica/Semântica)
	report, err := engine.Analyze(cfg, reg)
	if err != nil {
		return fmt.Errorf("erro interno do analisador: %w", err)
	}

	if os.Getenv("OUTPUT_FORMAT") == "json" {
		jsonOutput, _ := json.Marshal(report)
		fmt.Fprintln(out, string(jsonOutput))
	} else {
		for _, w := range report.Warnings {
			fmt.Fprintf(out, "⚠️  %s\n", w)
		}
		for _, e := range report.Errors {
			fmt.Fprintf(out, "❌ %s\n", e)
		}
	}

	if !report.Valid {
		return fmt.Errorf("a configuração contém %d erro(s)", len(report.Errors))
	}
	if os.Getenv("OUTPUT_FORMAT") != "json" {
		fmt.Fprintln(out, "✅ Configuração válida")
	}
	return nil
}

// run contém a lógica principal testável
func run(ctx context.Context, cfgPath string, env settings) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Carrega Configuração (Loader)
	cfg, err := engine.Load(ctx, cfgPath)
	if err != nil {
		return err
	}
	if env.LogDir != "" {
		cfg.LogDir = env.LogDir
	}

	// 2. Logger
	log, logCloser, err := logger.Configure(cfg.Logging, cfg.LogDir)
	if err != nil {
		return fmt.Errorf("falha ao configurar log: %w", err)
	}
	defer logCloser.Close()

	// 3. Monta o poller (Boot Time)
	poller, closeAll, err := build(cfg, env, log)
	if err != nil {
		log.Error().Err(err).Msg("Falha na inicialização")
		return err
	}
	defer closeAll()

	// 4. Seleciona Runtime Strategy
	switch env.Runtime {
	case "", "local":
		_, err := poller.Run(ctx)
		return err
	case "lambda":
		handler := transport.NewLambdaHandler(func(ctx context.Context) error {
			_, err := poller.Run(ctx)
			return err
		}, log)
		lambdaStarter(handler.Handle)
		return nil
	default:
		return fmt.Errorf("runtime desconhecido: %s", env.Runtime)
	}
}

// build conecta os componentes do poller a partir da configuração validada.
func build(cfg *config.PollerConfig, env settings, log zerolog.Logger) (*engine.Poller, func(), error) {
	cfg.Metrics.Datadog.Tags = append(cfg.Metrics.Datadog.Tags, env.DatadogTags...)

	rm, err := rules.NewRuleManager()
	if err != nil {
		return nil, nil, fmt.Errorf("falha fatal ao iniciar RuleManager: %w", err)
	}

	recorder, provider, err := observability.NewRecorder(cfg.Metrics, rm, log)
	if err != nil {
		return nil, nil, fmt.Errorf("falha métricas: %w", err)
	}
	closeAll := func() {
		if c, ok := provider.(io.Closer); ok {
			_ = c.Close()
		}
	}

	client, err := transport.NewClient(cfg.Proxy)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	// Processadores: built-ins primeiro, definições externas depois
	reg := registry.New(log)
	deps := processors.Deps{
		OutputDir: cfg.OutputDir,
		Region:    env.Region,
		Rules:     rm,
		HTTP:      client,
		Logger:    log,
	}
	if err := processors.RegisterBuiltins(reg, deps); err != nil {
		closeAll()
		return nil, nil, err
	}
	if dir := firstNonEmpty(env.ProcessorsDir, cfg.ProcessorsPath); dir != "" {
		if _, err := reg.LoadDir(dir); err != nil {
			closeAll()
			return nil, nil, err
		}
	}

	provAuth, err := auth.NewProvider(cfg, log)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	store, err := storage.NewStore(cfg.OutputDir, log)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	cleaners := []engine.Cleaner{store}
	if cfg.LogDir != "" && cfg.LogDir != cfg.OutputDir {
		logStore, err := storage.NewStore(cfg.LogDir, log)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		cleaners = append(cleaners, logStore)
	}

	exec := engine.NewExecutor(reg, provAuth, client, store,
		engine.WithRecorder(recorder),
		engine.WithLogger(log),
		engine.WithVerify(cfg.VerifyTLS()),
		engine.WithTimeout(env.HTTPTimeout),
	)
	orch := engine.NewOrchestrator(exec,
		engine.WithNestedRecorder(recorder),
		engine.WithNestedLogger(log),
	)

	poller := engine.New(cfg, exec,
		engine.WithOrchestrator(orch),
		engine.WithCleaners(cleaners...),
		engine.WithRunRecorder(recorder),
		engine.WithRunLogger(log),
	)
	return poller, closeAll, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
