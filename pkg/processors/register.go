// Package processors contém os processadores built-in do poller e o registro
// explícito deles no Registry.
package processors

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/raywall/api-poller/pkg/config"
	"github.com/raywall/api-poller/pkg/registry"
	"github.com/raywall/api-poller/pkg/rules"
	"github.com/raywall/api-poller/pkg/transport"
	"github.com/rs/zerolog"
)

// Deps são os colaboradores dos processadores built-in.
// Clientes AWS nulos são criados sob demanda a partir de cloud.GetAWSConfig.
type Deps struct {
	OutputDir string
	Region    string
	Rules     *rules.RuleManager
	HTTP      *transport.Client
	Now       func() time.Time
	Logger    zerolog.Logger

	S3     S3Putter
	SQS    SQSSender
	Dynamo DynamoPutter
	Redis  func(addr, password string, db int) RedisPusher
	SQL    func(driver, dsn string) (Execer, error)
}

type builtins struct {
	Deps
	logger zerolog.Logger

	mu sync.Mutex // clientes AWS criados sob demanda
}

// RegisterBuiltins registra todos os processadores padrão no registry.
func RegisterBuiltins(reg *registry.Registry, deps Deps) error {
	if deps.Rules == nil {
		rm, err := rules.NewRuleManager()
		if err != nil {
			return err
		}
		deps.Rules = rm
	}
	if deps.HTTP == nil {
		client, err := transport.NewClient("")
		if err != nil {
			return err
		}
		deps.HTTP = client
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.OutputDir == "" {
		deps.OutputDir = config.DefaultOutputDir
	}
	if deps.Redis == nil {
		deps.Redis = defaultRedis
	}
	if deps.SQL == nil {
		deps.SQL = defaultSQL
	}

	b := &builtins{Deps: deps, logger: deps.Logger.With().Str("component", "processors").Logger()}

	// Pré-processadores
	reg.RegisterPreprocessor("update_time_range", b.updateTimeRange)
	reg.RegisterPreprocessor("add_headers", b.addHeaders)
	reg.RegisterPreprocessor("template_url", b.templateURL)
	reg.RegisterPreprocessor("pagination_params", b.paginationParams)
	reg.RegisterPreprocessor("cel_params", b.celParams)

	// Pós-processadores
	reg.RegisterPostprocessor("filter_response", b.filterResponse)
	reg.RegisterPostprocessor("flatten_json", b.flattenJSON)
	reg.RegisterPostprocessor("split_json_array", b.splitJSONArray)
	reg.RegisterPostprocessor("transform_keys", b.transformKeys)
	reg.RegisterPostprocessor("extract_nested", b.extractNested)
	reg.RegisterPostprocessor("cel_filter", b.celFilter)
	reg.RegisterPostprocessor("cel_transform", b.celTransform)

	// Outputs
	reg.RegisterOutput("csv_file", b.csvFile)
	reg.RegisterOutput("jsonl_file", b.jsonlFile)
	reg.RegisterOutput("splunk_hec", b.splunkHEC)
	reg.RegisterOutput("s3_object", b.s3Object)
	reg.RegisterOutput("sqs_message", b.sqsMessage)
	reg.RegisterOutput("dynamodb_item", b.dynamoItem)
	reg.RegisterOutput("redis_list", b.redisList)
	reg.RegisterOutput("sql_table", b.sqlTable)

	return nil
}

// artifactName segue o padrão <segmento>_<YYYYMMDD_HHMMSS><ext>.
func artifactName(endpoint, ext string, now time.Time) string {
	return fmt.Sprintf("%s_%s%s", config.LastURLSegment(endpoint), now.Format("20060102_150405"), ext)
}

// compactJSON serializa em uma linha, sem escapar HTML.
func compactJSON(v interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return string(bytes.TrimRight(buf.Bytes(), "\n")), nil
}
