package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/raywall/api-poller/pkg/cloud"
	"github.com/raywall/api-poller/pkg/config"
	"github.com/raywall/api-poller/pkg/config/injector"
	"gopkg.in/yaml.v3"
)

// Load é a função simplificada usada pela CLI.
// Ela abstrai a criação do UniversalLoader.
func Load(ctx context.Context, source string) (*config.PollerConfig, error) {
	return NewUniversalLoader().Load(ctx, source)
}

// --- Interfaces para Mocking ---

type S3Downloader interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type DynamoGetter interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// UniversalLoader suporta múltiplas fontes de configuração (Local, S3, DynamoDB).
type UniversalLoader struct {
	validator *config.ConfigValidator
	injector  *injector.Injector
	region    string
}

// NewUniversalLoader cria uma nova instância.
func NewUniversalLoader() *UniversalLoader {
	return &UniversalLoader{
		validator: config.NewValidator(),
		injector:  injector.New(),
		region:    os.Getenv("AWS_REGION"),
	}
}

// Load detecta o esquema da fonte e carrega a configuração.
func (ul *UniversalLoader) Load(ctx context.Context, source string) (*config.PollerConfig, error) {
	var rawData []byte
	var err error

	switch {
	case strings.HasPrefix(source, "s3://"):
		awsCfg, cfgErr := cloud.GetAWSConfig(ctx, ul.region)
		if cfgErr != nil {
			return nil, cfgErr
		}
		rawData, err = ul.loadFromS3Internal(ctx, s3.NewFromConfig(awsCfg), source)

	case strings.HasPrefix(source, "dynamodb://"):
		awsCfg, cfgErr := cloud.GetAWSConfig(ctx, ul.region)
		if cfgErr != nil {
			return nil, cfgErr
		}
		rawData, err = ul.loadFromDynamoDBInternal(ctx, dynamodb.NewFromConfig(awsCfg), source)

	default:
		// Default: Arquivo Local
		rawData, err = ul.loadFromFile(source)
	}

	if err != nil {
		return nil, fmt.Errorf("falha leitura config (%s): %w", source, err)
	}

	return ul.parseAndValidate(ctx, rawData, formatOf(source, rawData))
}

// --- Estratégias de carregamento (métodos internos testáveis) ---

func (ul *UniversalLoader) loadFromFile(path string) ([]byte, error) {
	// Suporta tanto "file://config.yaml" quanto apenas "config.yaml"
	cleanPath := strings.TrimPrefix(path, "file://")
	return os.ReadFile(cleanPath)
}

func (ul *UniversalLoader) loadFromS3Internal(ctx context.Context, client S3Downloader, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("URL S3 inválida: %w", err)
	}
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

func (ul *UniversalLoader) loadFromDynamoDBInternal(ctx context.Context, client DynamoGetter, uri string) ([]byte, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("URL DynamoDB inválida: %w", err)
	}

	tableName := u.Host
	pkValue := strings.TrimPrefix(u.Path, "/")

	// Query Params opcionais: dynamodb://tabela/chave?col=dado&pk=PollerId
	colName := u.Query().Get("col")
	if colName == "" {
		colName = "config" // Coluna padrão onde o documento está salvo
	}

	pkName := u.Query().Get("pk")
	if pkName == "" {
		pkName = "id" // Nome padrão da Partition Key
	}

	out, err := client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &tableName,
		Key: map[string]types.AttributeValue{
			pkName: &types.AttributeValueMemberS{Value: pkValue},
		},
	})
	if err != nil {
		return nil, err
	}

	if out.Item == nil {
		return nil, fmt.Errorf("item não encontrado no DynamoDB")
	}

	var itemMap map[string]interface{}
	if err := attributevalue.UnmarshalMap(out.Item, &itemMap); err != nil {
		return nil, err
	}

	content, ok := itemMap[colName].(string)
	if !ok {
		return nil, fmt.Errorf("coluna '%s' inválida ou vazia no DynamoDB", colName)
	}

	return []byte(content), nil
}

type docFormat int

const (
	formatJSON docFormat = iota
	formatYAML
)

// formatOf usa a extensão da origem; sem extensão conhecida, olha o primeiro caractere.
func formatOf(source string, data []byte) docFormat {
	if u, err := url.Parse(source); err == nil && u.Scheme != "" && u.Scheme != "file" {
		source = u.Path
	}
	switch strings.ToLower(filepath.Ext(source)) {
	case ".yaml", ".yml":
		return formatYAML
	case ".json":
		return formatJSON
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return formatJSON
	}
	return formatYAML
}

// parseAndValidate decodifica, injeta segredos, aplica defaults e valida.
func (ul *UniversalLoader) parseAndValidate(ctx context.Context, data []byte, format docFormat) (*config.PollerConfig, error) {
	var cfg config.PollerConfig

	// 1. Unmarshal (JSON ou YAML -> Struct)
	switch format {
	case formatYAML:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("YAML malformado: %w", err)
		}
	default:
		// Números de body e args chegam intactos (ids acima de 2^53)
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("JSON malformado: %w", err)
		}
	}

	// 2. Injection (Env/Secrets/SSM)
	if ul.injector != nil {
		if err := ul.injector.Inject(ctx, &cfg); err != nil {
			return nil, fmt.Errorf("falha na injeção de variáveis: %w", err)
		}
	}

	// 3. Defaults + Validation
	cfg.ApplyDefaults()
	if ul.validator != nil {
		if err := ul.validator.Validate(&cfg); err != nil {
			return nil, fmt.Errorf("validação da configuração falhou: %w", err)
		}
	}

	return &cfg, nil
}
