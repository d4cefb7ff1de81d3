package engine

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/raywall/api-poller/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Mocks ---

type MockS3Loader struct {
	GetObjectFunc func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

func (m *MockS3Loader) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return m.GetObjectFunc(ctx, params, optFns...)
}

type MockDynamoLoader struct {
	GetItemFunc func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

func (m *MockDynamoLoader) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return m.GetItemFunc(ctx, params, optFns...)
}

const yamlConfig = `
auth_type: bearer
token: ${env.POLLER_TEST_TOKEN}
single_apis:
  - url: https://api.example.com/v1/alerts
    params:
      limit: 100
    postprocess:
      name: filter_response
      args:
        fields: [id, severity]
nested_apis:
  - parent_api:
      url: https://api.example.com/v1/hosts
      items_path: data.hosts
    child_apis:
      - url: https://api.example.com/v1/hosts/{id}/metrics
        interval: 0.5
cleanup_days: 3
`

const jsonConfig = `{
  "auth_type": "basic",
  "username": "svc",
  "password": "pw",
  "verify": false,
  "single_apis": [
    {"url": "https://api.example.com/v1/events", "method": "POST", "body": {"query": "x"}}
  ],
  "nested_apis": []
}`

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	file := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(file, []byte(content), 0o644))
	return file
}

// --- Testes ---

func TestUniversalLoader_Load_Local(t *testing.T) {
	t.Setenv("POLLER_TEST_TOKEN", "tok-from-env")

	t.Run("YAML com injeção e defaults", func(t *testing.T) {
		file := writeTemp(t, "poller.yaml", yamlConfig)

		cfg, err := NewUniversalLoader().Load(context.Background(), file)
		require.NoError(t, err)

		assert.Equal(t, config.AuthBearer, cfg.AuthType)
		assert.Equal(t, "tok-from-env", cfg.Token)
		assert.Equal(t, config.StringMap{"limit": "100"}, cfg.SingleAPIs[0].Params)
		assert.Equal(t, "filter_response", cfg.SingleAPIs[0].Postprocess.Name)
		assert.Equal(t, "data.hosts", cfg.NestedAPIs[0].Parent.ItemsPath)
		assert.Equal(t, 0.5, *cfg.NestedAPIs[0].Children[0].Interval)
		assert.Equal(t, 3, *cfg.CleanupDays)
		assert.Equal(t, config.DefaultOutputDir, cfg.OutputDir)
		assert.True(t, cfg.VerifyTLS())
	})

	t.Run("JSON com prefixo file://", func(t *testing.T) {
		file := writeTemp(t, "poller.json", jsonConfig)

		cfg, err := Load(context.Background(), "file://"+file)
		require.NoError(t, err)

		assert.Equal(t, config.AuthBasic, cfg.AuthType)
		assert.False(t, cfg.VerifyTLS())
		assert.Equal(t, "POST", cfg.SingleAPIs[0].HTTPMethod())
		assert.Equal(t, map[string]interface{}{"query": "x"}, cfg.SingleAPIs[0].Body)
		assert.Equal(t, config.DefaultCleanupDays, *cfg.CleanupDays)
	})

	t.Run("JSON preserva inteiros grandes em body e args", func(t *testing.T) {
		file := writeTemp(t, "poller.json", `{
  "single_apis": [{
    "url": "https://api.example.com/v1/events",
    "method": "POST",
    "body": {"id": 9007199254740993},
    "postprocess": {"name": "extract_nested", "args": {"default": 9007199254740995}}
  }]
}`)

		cfg, err := NewUniversalLoader().Load(context.Background(), file)
		require.NoError(t, err)

		body, err := json.Marshal(cfg.SingleAPIs[0].Body)
		require.NoError(t, err)
		assert.Equal(t, `{"id":9007199254740993}`, string(body))
		assert.Equal(t, json.Number("9007199254740995"), cfg.SingleAPIs[0].Postprocess.Args["default"])
	})

	t.Run("auth_type não suportado", func(t *testing.T) {
		file := writeTemp(t, "poller.json", `{"auth_type":"kerberos","single_apis":[]}`)

		_, err := NewUniversalLoader().Load(context.Background(), file)
		assert.ErrorIs(t, err, config.ErrUnsupportedAuthType)
	})

	t.Run("documento malformado", func(t *testing.T) {
		file := writeTemp(t, "poller.json", `{"single_apis": [`)

		_, err := NewUniversalLoader().Load(context.Background(), file)
		assert.ErrorContains(t, err, "JSON malformado")
	})

	t.Run("arquivo inexistente", func(t *testing.T) {
		_, err := NewUniversalLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestUniversalLoader_S3_Internal(t *testing.T) {
	mockYaml := `auth_type: basic`
	mockClient := &MockS3Loader{
		GetObjectFunc: func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			assert.Equal(t, "my-bucket", *params.Bucket)
			assert.Equal(t, "configs/poller.yaml", *params.Key)
			return &s3.GetObjectOutput{
				Body: io.NopCloser(strings.NewReader(mockYaml)),
			}, nil
		},
	}

	loader := NewUniversalLoader()
	// Chama o método interno injetando o mock
	data, err := loader.loadFromS3Internal(context.Background(), mockClient, "s3://my-bucket/configs/poller.yaml")
	require.NoError(t, err)
	assert.Equal(t, mockYaml, string(data))
}

func TestUniversalLoader_Dynamo_Internal(t *testing.T) {
	t.Run("pk e coluna customizadas", func(t *testing.T) {
		mockClient := &MockDynamoLoader{
			GetItemFunc: func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
				assert.Equal(t, "ConfigTable", *params.TableName)
				key := params.Key["PollerId"].(*types.AttributeValueMemberS).Value
				assert.Equal(t, "alerts-poller", key)

				return &dynamodb.GetItemOutput{
					Item: map[string]types.AttributeValue{
						"yaml_body": &types.AttributeValueMemberS{Value: `auth_type: basic`},
					},
				}, nil
			},
		}

		uri := "dynamodb://ConfigTable/alerts-poller?pk=PollerId&col=yaml_body"
		data, err := NewUniversalLoader().loadFromDynamoDBInternal(context.Background(), mockClient, uri)
		require.NoError(t, err)
		assert.Equal(t, `auth_type: basic`, string(data))
	})

	t.Run("item inexistente", func(t *testing.T) {
		mockClient := &MockDynamoLoader{
			GetItemFunc: func(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
				_, ok := params.Key["id"]
				assert.True(t, ok, "pk padrão deve ser 'id'")
				return &dynamodb.GetItemOutput{}, nil
			},
		}

		_, err := NewUniversalLoader().loadFromDynamoDBInternal(context.Background(), mockClient, "dynamodb://ConfigTable/x")
		assert.ErrorContains(t, err, "item não encontrado")
	})
}

func TestFormatOf(t *testing.T) {
	cases := []struct {
		source string
		data   string
		want   docFormat
	}{
		{"config.yaml", "{}", formatYAML},
		{"config.YML", "", formatYAML},
		{"config.json", "auth_type: basic", formatJSON},
		{"s3://bucket/path/poller.yaml", "", formatYAML},
		{"dynamodb://table/key?col=body", "  {\"auth_type\":\"basic\"}", formatJSON},
		{"dynamodb://table/key", "auth_type: basic", formatYAML},
	}
	for _, tc := range cases {
		t.Run(tc.source, func(t *testing.T) {
			assert.Equal(t, tc.want, formatOf(tc.source, []byte(tc.data)))
		})
	}
}
