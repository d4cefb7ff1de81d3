package processors

import (
	"bytes"
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/klauspost/compress/gzip"
	"github.com/raywall/api-poller/json/path"
	"github.com/raywall/api-poller/pkg/registry"
	"github.com/raywall/api-poller/pkg/storage"
	"github.com/raywall/api-poller/pkg/transport"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const alertsURL = "https://api.example.com/v1/alerts"

func decoded(t *testing.T, raw string) interface{} {
	t.Helper()
	v, err := path.Decode([]byte(raw))
	require.NoError(t, err)
	return v
}

// --- Mocks ---

type MockS3Putter struct {
	PutObjectFunc func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

func (m *MockS3Putter) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	return m.PutObjectFunc(ctx, params, optFns...)
}

type MockSQSSender struct {
	SendMessageFunc func(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

func (m *MockSQSSender) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	return m.SendMessageFunc(ctx, params, optFns...)
}

type MockDynamoPutter struct {
	PutItemFunc func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

func (m *MockDynamoPutter) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	return m.PutItemFunc(ctx, params, optFns...)
}

type MockRedis struct{ mock.Mock }

func (m *MockRedis) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	return m.Called(ctx, key, values).Get(0).(*redis.IntCmd)
}

func (m *MockRedis) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	return m.Called(ctx, key, expiration).Get(0).(*redis.BoolCmd)
}

type MockExecer struct{ mock.Mock }

func (m *MockExecer) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ret := m.Called(ctx, query, args)
	res, _ := ret.Get(0).(sql.Result)
	return res, ret.Error(1)
}

// --- Arquivos ---

func TestOutput_CSVFile(t *testing.T) {
	dir := t.TempDir()
	reg := newRegistry(t, Deps{OutputDir: dir})

	data := decoded(t, `[{"name":"disk","id":1,"tags":["a"]},{"id":2,"name":"cpu"},"ignored"]`)
	out := reg.RunOutput(context.Background(), "csv_file", data, alertsURL, nil)
	require.NoError(t, out.Err)
	require.True(t, out.Value)

	content, err := os.ReadFile(filepath.Join(dir, "alerts_20250314_150926.csv"))
	require.NoError(t, err)
	assert.Equal(t, "id,name,tags\n1,disk,\"[\"\"a\"\"]\"\n2,cpu,\n", string(content))

	t.Run("Campos e nome explícitos, sem cabeçalho", func(t *testing.T) {
		other := t.TempDir()
		out := reg.RunOutput(context.Background(), "csv_file", data, alertsURL, registry.Args{
			"directory": other, "filename": "out.csv", "fields": []interface{}{"name"}, "headers": false,
		})
		require.NoError(t, out.Err)

		content, err := os.ReadFile(filepath.Join(other, "out.csv"))
		require.NoError(t, err)
		assert.Equal(t, "disk\ncpu\n", string(content))
	})

	t.Run("Tipo não suportado", func(t *testing.T) {
		out := reg.RunOutput(context.Background(), "csv_file", "plain", alertsURL, nil)
		assert.False(t, out.Value)
		assert.Error(t, out.Err)
	})
}

func TestOutput_JSONLFile(t *testing.T) {
	dir := t.TempDir()
	reg := newRegistry(t, Deps{OutputDir: dir})
	ctx := context.Background()

	tests := []struct {
		name string
		data interface{}
		want string
	}{
		{"Lista", decoded(t, `[{"a":1},{"b":"<2>"}]`), "{\"a\":1}\n{\"b\":\"<2>\"}\n"},
		{"Objeto", decoded(t, `{"a":1}`), "{\"a\":1}\n"},
		{"Linhas já separadas", storage.Lines{`{"x":1}`, `{"x":2}`}, "{\"x\":1}\n{\"x\":2}\n"},
		{"Marcador de split", map[string]interface{}{storage.SplitMarker: []interface{}{"l1", "l2"}}, "l1\nl2\n"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name := filepath.Join(dir, tt.name+".jsonl")
			out := reg.RunOutput(ctx, "jsonl_file", tt.data, alertsURL, registry.Args{"filename": filepath.Base(name)})
			require.NoError(t, out.Err, "caso %d", i)
			require.True(t, out.Value)

			content, err := os.ReadFile(name)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(content))
		})
	}
}

// --- Splunk HEC ---

func TestOutput_SplunkHEC(t *testing.T) {
	var (
		gotAuth    string
		gotChannel string
		gotBody    string
		status     = http.StatusOK
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotChannel = r.Header.Get("X-Splunk-Request-Channel")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"text":"Success","code":0}`))
	}))
	defer srv.Close()

	reg := newRegistry(t, Deps{HTTP: transport.NewClientWithDoer(srv.Client())})
	ctx := context.Background()
	args := registry.Args{"hec_url": srv.URL + "/services/collector", "token": "abc", "index": "main"}

	t.Run("Evento único vai como objeto JSON", func(t *testing.T) {
		out := reg.RunOutput(ctx, "splunk_hec", decoded(t, `{"id":1}`), alertsURL, args)
		require.NoError(t, out.Err)
		assert.True(t, out.Value)
		assert.Equal(t, "Splunk abc", gotAuth)
		assert.NotEmpty(t, gotChannel)
		assert.JSONEq(t, `{"event":{"id":1},"index":"main","source":"`+alertsURL+`","sourcetype":"api_poller"}`, gotBody)
	})

	t.Run("Vários eventos vão um por linha", func(t *testing.T) {
		out := reg.RunOutput(ctx, "splunk_hec", decoded(t, `[{"id":1},{"id":2}]`), alertsURL,
			args.Merge(registry.Args{"sourcetype": "alerts"}))
		require.NoError(t, out.Err)

		parts := strings.Split(gotBody, "\n")
		require.Len(t, parts, 2)
		for i, part := range parts {
			var ev map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(part), &ev))
			assert.Equal(t, "alerts", ev["sourcetype"])
			assert.Equal(t, float64(i+1), ev["event"].(map[string]interface{})["id"])
		}
	})

	t.Run("Status diferente de 200/201 é falha", func(t *testing.T) {
		status = http.StatusForbidden
		defer func() { status = http.StatusOK }()

		out := reg.RunOutput(ctx, "splunk_hec", decoded(t, `{"id":1}`), alertsURL, args)
		assert.False(t, out.Value)
		assert.ErrorContains(t, out.Err, "403")
	})

	t.Run("Sem token", func(t *testing.T) {
		out := reg.RunOutput(ctx, "splunk_hec", decoded(t, `{"id":1}`), alertsURL, registry.Args{"hec_url": srv.URL})
		assert.False(t, out.Value)
		assert.Error(t, out.Err)
	})
}

// --- AWS ---

func TestOutput_S3Object(t *testing.T) {
	var got *s3.PutObjectInput
	var body []byte
	mockS3 := &MockS3Putter{
		PutObjectFunc: func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
			got = params
			body, _ = io.ReadAll(params.Body)
			return &s3.PutObjectOutput{}, nil
		},
	}
	reg := newRegistry(t, Deps{S3: mockS3})
	data := decoded(t, `{"id":1}`)

	t.Run("Com gzip", func(t *testing.T) {
		out := reg.RunOutput(context.Background(), "s3_object", data, alertsURL,
			registry.Args{"bucket": "raw-bucket", "prefix": "alerts/", "gzip": true})
		require.NoError(t, out.Err)
		require.True(t, out.Value)

		assert.Equal(t, "raw-bucket", *got.Bucket)
		assert.Equal(t, "alerts/alerts_20250314_150926.log.gz", *got.Key)
		assert.Equal(t, "gzip", *got.ContentEncoding)

		zr, err := gzip.NewReader(bytes.NewReader(body))
		require.NoError(t, err)
		plain, err := io.ReadAll(zr)
		require.NoError(t, err)

		want, err := storage.Render(data)
		require.NoError(t, err)
		assert.Equal(t, string(want), string(plain))
	})

	t.Run("Sem bucket", func(t *testing.T) {
		out := reg.RunOutput(context.Background(), "s3_object", data, alertsURL, nil)
		assert.False(t, out.Value)
		assert.Error(t, out.Err)
	})

	t.Run("Erro do S3", func(t *testing.T) {
		failing := newRegistry(t, Deps{S3: &MockS3Putter{
			PutObjectFunc: func(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
				return nil, errors.New("access denied")
			},
		}})
		out := failing.RunOutput(context.Background(), "s3_object", data, alertsURL, registry.Args{"bucket": "b"})
		assert.False(t, out.Value)
		assert.ErrorContains(t, out.Err, "access denied")
	})
}

func TestOutput_SQSMessage(t *testing.T) {
	var sent []*sqs.SendMessageInput
	reg := newRegistry(t, Deps{SQS: &MockSQSSender{
		SendMessageFunc: func(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
			sent = append(sent, params)
			return &sqs.SendMessageOutput{}, nil
		},
	}})

	out := reg.RunOutput(context.Background(), "sqs_message", decoded(t, `[{"id":1},{"id":2}]`), alertsURL,
		registry.Args{"queue_url": "https://sqs.local/q"})
	require.NoError(t, out.Err)
	require.True(t, out.Value)

	require.Len(t, sent, 2)
	assert.Equal(t, `{"id":1}`, *sent[0].MessageBody)
	assert.Equal(t, `{"id":2}`, *sent[1].MessageBody)
	assert.Equal(t, "https://sqs.local/q", *sent[0].QueueUrl)
	assert.Equal(t, alertsURL, *sent[0].MessageAttributes["endpoint"].StringValue)
}

func TestOutput_DynamoItem(t *testing.T) {
	var items []map[string]ddbtypes.AttributeValue
	reg := newRegistry(t, Deps{Dynamo: &MockDynamoPutter{
		PutItemFunc: func(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
			assert.Equal(t, "alerts", *params.TableName)
			items = append(items, params.Item)
			return &dynamodb.PutItemOutput{}, nil
		},
	}})

	out := reg.RunOutput(context.Background(), "dynamodb_item", decoded(t, `[{"id":7,"name":"disk"},{"name":"cpu"}]`), alertsURL,
		registry.Args{"table": "alerts"})
	require.NoError(t, out.Err)
	require.True(t, out.Value)
	require.Len(t, items, 2)

	id, ok := items[0]["id"].(*ddbtypes.AttributeValueMemberN)
	require.True(t, ok, "json.Number deve virar atributo numérico")
	assert.Equal(t, "7", id.Value)
	assert.Equal(t, &ddbtypes.AttributeValueMemberS{Value: alertsURL}, items[0]["_endpoint"])

	generated, ok := items[1]["id"].(*ddbtypes.AttributeValueMemberS)
	require.True(t, ok, "sem id deve gerar uuid")
	assert.Len(t, generated.Value, 36)
}

// --- Redis / SQL ---

func TestOutput_RedisList(t *testing.T) {
	ctx := context.Background()
	m := new(MockRedis)

	pushed := redis.NewIntCmd(ctx)
	pushed.SetVal(2)
	expired := redis.NewBoolCmd(ctx)
	expired.SetVal(true)

	m.On("RPush", mock.Anything, "api_poller:alerts", []interface{}{`{"id":1}`, `{"id":2}`}).Return(pushed).Once()
	m.On("Expire", mock.Anything, "api_poller:alerts", 60*time.Second).Return(expired).Once()

	var gotAddr string
	reg := newRegistry(t, Deps{Redis: func(addr, password string, db int) RedisPusher {
		gotAddr = addr
		return m
	}})

	out := reg.RunOutput(ctx, "redis_list", decoded(t, `[{"id":1},{"id":2}]`), alertsURL,
		registry.Args{"addr": "localhost:6379", "ttl_seconds": 60})
	require.NoError(t, out.Err)
	assert.True(t, out.Value)
	assert.Equal(t, "localhost:6379", gotAddr)
	m.AssertExpectations(t)

	t.Run("Erro no RPUSH", func(t *testing.T) {
		failing := new(MockRedis)
		cmd := redis.NewIntCmd(ctx)
		cmd.SetErr(errors.New("connection refused"))
		failing.On("RPush", mock.Anything, "k", mock.Anything).Return(cmd)

		reg := newRegistry(t, Deps{Redis: func(string, string, int) RedisPusher { return failing }})
		out := reg.RunOutput(ctx, "redis_list", decoded(t, `{"id":1}`), alertsURL, registry.Args{"addr": "x", "key": "k"})
		assert.False(t, out.Value)
		assert.ErrorContains(t, out.Err, "connection refused")
		failing.AssertNotCalled(t, "Expire", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestOutput_SQLTable(t *testing.T) {
	ctx := context.Background()
	query := "INSERT INTO public.api_events (endpoint, captured_at, payload) VALUES ($1, $2, $3)"

	m := new(MockExecer)
	m.On("ExecContext", mock.Anything, query, []interface{}{alertsURL, fixedNow, `{"id":1}`}).Return(driver.RowsAffected(1), nil).Once()
	m.On("ExecContext", mock.Anything, query, []interface{}{alertsURL, fixedNow, `{"id":2}`}).Return(driver.RowsAffected(1), nil).Once()

	var gotDriver string
	reg := newRegistry(t, Deps{SQL: func(drv, dsn string) (Execer, error) {
		gotDriver = drv
		return m, nil
	}})

	out := reg.RunOutput(ctx, "sql_table", decoded(t, `[{"id":1},{"id":2}]`), alertsURL,
		registry.Args{"dsn": "postgres://localhost/db", "table": "public.api_events"})
	require.NoError(t, out.Err)
	assert.True(t, out.Value)
	assert.Equal(t, "postgres", gotDriver)
	m.AssertExpectations(t)

	t.Run("Nome de tabela inválido", func(t *testing.T) {
		unused := new(MockExecer)
		reg := newRegistry(t, Deps{SQL: func(string, string) (Execer, error) { return unused, nil }})
		out := reg.RunOutput(ctx, "sql_table", decoded(t, `{"id":1}`), alertsURL,
			registry.Args{"dsn": "x", "table": "events; DROP TABLE users"})
		assert.False(t, out.Value)
		assert.Error(t, out.Err)
		unused.AssertNotCalled(t, "ExecContext", mock.Anything, mock.Anything, mock.Anything)
	})
}
