package processors

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/raywall/api-poller/pkg/cloud"
	"github.com/raywall/api-poller/pkg/registry"
	"github.com/raywall/api-poller/pkg/rules"
	"github.com/raywall/api-poller/pkg/storage"
)

// S3Putter interface para Mock
type S3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// SQSSender interface para Mock
type SQSSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// DynamoPutter interface para Mock
type DynamoPutter interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

func (b *builtins) awsConfig(ctx context.Context) (aws.Config, error) {
	cfg, err := cloud.GetAWSConfig(ctx, b.Region)
	if err != nil {
		return aws.Config{}, fmt.Errorf("erro config aws: %w", err)
	}
	return cfg, nil
}

func (b *builtins) s3Client(ctx context.Context) (S3Putter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.S3 == nil {
		cfg, err := b.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		b.S3 = s3.NewFromConfig(cfg)
	}
	return b.S3, nil
}

func (b *builtins) sqsClient(ctx context.Context) (SQSSender, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SQS == nil {
		cfg, err := b.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		b.SQS = sqs.NewFromConfig(cfg)
	}
	return b.SQS, nil
}

func (b *builtins) dynamoClient(ctx context.Context) (DynamoPutter, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Dynamo == nil {
		cfg, err := b.awsConfig(ctx)
		if err != nil {
			return nil, err
		}
		b.Dynamo = dynamodb.NewFromConfig(cfg)
	}
	return b.Dynamo, nil
}

// s3Object grava o artefato renderizado em s3://bucket/prefix<nome>.log[.gz].
func (b *builtins) s3Object(ctx context.Context, data interface{}, endpoint string, args registry.Args) (bool, error) {
	bucket := args.String("bucket", "")
	if bucket == "" {
		return false, fmt.Errorf("s3_object exige 'bucket'")
	}

	content, err := storage.Render(data)
	if err != nil {
		return false, err
	}

	key := args.String("prefix", "") + artifactName(endpoint, ".log", b.Now())
	input := &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		ContentType: aws.String("application/json"),
	}

	if args.Bool("gzip", false) {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(content); err != nil {
			return false, fmt.Errorf("erro ao comprimir artefato: %w", err)
		}
		if err := zw.Close(); err != nil {
			return false, fmt.Errorf("erro ao comprimir artefato: %w", err)
		}
		content = buf.Bytes()
		key += ".gz"
		input.ContentEncoding = aws.String("gzip")
	}
	input.Key = aws.String(key)
	input.Body = bytes.NewReader(content)

	client, err := b.s3Client(ctx)
	if err != nil {
		return false, err
	}
	if _, err := client.PutObject(ctx, input); err != nil {
		return false, fmt.Errorf("erro no S3 PutObject (%s/%s): %w", bucket, key, err)
	}

	b.logger.Info().Str("bucket", bucket).Str("key", key).Msg("Artefato enviado ao S3")
	return true, nil
}

// sqsMessage publica uma mensagem por evento na fila queue_url.
func (b *builtins) sqsMessage(ctx context.Context, data interface{}, endpoint string, args registry.Args) (bool, error) {
	queueURL := args.String("queue_url", "")
	if queueURL == "" {
		return false, fmt.Errorf("sqs_message exige 'queue_url'")
	}

	messages, err := lines(data)
	if err != nil {
		return false, err
	}

	client, err := b.sqsClient(ctx)
	if err != nil {
		return false, err
	}

	for i, msg := range messages {
		_, err := client.SendMessage(ctx, &sqs.SendMessageInput{
			QueueUrl:    aws.String(queueURL),
			MessageBody: aws.String(msg),
			MessageAttributes: map[string]sqstypes.MessageAttributeValue{
				"endpoint": {DataType: aws.String("String"), StringValue: aws.String(endpoint)},
			},
		})
		if err != nil {
			return false, fmt.Errorf("erro no SQS SendMessage (%d/%d): %w", i+1, len(messages), err)
		}
	}

	b.logger.Info().Str("queue", queueURL).Int("messages", len(messages)).Msg("Eventos publicados no SQS")
	return true, nil
}

// dynamoItem grava um item por evento na tabela. Sem key_attr no evento, gera um uuid.
func (b *builtins) dynamoItem(ctx context.Context, data interface{}, endpoint string, args registry.Args) (bool, error) {
	table := args.String("table", "")
	if table == "" {
		return false, fmt.Errorf("dynamodb_item exige 'table'")
	}
	keyAttr := args.String("key_attr", "id")

	recs, err := records(data)
	if err != nil {
		return false, err
	}

	client, err := b.dynamoClient(ctx)
	if err != nil {
		return false, err
	}

	captured := b.Now().UTC().Format(time.RFC3339)
	for _, rec := range recs {
		item, ok := rules.Normalize(rec).(map[string]interface{})
		if !ok {
			item = map[string]interface{}{"value": rules.Normalize(rec)}
		}
		if _, ok := item[keyAttr]; !ok {
			item[keyAttr] = uuid.NewString()
		}
		item["_endpoint"] = endpoint
		item["_captured_at"] = captured

		av, err := attributevalue.MarshalMap(item)
		if err != nil {
			return false, fmt.Errorf("erro ao converter item para DynamoDB: %w", err)
		}
		if _, err := client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(table),
			Item:      av,
		}); err != nil {
			return false, fmt.Errorf("erro no DynamoDB PutItem (%s): %w", table, err)
		}
	}

	b.logger.Info().Str("table", table).Int("items", len(recs)).Msg("Eventos gravados no DynamoDB")
	return true, nil
}
