package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// SSMClient define a interface do Parameter Store (permite Mock)
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SecretsClient define a interface do Secrets Manager (permite Mock)
type SecretsClient interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// Parameter lê um parâmetro do SSM (sempre com decrypt).
func Parameter(ctx context.Context, region, name string) (string, error) {
	cfg, err := GetAWSConfig(ctx, region)
	if err != nil {
		return "", fmt.Errorf("erro config aws: %w", err)
	}
	return getParameterInternal(ctx, ssm.NewFromConfig(cfg), name)
}

func getParameterInternal(ctx context.Context, client SSMClient, name string) (string, error) {
	decrypt := true
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           &name,
		WithDecryption: &decrypt,
	})
	if err != nil {
		return "", fmt.Errorf("erro no SSM GetParameter (%s): %w", name, err)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", fmt.Errorf("parâmetro '%s' sem valor", name)
	}
	return *out.Parameter.Value, nil
}

// Secret lê um segredo do Secrets Manager. O formato "nome#campo" extrai
// um campo de segredos armazenados como JSON.
func Secret(ctx context.Context, region, ref string) (string, error) {
	cfg, err := GetAWSConfig(ctx, region)
	if err != nil {
		return "", fmt.Errorf("erro config aws: %w", err)
	}
	return getSecretInternal(ctx, secretsmanager.NewFromConfig(cfg), ref)
}

func getSecretInternal(ctx context.Context, client SecretsClient, ref string) (string, error) {
	secretID, field, _ := strings.Cut(ref, "#")

	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: &secretID,
	})
	if err != nil {
		return "", fmt.Errorf("erro no SecretsManager (%s): %w", secretID, err)
	}
	if out.SecretString == nil {
		return "", fmt.Errorf("segredo '%s' não possui SecretString", secretID)
	}

	val := *out.SecretString
	if field == "" {
		return val, nil
	}

	// Segredo JSON: extrai apenas o campo pedido
	var data map[string]interface{}
	if err := json.Unmarshal([]byte(val), &data); err != nil {
		return "", fmt.Errorf("segredo '%s' não é JSON: %w", secretID, err)
	}
	fv, ok := data[field]
	if !ok {
		return "", fmt.Errorf("campo '%s' não encontrado no segredo '%s'", field, secretID)
	}
	return fmt.Sprintf("%v", fv), nil
}
