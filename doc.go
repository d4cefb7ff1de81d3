// Package apipoller coleta periodicamente APIs HTTP e grava um artefato por
// chamada, com suporte a chamadas aninhadas (pai/filhos) e processadores
// plugáveis.
//
// Visão Geral:
// Um documento de configuração (JSON ou YAML, local, s3:// ou dynamodb://)
// descreve chamadas independentes (single_apis) e grupos aninhados
// (nested_apis). Em cada grupo, a resposta do pai é navegada por items_path e
// cada item alimenta os placeholders {campo} das URLs dos filhos.
//
// Sub-Pacotes Principais:
//
// 1. pkg/engine:
//   - Executor: pré-processador, autenticação, requisição, pós-processador, saída e persistência.
//   - Orchestrator: execução dos grupos aninhados com intervalo entre filhos.
//   - Poller: ciclo completo (singles, grupos e limpeza de artefatos antigos).
//   - Loader, Analyze e ConvertToYAML para o documento de configuração.
//
// 2. pkg/registry e pkg/processors:
//   - Registro nomeado de pré-processadores, pós-processadores e saídas.
//   - Built-ins de parâmetros, transformação JSON, CEL e sinks (arquivo, Splunk, S3, SQS, Redis, SQL, DynamoDB).
//
// 3. pkg/auth, pkg/transport e pkg/storage:
//   - Autenticação basic, bearer e OAuth2 client credentials.
//   - Cliente HTTP com proxy, verificação TLS e handler de Lambda.
//   - Artefatos <segmento>_YYYYMMDD_HHMMSS.log e limpeza por idade.
//
// Exemplo de Início Rápido:
//
//	poller --config config.yaml --processors ./processors
//	poller validate --config config.yaml
//	poller --convert-to-yaml config.json
package apipoller
