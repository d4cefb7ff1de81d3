package engine

import (
	"context"
	"time"

	"github.com/raywall/api-poller/pkg/config"
	"github.com/raywall/api-poller/pkg/transport"
)

// Loader é responsável por carregar e decodificar a configuração do poller.
// Ele abstrai a origem do arquivo (Sistema de arquivos, S3, DynamoDB).
type Loader interface {
	// Load lê a configuração a partir de uma origem e retorna a struct validada.
	Load(ctx context.Context, source string) (*config.PollerConfig, error)
}

// Performer executa uma chamada HTTP já resolvida.
// É satisfeito por *transport.Client.
type Performer interface {
	Perform(ctx context.Context, r transport.Request) (*transport.Response, error)
}

// Persister grava os artefatos padrão de cada chamada.
// É satisfeito por *storage.Store.
type Persister interface {
	Save(endpoint string, data interface{}) (string, error)
	SaveError(endpoint string, status int, body string) (string, error)
}

// Cleaner remove arquivos antigos ao final de uma rodada.
type Cleaner interface {
	Cleanup(maxAge time.Duration) (int, error)
}
