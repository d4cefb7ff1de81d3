package processors

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"sync"
	"time"

	_ "github.com/lib/pq" // Driver Postgres

	"github.com/raywall/api-poller/pkg/registry"
)

// Execer é satisfeito por *sql.DB (permite Mock).
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

var (
	sqlMu  sync.Mutex
	sqlDBs = make(map[string]*sql.DB)

	tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

func defaultSQL(driver, dsn string) (Execer, error) {
	sqlMu.Lock()
	defer sqlMu.Unlock()

	key := driver + "|" + dsn
	if db, ok := sqlDBs[key]; ok {
		return db, nil
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("erro ao abrir conexão SQL: %w", err)
	}
	sqlDBs[key] = db
	return db, nil
}

// sqlTable insere uma linha por evento: (endpoint, captured_at, payload JSON).
// A tabela precisa existir, por exemplo:
//
//	CREATE TABLE api_events (endpoint text, captured_at timestamptz, payload jsonb);
func (b *builtins) sqlTable(ctx context.Context, data interface{}, endpoint string, args registry.Args) (bool, error) {
	dsn := args.String("dsn", "")
	table := args.String("table", "")
	if dsn == "" || table == "" {
		return false, fmt.Errorf("sql_table exige 'dsn' e 'table'")
	}
	if !tableName.MatchString(table) {
		return false, fmt.Errorf("nome de tabela inválido '%s'", table)
	}

	payloads, err := lines(data)
	if err != nil {
		return false, err
	}

	db, err := b.SQL(args.String("driver", "postgres"), dsn)
	if err != nil {
		return false, err
	}

	// Timeout de segurança para banco de dados
	ctxDb, cancel := context.WithTimeout(ctx, args.Duration("timeout", 5*time.Second))
	defer cancel()

	query := fmt.Sprintf("INSERT INTO %s (endpoint, captured_at, payload) VALUES ($1, $2, $3)", table)
	captured := b.Now().UTC()
	for i, payload := range payloads {
		if _, err := db.ExecContext(ctxDb, query, endpoint, captured, payload); err != nil {
			return false, fmt.Errorf("erro no INSERT %d/%d em '%s': %w", i+1, len(payloads), table, err)
		}
	}

	b.logger.Info().Str("table", table).Int("rows", len(payloads)).Msg("Eventos gravados no banco")
	return true, nil
}
