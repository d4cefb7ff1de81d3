package processors

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raywall/api-poller/pkg/config"
	"github.com/raywall/api-poller/pkg/registry"
	"github.com/redis/go-redis/v9"
)

// RedisPusher é o subconjunto de *redis.Client usado pelo sink (permite Mock).
type RedisPusher interface {
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

var (
	redisMu      sync.Mutex
	redisClients = make(map[string]*redis.Client)
)

// defaultRedis reaproveita um cliente por endereço/senha/db.
func defaultRedis(addr, password string, db int) RedisPusher {
	redisMu.Lock()
	defer redisMu.Unlock()

	key := fmt.Sprintf("%s|%s|%d", addr, password, db)
	if client, ok := redisClients[key]; ok {
		return client
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	redisClients[key] = client
	return client
}

// redisList faz RPUSH de um JSON por evento em key (default api_poller:<segmento>).
func (b *builtins) redisList(ctx context.Context, data interface{}, endpoint string, args registry.Args) (bool, error) {
	addr := args.String("addr", "")
	if addr == "" {
		return false, fmt.Errorf("redis_list exige 'addr'")
	}
	key := args.String("key", "api_poller:"+config.LastURLSegment(endpoint))

	values, err := lines(data)
	if err != nil {
		return false, err
	}
	if len(values) == 0 {
		return true, nil
	}

	items := make([]interface{}, len(values))
	for i, v := range values {
		items[i] = v
	}

	client := b.Redis(addr, args.String("password", ""), args.Int("db", 0))
	if err := client.RPush(ctx, key, items...).Err(); err != nil {
		return false, fmt.Errorf("erro no redis RPUSH (%s): %w", key, err)
	}
	if ttl := args.Int("ttl_seconds", 0); ttl > 0 {
		if err := client.Expire(ctx, key, time.Duration(ttl)*time.Second).Err(); err != nil {
			return false, fmt.Errorf("erro no redis EXPIRE (%s): %w", key, err)
		}
	}

	b.logger.Info().Str("key", key).Int("items", len(items)).Msg("Eventos enviados ao Redis")
	return true, nil
}
