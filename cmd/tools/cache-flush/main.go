// cmd/tools/cache-flush/main.go
//
// Operational tool: drop cached match results, either for one owner or for
// the whole match namespace. Useful after a weights rollout or a bulk
// profile migration.
package main

import (
	"context"
	"flag"
	"time"

	"go.uber.org/zap"

	"cooin-core/internal/common/config"
	"cooin-core/internal/common/database"
	"cooin-core/internal/common/logger"
	"cooin-core/internal/matching/matchcache"
)

func main() {
	ownerID := flag.String("owner", "", "drop cached results for this owner only")
	all := flag.Bool("all", false, "drop every cached match result")
	flag.Parse()

	zapLog := logger.New("info", "console")
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	if *ownerID == "" && !*all {
		zapLog.Fatal("either -owner or -all is required")
	}

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	rdb, err := database.NewRedis(cfg.Database.Redis)
	if err != nil {
		zapLog.Fatal("redis init failed", zap.Error(err))
	}
	defer rdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx); err != nil {
		zapLog.Fatal("redis unreachable", zap.Error(err))
	}

	if *ownerID != "" {
		cache := matchcache.New(rdb.Client, cfg.Matching.CacheTTL(), log)
		if err := cache.Invalidate(ctx, *ownerID); err != nil {
			zapLog.Fatal("invalidation failed", zap.Error(err))
		}
		zapLog.Info("owner cache invalidated", zap.String("ownerId", *ownerID))
		return
	}

	deleted, err := flushNamespace(ctx, rdb)
	if err != nil {
		zapLog.Fatal("namespace flush failed", zap.Error(err))
	}
	zapLog.Info("match cache flushed", zap.Int("keysDeleted", deleted))
}

// flushNamespace walks the match keyspace with SCAN so the tool never blocks
// a production Redis the way KEYS would.
func flushNamespace(ctx context.Context, rdb *database.RedisClient) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := rdb.Client.Scan(ctx, cursor, "match:*", 200).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			if err := rdb.Client.Del(ctx, keys...).Err(); err != nil {
				return deleted, err
			}
			deleted += len(keys)
		}
		if next == 0 {
			return deleted, nil
		}
		cursor = next
	}
}
