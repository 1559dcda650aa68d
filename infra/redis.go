package infra

import (
	"context"
	"os"
	"strconv"

	"github.com/go-redis/redis/v8"
)

// ProvideRedisClient builds the client used for publishing occupancy
// stats. REDIS_DB defaults to 0 when unset; connection failures show
// up per-operation and are handled (logged) by the callers, since
// stats publishing is best effort.
func ProvideRedisClient(loggerFactory *LoggerFactory) (*redis.Client, error) {
	logger := loggerFactory.Create("RedisClient").Sugar()

	redisDb := 0
	if env := os.Getenv("REDIS_DB"); env != "" {
		var err error
		if redisDb, err = strconv.Atoi(env); err != nil {
			logger.Errorf("invalid redis db %v", err)
			return nil, err
		}
	}

	return redis.NewClient(&redis.Options{
		Addr: os.Getenv("REDIS_HOST"),
		DB:   redisDb,
		OnConnect: func(ctx context.Context, cn *redis.Conn) error {
			logger.Infof("redis connected to host[%v] db[%v]", os.Getenv("REDIS_HOST"), redisDb)
			return nil
		},
	}), nil
}
