package main

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/cgreenhalgh/timed-ticket-server/auth"
	"github.com/cgreenhalgh/timed-ticket-server/config"
	"github.com/cgreenhalgh/timed-ticket-server/infra"
)

const statsRedisKey = "occupancy"

// Stats periodically publishes seat occupancy to redis so dashboards
// and the main event service can watch fill levels. Best effort:
// publish failures are logged and retried next tick.
type Stats struct {
	authenticator *auth.Authenticator
	redisClient   *redis.Client
	interval      time.Duration
	logger        *zap.SugaredLogger
}

func ProvideStats(cfg *config.Config, authenticator *auth.Authenticator, redisClient *redis.Client, loggerFactory *infra.LoggerFactory) *Stats {
	return &Stats{
		authenticator: authenticator,
		redisClient:   redisClient,
		interval:      time.Duration(*cfg.StatsIntervalSeconds) * time.Second,
		logger:        loggerFactory.Create("Stats").Sugar(),
	}
}

func (s *Stats) Run() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for range ticker.C {
		numbered, wildcard := s.authenticator.Occupancy()

		if _, err := s.redisClient.HSet(context.TODO(), statsRedisKey,
			"numberedSeats", numbered,
			"wildcardSeats", wildcard,
			"updatedAt", time.Now().UTC().Format(time.RFC3339),
		).Result(); err != nil {
			s.logger.Errorf("err publishing occupancy to redis %v", err)
			continue
		}

		s.logger.Debugf("published occupancy numbered[%v] wildcard[%v]", numbered, wildcard)
	}
}
