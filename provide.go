package main

import (
	"time"

	"github.com/cgreenhalgh/timed-ticket-server/auth"
	"github.com/cgreenhalgh/timed-ticket-server/config"
	"github.com/cgreenhalgh/timed-ticket-server/infra"
	"github.com/cgreenhalgh/timed-ticket-server/seat"
)

// SigningKey is the resolved ticket signing secret. Empty means
// unsigned mode.
type SigningKey string

func ProvideSigningKey(cfg *config.Config, loggerFactory *infra.LoggerFactory) SigningKey {
	return SigningKey(cfg.ResolveSecret(loggerFactory.Create("Config").Sugar()))
}

func ProvideRegistry(cfg *config.Config, loggerFactory *infra.LoggerFactory) *seat.Registry {
	return seat.NewRegistry(*cfg.MaxSeats, *cfg.MaxWildcardSeats,
		loggerFactory.Create("Registry").Sugar())
}

func ProvideAuthenticator(cfg *config.Config, key SigningKey, registry *seat.Registry, loggerFactory *infra.LoggerFactory) *auth.Authenticator {
	return auth.NewAuthenticator(auth.Options{
		EventName: *cfg.EventName,
		Key:       string(key),
		Timeout:   time.Duration(*cfg.AuthTimeoutSeconds) * time.Second,
	}, registry, auth.TimerScheduler{}, loggerFactory.Create("Authenticator").Sugar())
}
