//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/cgreenhalgh/timed-ticket-server/config"
	"github.com/cgreenhalgh/timed-ticket-server/infra"
)

func Setup() (*Server, error) {
	wire.Build(wire.NewSet(
		config.ProvideConfig,
		infra.ProvideLoggerFactory,
		infra.ProvideRedisClient,
		infra.ProvideHTTPClient,
		ProvideSigningKey,
		ProvideRegistry,
		ProvideAuthenticator,
		ProvideNotifier,
		ProvideStats,
		ProvideHub,
		ProvideApplication,
		ProvideServer,
	))
	return nil, nil
}
