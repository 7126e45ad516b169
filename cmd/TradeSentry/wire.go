//go:build wireinject
// +build wireinject

// The build tag makes sure the stub is not built in the final build.

package main

import (
	"TradeSentry/internal/agent"
	"TradeSentry/internal/biz"
	"TradeSentry/internal/conf"
	"TradeSentry/internal/data"
	"TradeSentry/internal/exchange"
	"TradeSentry/internal/server"
	"TradeSentry/internal/service"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// wireApp init kratos application.
func wireApp(*conf.Bootstrap, *conf.Server, *conf.Data, *conf.Webhook, log.Logger) (*kratos.App, func(), error) {
	panic(wire.Build(
		data.ProviderSet,
		biz.ProviderSet,
		exchange.ProviderSet,
		agent.ProviderSet,
		service.ProviderSet,
		server.ProviderSet,
		NewTradingCron,
		newApp,
	))
}
