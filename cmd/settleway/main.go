package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/settleway/internal/clock"
	"github.com/smallbiznis/settleway/internal/config"
	"github.com/smallbiznis/settleway/internal/migration"
	"github.com/smallbiznis/settleway/internal/observability"
	"github.com/smallbiznis/settleway/internal/scheduler"
	"github.com/smallbiznis/settleway/internal/server"
	"github.com/smallbiznis/settleway/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(registerSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface plus every domain module it serves
		server.Module,

		// Background sweep for orders whose settlements lag behind
		scheduler.Module,
	)
	app.Run()
}

func registerSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
