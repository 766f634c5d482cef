package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/taxverify/internal/clock"
	"github.com/smallbiznis/taxverify/internal/config"
	"github.com/smallbiznis/taxverify/internal/migration"
	"github.com/smallbiznis/taxverify/internal/observability"
	"github.com/smallbiznis/taxverify/internal/server"
	"github.com/smallbiznis/taxverify/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface plus the domain services and background workers it wires
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
