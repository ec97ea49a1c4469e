package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nexus360/internal/clock"
	"github.com/smallbiznis/nexus360/internal/config"
	"github.com/smallbiznis/nexus360/internal/migration"
	"github.com/smallbiznis/nexus360/internal/observability"
	"github.com/smallbiznis/nexus360/internal/server"
	"github.com/smallbiznis/nexus360/internal/tenantlock"
	"github.com/smallbiznis/nexus360/pkg/db"
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
		tenantlock.Module,
		migration.Module,

		// HTTP surface and every review domain behind it
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
