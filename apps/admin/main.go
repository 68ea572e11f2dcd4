package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/feeledger/internal/apikey"
	apikeydomain "github.com/smallbiznis/feeledger/internal/apikey/domain"
	"github.com/smallbiznis/feeledger/internal/audit"
	"github.com/smallbiznis/feeledger/internal/clock"
	"github.com/smallbiznis/feeledger/internal/config"
	"github.com/smallbiznis/feeledger/internal/migration"
	"github.com/smallbiznis/feeledger/internal/observability"
	"github.com/smallbiznis/feeledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// admin bootstraps API keys before any key exists to call the HTTP API with.
func main() {
	var (
		keys apikeydomain.Service
		log  *zap.Logger
	)
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,
		audit.Module,
		apikey.Module,
		fx.Populate(&keys, &log),
		fx.NopLogger,
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}

	cli := commandLine{keys: keys, out: os.Stdout}
	runErr := cli.run(context.Background(), os.Args)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		log.Warn("shutdown failed", zap.Error(err))
	}

	if runErr != nil {
		if runErr != errHelp {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", runErr)
		}
		os.Exit(1)
	}
}

func RegisterSnowflake(cfg config.Config) *snowflake.Node {
	node, err := snowflake.NewNode(cfg.SnowflakeNode)
	if err != nil {
		panic(err)
	}
	return node
}
