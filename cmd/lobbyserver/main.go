// Package main provides the lobby server binary that serves rush sessions
// over gRPC and WebSocket.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/rushlobby/internal/catalog"
	"github.com/cory-johannsen/rushlobby/internal/config"
	"github.com/cory-johannsen/rushlobby/internal/gateway"
	"github.com/cory-johannsen/rushlobby/internal/gateway/grpcgw"
	"github.com/cory-johannsen/rushlobby/internal/gateway/wsgw"
	"github.com/cory-johannsen/rushlobby/internal/lobby"
	"github.com/cory-johannsen/rushlobby/internal/lobby/handler"
	"github.com/cory-johannsen/rushlobby/internal/observability"
	"github.com/cory-johannsen/rushlobby/internal/scripting"
	"github.com/cory-johannsen/rushlobby/internal/server"
	"github.com/cory-johannsen/rushlobby/internal/storage/postgres"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, cfg.Server.Name)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	settings, err := catalog.Load(cfg.Catalog.SettingsFile)
	if err != nil {
		logger.Fatal("loading settings", zap.Error(err))
	}
	logger.Info("settings loaded",
		zap.String("file", cfg.Catalog.SettingsFile),
		zap.Int("vehicles", len(settings.Vehicles)),
		zap.Int("items", len(settings.Items)),
	)

	var reducer lobby.Reducer
	if cfg.Catalog.ReducerScript != "" {
		r, err := scripting.LoadReducer(cfg.Catalog.ReducerScript, cfg.Catalog.InstructionLimit, logger.Named("reducer"))
		if err != nil {
			logger.Fatal("loading reducer script", zap.Error(err))
		}
		defer r.Close()
		reducer = r
		logger.Info("reducer script loaded", zap.String("file", cfg.Catalog.ReducerScript))
	}

	lifecycle := server.NewLifecycle(logger, cfg.Server.ShutdownTimeout)

	var observer handler.LaunchObserver
	if cfg.Database.Enabled {
		dbStart := time.Now()
		pool, err := postgres.NewPool(ctx, cfg.Database)
		if err != nil {
			logger.Fatal("connecting to database", zap.Error(err))
		}
		logger.Info("database connected",
			zap.String("host", cfg.Database.Host),
			zap.Duration("elapsed", time.Since(dbStart)),
		)
		recorder := postgres.NewRecorder(postgres.NewLaunchRepository(pool.DB()), cfg.Database.ArchiveQueue, logger.Named("archive"))
		observer = recorder

		stopHealth := make(chan struct{})
		lifecycle.Add("postgres", &server.FuncService{
			StartFn: func() error {
				ticker := time.NewTicker(30 * time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-stopHealth:
						return nil
					case <-ticker.C:
						if err := pool.Health(ctx, 5*time.Second); err != nil {
							logger.Warn("database health check failed", zap.Error(err))
						}
					}
				}
			},
			StopFn: func() {
				close(stopHealth)
				pool.Close()
			},
		})
		lifecycle.Add("archive", recorder)
	}

	lb := gateway.NewLobby(
		lobby.NewRegistry(lobby.UUIDGenerator()),
		settings, reducer, observer,
		cfg.Hub.BufferSize, logger,
	)

	lifecycle.Add("grpc", grpcgw.NewServer(cfg.GRPC, lb))
	lifecycle.Add("websocket", wsgw.NewServer(cfg.WebSocket, lb))

	logger.Info("lobby server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("grpc_addr", cfg.GRPC.Addr()),
		zap.String("ws_addr", cfg.WebSocket.Addr()),
		zap.Bool("archive", cfg.Database.Enabled),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
