package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/prajyot7070/MetaSpace/internal/adapters/directory"
	router "github.com/prajyot7070/MetaSpace/internal/adapters/http"
	"github.com/prajyot7070/MetaSpace/internal/adapters/relay"
	"github.com/prajyot7070/MetaSpace/internal/adapters/store"
	"github.com/prajyot7070/MetaSpace/internal/app"
	"github.com/prajyot7070/MetaSpace/internal/config"
	"github.com/prajyot7070/MetaSpace/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	var groupStore core.GroupStore
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis unreachable")
		}
		groupStore = store.NewRedis(rdb, cfg.Group.TTL)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("group store: redis")
	} else {
		groupStore = store.NewMemory(cfg.Group.TTL)
		log.Info().Msg("group store: in-memory")
	}

	relayClient, err := relay.Dial(ctx, cfg.Relay.URL, cfg.Relay.Timeout)
	if err != nil {
		log.Fatal().Err(err).Str("url", cfg.Relay.URL).Msg("media relay unreachable")
	}
	defer relayClient.Close()

	var dir core.SpaceDirectory
	if cfg.Directory.BaseURL != "" {
		dir = directory.NewHTTP(cfg.Directory.BaseURL, cfg.Directory.Timeout)
	} else {
		dir = directory.AllowAll()
		log.Warn().Msg("no space directory configured, accepting every space id")
	}

	registry := app.NewRegistry()
	orch := &app.Orchestrator{
		Registry:  registry,
		Spaces:    app.NewSpaceManager(),
		Proximity: app.NewProximity(cfg.Proximity.Partitions, cfg.Proximity.Threshold),
		Groups:    app.NewGroups(groupStore, registry),
		Calls:     app.NewCalls(relayClient, groupStore, registry),
		Directory: dir,
	}

	r := router.SetupRouter(ctx, cfg, orch)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("MetaSpace signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
