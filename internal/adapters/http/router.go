package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/prajyot7070/MetaSpace/internal/adapters/signal"
	"github.com/prajyot7070/MetaSpace/internal/app"
	"github.com/prajyot7070/MetaSpace/internal/config"
)

func SetupRouter(ctx context.Context, cfg *config.Config, orch *app.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	ctl := signal.NewController(orch, cfg.Proximity.Spawn, cfg.WS.ReadLimit, cfg.WS.PingPeriod)

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.GET("/ws", func(c *gin.Context) {
		ctl.HandleSignal(ctx, c)
	})
	api.GET("/spaces", listSpaces(orch))
	api.GET("/groups", listGroups(orch))

	log.Info().Str("module", "adapters.http").Msg("router setup")
	return r
}
