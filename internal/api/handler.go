package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"strategy-engine/internal/events"
	"strategy-engine/internal/market"
	"strategy-engine/internal/position"
	"strategy-engine/pkg/db"
)

// Server wires HTTP endpoints around the engine's stores.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	DB        *db.Database
	Positions *position.Manager
	Candles   market.CandleSource
	Meta      SystemMeta
	log       zerolog.Logger
	startedAt time.Time
}

// SystemMeta describes runtime status exposed to clients.
type SystemMeta struct {
	DryRun      bool
	Venue       string
	Symbols     []string
	UseMockFeed bool
	Version     string
}

func NewServer(bus *events.Bus, database *db.Database, positions *position.Manager, candles market.CandleSource, meta SystemMeta, log zerolog.Logger) *Server {
	r := gin.New()

	apiLog := log.With().Str("component", "api").Logger()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(apiLog))
	r.Use(RateLimitMiddleware(apiLog))
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Bus:       bus,
		DB:        database,
		Positions: positions,
		Candles:   candles,
		Meta:      meta,
		log:       apiLog,
		startedAt: time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	s.Router.GET("/ws/events", s.streamEvents)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)

		scoped := api.Group("")
		scoped.Use(UserScopeMiddleware())
		{
			scoped.GET("/strategies", s.listStrategies)
			scoped.POST("/strategies", s.createStrategy)
			scoped.GET("/strategies/:id", s.getStrategy)
			scoped.PUT("/strategies/:id", s.updateStrategy)
			scoped.DELETE("/strategies/:id", s.deleteStrategy)
			scoped.POST("/strategies/:id/clone", s.cloneStrategy)
			scoped.POST("/strategies/:id/activate", s.activateStrategy)
			scoped.POST("/strategies/:id/deactivate", s.deactivateStrategy)
			scoped.POST("/strategies/:id/backtest", s.runBacktest)
			scoped.GET("/strategies/:id/trades", s.listTrades)

			scoped.GET("/signals", s.listSignals)
			scoped.GET("/positions", s.listPositions)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getSystemStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"dry_run":       s.Meta.DryRun,
		"venue":         s.Meta.Venue,
		"symbols":       s.Meta.Symbols,
		"use_mock_feed": s.Meta.UseMockFeed,
		"version":       s.Meta.Version,
		"uptime":        time.Since(s.startedAt).String(),
	})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}
