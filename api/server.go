package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Aidin1998/pincex_futures/internal/config"
	"github.com/Aidin1998/pincex_futures/internal/marketdata"
	"github.com/Aidin1998/pincex_futures/internal/trading/gateway"
	"github.com/Aidin1998/pincex_futures/internal/trading/registry"
	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

// OwnerHeader carries the caller identity for order operations
const OwnerHeader = "X-Owner-ID"

// Dependencies are the services the API serves. Feed, Tickers and Health
// are optional.
type Dependencies struct {
	Gateway  *gateway.Gateway
	Registry *registry.Registry
	Feed     *marketdata.Hub
	Tickers  *marketdata.TickerCache
	Health   func(ctx context.Context) error
}

// Server represents the API server
type Server struct {
	router     *gin.Engine
	httpServer *http.Server
	deps       Dependencies
	cfg        config.ServerConfig
	logger     *zap.Logger
}

// NewServer creates a new API server
func NewServer(cfg config.ServerConfig, deps Dependencies, logger *zap.Logger) *Server {
	s := &Server{
		deps:   deps,
		cfg:    cfg,
		logger: logger.Named("api"),
	}

	router := gin.New()
	router.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	router.Use(ginzap.RecoveryWithZap(logger, true))
	router.Use(otelgin.Middleware("pincex-futures"))
	router.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	s.router = router
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", OwnerHeader},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
	}
	if len(origins) == 0 {
		c.AllowAllOrigins = true
		return c
	}
	c.AllowOrigins = origins
	c.AllowCredentials = true
	return c
}

// Router returns the internal Gin engine for testing purposes
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info("Starting API server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.healthCheck)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.router.Group("/api/v1")
	{
		orders := v1.Group("/orders")
		{
			orders.POST("", s.submitOrder)
			orders.GET("", s.listOrders)
			orders.GET("/:id", s.getOrder)
			orders.DELETE("/:id", s.cancelOrder)
		}

		v1.GET("/trades", s.listTrades)

		instruments := v1.Group("/instruments")
		{
			instruments.POST("", s.createInstrument)
			instruments.GET("", s.listInstruments)
			instruments.GET("/:id", s.getInstrument)
			instruments.GET("/:id/depth", s.getDepth)
			instruments.GET("/:id/ticker", s.getTicker)
		}

		if s.deps.Feed != nil {
			v1.GET("/ws/trades", func(c *gin.Context) {
				s.deps.Feed.ServeWS(c.Writer, c.Request)
			})
		}
	}
}

// healthCheck handles the health check endpoint
func (s *Server) healthCheck(c *gin.Context) {
	if s.deps.Health != nil {
		if err := s.deps.Health(c.Request.Context()); err != nil {
			s.logger.Warn("Health check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unavailable",
				"time":   time.Now().UTC(),
			})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	})
}
