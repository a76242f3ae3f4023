package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"livesession/internal/core/ports"
	"livesession/internal/core/services"
	httphandlers "livesession/internal/handlers/http"
	"livesession/internal/infrastructure/middleware"
	"livesession/internal/infrastructure/monitoring"
	"livesession/internal/infrastructure/repositories"
	relaysignal "livesession/internal/infrastructure/signal"
	"livesession/pkg/config"
	"livesession/pkg/logger"
	"livesession/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	log.Infow("starting livesession relay",
		"server_address", cfg.Server.Address,
		"relay_address", cfg.Relay.Address,
	)

	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "livesession-relay",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: os.Getenv("LIVESESSION_ENV"),
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	sessionRepo, closeRepo, err := repositories.NewSessionRepository(cfg, log)
	if err != nil {
		log.Fatalw("failed to initialize session repository", "error", err)
	}
	defer closeRepo()

	sessionService := services.NewSessionService(sessionRepo)
	membershipService := services.NewMembershipService(sessionRepo, log)
	authService := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.JoinTokenTTL)

	var metrics *monitoring.PrometheusCollector
	var metricsServer *http.Server
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector()
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
			Handler: mux,
		}
		go func() {
			log.Infow("metrics server listening", "port", cfg.Monitoring.PrometheusPort)
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Errorw("metrics server failed", "error", err)
			}
		}()
	}

	relayOpts := relaysignal.DefaultOptions()
	relayOpts.PingInterval = cfg.Relay.PingInterval
	relayOpts.PongTimeout = cfg.Relay.PongTimeout
	relayOpts.WriteTimeout = cfg.Relay.WriteTimeout
	relayOpts.SendBuffer = cfg.Relay.SendBuffer
	if cfg.RateLimiting.Enabled {
		relayOpts.MessagesPerSecond = cfg.RateLimiting.WebSocket.MessagesPerSecond
		relayOpts.MessageBurst = cfg.RateLimiting.WebSocket.Burst
		relayOpts.MaxMessageSize = cfg.RateLimiting.WebSocket.MaxMessageSizeBytes
	}

	relayServer := relaysignal.NewRelayServer(
		membershipService, sessionService, authService, metrics, relayOpts, log,
	)

	relayMux := http.NewServeMux()
	relayMux.HandleFunc("/ws", relayServer.HandleWebSocket)
	relayMux.HandleFunc("/health", relayServer.HealthCheck)
	relayHTTPServer := &http.Server{
		Addr:    cfg.Relay.Address,
		Handler: relayMux,
	}
	go func() {
		log.Infow("relay listening", "address", cfg.Relay.Address)
		if err := relayHTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("relay server failed", "error", err)
		}
	}()

	apiServer := buildAPIServer(cfg, sessionService, authService, relayServer, log)
	go func() {
		log.Infow("session api listening", "address", cfg.Server.Address)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("api server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infow("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := apiServer.Shutdown(ctx); err != nil {
		log.Errorw("api server shutdown failed", "error", err)
	}
	if err := relayHTTPServer.Shutdown(ctx); err != nil {
		log.Errorw("relay server shutdown failed", "error", err)
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Errorw("metrics server shutdown failed", "error", err)
		}
	}
	if err := tracerProvider.Shutdown(ctx); err != nil {
		log.Errorw("tracer shutdown failed", "error", err)
	}

	log.Infow("shutdown complete")
}

func buildAPIServer(
	cfg *config.Config,
	sessionService ports.SessionService,
	authService services.AuthService,
	relayServer *relaysignal.RelayServer,
	log *zap.SugaredLogger,
) *http.Server {
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Tracing.Enabled {
		router.Use(middleware.TracingMiddleware())
	}
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	handler := httphandlers.NewSessionHandler(sessionService, authService, relayServer, log)
	handler.SetupRoutes(router)

	return &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
}
