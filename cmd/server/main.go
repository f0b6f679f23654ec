package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/lucasmnrd/requestline/config"
	"github.com/lucasmnrd/requestline/internal/analytics"
	"github.com/lucasmnrd/requestline/internal/broadcast"
	httpDelivery "github.com/lucasmnrd/requestline/internal/delivery/http"
	"github.com/lucasmnrd/requestline/internal/delivery/ws"
	repo "github.com/lucasmnrd/requestline/internal/repository/postgres"
	"github.com/lucasmnrd/requestline/internal/service"
	"github.com/lucasmnrd/requestline/internal/spotify"
	pkgLog "github.com/lucasmnrd/requestline/pkg/logger"
	pkgRedis "github.com/lucasmnrd/requestline/pkg/redis"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	l := pkgLog.InitializeZapLogger(pkgLog.ZapConfig{
		Level:    cfg.Log.Level,
		Mode:     cfg.Log.Mode,
		Encoding: cfg.Log.Encoding,
	})

	db, err := repo.Connect(cfg.Postgres)
	if err != nil {
		l.Fatalf(ctx, "Failed to connect to Postgres: %v", err)
	}

	redisCli, err := pkgRedis.NewClient(cfg.Redis)
	if err != nil {
		l.Fatalf(ctx, "Failed to connect to Redis: %v", err)
	}
	defer redisCli.Close()

	// Repositories
	eventRepo := repo.NewEventRepository(db, l)
	requestRepo := repo.NewRequestRepository(db, l)
	voteRepo := repo.NewVoteRepository(db, l)
	rlRepo := repo.NewRateLimitRepository(db, l)
	djRepo := repo.NewDJRepository(db, l)

	// Analytics producer (disabled unless configured)
	var prod analytics.Producer = analytics.NopProducer{}
	if cfg.Kafka.Enabled {
		prod, err = analytics.NewProducer(cfg.Kafka, l)
		if err != nil {
			l.Fatalf(ctx, "Failed to initialize Kafka producer: %v", err)
		}
	}
	defer prod.Close()

	// Broadcast bus
	gateway := broadcast.NewRedisGateway(redisCli, l)
	subscriber := broadcast.NewSubscriber(redisCli, l)

	// Services
	locks := service.NewEventLocks()
	rlSvc := service.NewRateLimitService(rlRepo, l)
	qSvc := service.NewQueueService(requestRepo, l)
	admissionSvc := service.NewAdmissionService(eventRepo, requestRepo, rlSvc, qSvc, gateway, prod, locks, l)
	voteSvc := service.NewVoteService(voteRepo, requestRepo, eventRepo, gateway, locks, l)
	eventSvc := service.NewEventService(eventRepo, requestRepo, qSvc, l)
	djSvc := service.NewDJService(djRepo, eventRepo, cfg.JWT, l)
	spotifyCli := spotify.NewClient(cfg.Spotify, l)

	// Websocket hub fed by the broadcast subscriber
	hub := ws.NewHub(subscriber, l)
	wsHandler := ws.NewHandler(hub, admissionSvc, voteSvc, l)

	// Rate limit counter janitor
	janitor := service.NewJanitor(rlSvc, cfg.Janitor, l)
	janitor.Start(ctx)
	defer janitor.Stop()

	// HTTP server
	mode := gin.ReleaseMode
	if cfg.Env == "development" {
		mode = gin.DebugMode
	}
	h := httpDelivery.NewHandler(eventSvc, admissionSvc, djSvc, spotifyCli, cfg.Server.BaseURL, l)
	router := httpDelivery.NewRouter(h, wsHandler, djSvc, mode)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := hub.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("hub stopped: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		l.Infof(gctx, "HTTP server is listening on port: %d", cfg.Server.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server stopped: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-quit:
			l.Info(gctx, "Server shutting down...")
		case <-gctx.Done():
		}
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		l.Errorf(ctx, "Server error: %v", err)
	}

	l.Info(ctx, "Server exited")
}
