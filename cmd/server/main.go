package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/tourism-reservation/internal/cache"
	"github.com/iliyamo/tourism-reservation/internal/config"
	"github.com/iliyamo/tourism-reservation/internal/database"
	"github.com/iliyamo/tourism-reservation/internal/handler"
	"github.com/iliyamo/tourism-reservation/internal/logger"
	"github.com/iliyamo/tourism-reservation/internal/middleware"
	"github.com/iliyamo/tourism-reservation/internal/notify"
	"github.com/iliyamo/tourism-reservation/internal/queue"
	"github.com/iliyamo/tourism-reservation/internal/repository"
	"github.com/iliyamo/tourism-reservation/internal/router"
	"github.com/iliyamo/tourism-reservation/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		zl.Fatal("database open failed", zap.Error(err))
	}
	defer db.Close()
	if cfg.DBAutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			zl.Fatal("database migrate failed", zap.Error(err))
		}
	}

	// Redis is optional: without it caching and rate limiting are off and
	// only the local lock backend is available.
	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		zl.Warn("redis unavailable, cache and rate limiting disabled", zap.String("addr", cfg.Redis.Addr))
	} else {
		defer rdb.Close()
	}

	locker, err := newLocker(cfg, rdb)
	if err != nil {
		zl.Fatal("lock backend", zap.Error(err))
	}

	var publisher *queue.Publisher
	if cfg.NotifyTransport == config.TransportQueue {
		publisher = queue.NewPublisher(cfg.RabbitURL, cfg.EmailQueue, zl)
		defer publisher.Close()
	}
	gateway := newGateway(cfg, publisher, zl)

	// Availability always reads capacity from MySQL; the cache serves
	// existence checks and email titles.
	entityRepo := repository.NewEntityRepo(db)
	svc := service.NewReservationService(service.ReservationServiceConfig{
		Store:         repository.NewReservationRepo(db),
		Entities:      repository.NewCachedEntities(entityRepo, rdb, cfg.EntityCacheTTL),
		LiveEntities:  entityRepo,
		Users:         repository.NewUserRepo(db),
		Gateway:       gateway,
		Locker:        locker,
		Pricer:        service.NewPriceCalculator(cfg.DefaultEntranceFee),
		NotifyTimeout: cfg.NotifyTimeout,
		Logger:        zl,
	})

	// The queue transport needs a worker turning queued jobs into SMTP
	// sends.
	if publisher != nil {
		smtp := notify.NewSMTPMailer(notify.SMTPConfig(cfg.SMTP))
		worker := queue.NewWorker(cfg.RabbitURL, cfg.EmailQueue, notify.DeliverJob(smtp), zl)
		go func() {
			if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("email worker stopped", zap.Error(err))
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = handler.NewRequestValidator()
	e.Use(echomw.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLogger(zl))

	gen := cache.NewGeneration(rdb, cfg.Cache.Prefix+":generation")
	mw := router.ReservationMiddleware{
		Cache:      middleware.NewRedisCache(cfg.Cache, rdb, gen),
		Invalidate: middleware.InvalidateOnWrite(gen),
		CreateRate: middleware.NewTokenBucket(cfg.RateLimit, rdb, zl),
	}
	if cfg.JWTSecret != "" {
		mw.Auth = middleware.JWTAuth(cfg.JWTSecret)
	}
	router.RegisterRoutes(e)
	router.RegisterReservations(e, handler.NewReservationHandler(svc, zl), mw)

	addr := ":" + cfg.Port
	go func() {
		zl.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newLocker(cfg config.Config, rdb *redis.Client) (service.Locker, error) {
	if cfg.LockBackend != config.LockRedis {
		return service.NewLocalLocker(), nil
	}
	if rdb == nil {
		return nil, errors.New("LOCK_BACKEND=redis but redis is unreachable")
	}
	return cache.NewRedisLocker(rdb, cfg.LockTTL), nil
}

func newGateway(cfg config.Config, pub *queue.Publisher, zl *zap.Logger) notify.Gateway {
	switch cfg.NotifyTransport {
	case config.TransportQueue:
		return notify.NewQueueGateway(pub)
	case config.TransportSMTP:
		return notify.NewSMTPMailer(notify.SMTPConfig(cfg.SMTP))
	default:
		return notify.NewLogGateway(zl)
	}
}
