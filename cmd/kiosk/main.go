package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/LeventeLantos/kiosk-messaging/internal/api"
	"github.com/LeventeLantos/kiosk-messaging/internal/cache"
	"github.com/LeventeLantos/kiosk-messaging/internal/campaign"
	"github.com/LeventeLantos/kiosk-messaging/internal/config"
	"github.com/LeventeLantos/kiosk-messaging/internal/gateway"
	"github.com/LeventeLantos/kiosk-messaging/internal/logger"
	"github.com/LeventeLantos/kiosk-messaging/internal/loyalty"
	"github.com/LeventeLantos/kiosk-messaging/internal/metrics"
	"github.com/LeventeLantos/kiosk-messaging/internal/repo"
	"github.com/LeventeLantos/kiosk-messaging/internal/scheduler"
	"github.com/LeventeLantos/kiosk-messaging/internal/service"
	"github.com/LeventeLantos/kiosk-messaging/internal/store"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const pollLockKey = "sms:poll-lock"

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		logger.Log.WithError(err).Fatal("load config")
	}
	logger.Init(cfg.Log)
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Log.WithError(err).Fatal("kiosk messaging stopped")
	}
	logger.Log.Info("kiosk messaging shut down gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	log := logger.Component("main")

	db, closeDB, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer closeDB()

	stores := repo.NewStores(db)
	customers := repo.NewCustomers(db)
	visits := repo.NewVisits(db)
	messages := repo.NewMessages(db)

	gw := gateway.FromConfig(cfg.Gateway)
	if gw == nil {
		log.Warn("no SMS gateway configured; scheduled messages stay pending")
	}

	proc := service.NewProcessor(messages, gw).WithRetry(service.RetryPolicy{
		MaxAttempts: cfg.Scheduler.MaxAttempts,
		Backoff:     cfg.Scheduler.RetryBackoff,
	})

	var sent cache.MessageCache
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}

		rc := cache.NewRedisCache(rdb, cfg.Redis.TTL)
		sent = rc
		proc = proc.
			WithLocker(cache.NewRedisLock(rdb, pollLockKey, cfg.Redis.LockTTL)).
			WithHooks(rc.StoreSent, nil)
		log.WithField("addr", cfg.Redis.Address).Info("redis enabled")
	}

	sched, err := scheduler.New(cfg.Scheduler.Interval, func(ctx context.Context) error {
		if rep := proc.RunOnce(ctx, cfg.Scheduler.BatchSize); rep.Error != "" {
			return errors.New(rep.Error)
		}
		return nil
	})
	if err != nil {
		return err
	}

	campaigns := campaign.NewService(customers, stores, messages, cfg.Campaign.BulkMaxLength)
	loyaltySvc := loyalty.NewService(loyalty.Deps{
		Stores:    stores,
		Customers: customers,
		Visits:    visits,
		Queue:     messages,
		Gateway:   gw,
	}, cfg.Campaign.ReviewFallback)

	crons := scheduler.NewCron(cfg.Campaign.JobTimeout, time.Local)
	if err := crons.Add("birthdays", cfg.Campaign.BirthdayCron, func(ctx context.Context) error {
		_, err := campaigns.Birthdays(ctx)
		return err
	}); err != nil {
		return err
	}

	h := api.NewHandler(api.Deps{
		Scheduler:   sched,
		Cron:        crons,
		Processor:   proc,
		Messages:    messages,
		Sent:        sent,
		Loyalty:     loyaltySvc,
		Campaigns:   campaigns,
		Stores:      stores,
		StoreDriver: cfg.Store.Driver,
		RunLimit:    cfg.Scheduler.ImmediateBatch,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.Router(h, loggingMiddleware),
		ReadHeaderTimeout: 5 * time.Second,
	}

	log.WithFields(logrus.Fields{
		"addr":     cfg.Server.Address,
		"store":    cfg.Store.Driver,
		"interval": cfg.Scheduler.Interval.String(),
		"batch":    cfg.Scheduler.BatchSize,
		"redis":    cfg.Redis.Enabled,
		"gateway":  gw != nil,
	}).Info("kiosk messaging starting")

	sched.Start()
	crons.Start()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		sched.Stop()
		crons.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.RecordStore, func(), error) {
	if cfg.Driver == config.DriverMemory {
		logger.Component("main").Warn("using in-memory store; data is lost on restart")
		return store.NewMemory(), func() {}, nil
	}

	pool, err := store.NewPool(ctx, cfg.PostgresURL)
	if err != nil {
		return nil, nil, err
	}
	if cfg.AutoMigrate {
		if err := store.Migrate(ctx, pool); err != nil {
			pool.Close()
			return nil, nil, err
		}
		logger.Component("main").Info("database schema applied")
	}
	return store.NewPostgres(pool), pool.Close, nil
}

// loggingMiddleware logs one line per request with the chi request id.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		entry := logger.Log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      status,
			"bytes":       ww.BytesWritten(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  chimw.GetReqID(r.Context()),
		})
		if status >= http.StatusInternalServerError {
			entry.Warn("http request")
			return
		}
		entry.Debug("http request")
	})
}
