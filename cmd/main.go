package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"laundry-engine/internal/cache"
	"laundry-engine/internal/config"
	"laundry-engine/internal/db"
	"laundry-engine/internal/email"
	"laundry-engine/internal/engine"
	"laundry-engine/internal/kafka"
	"laundry-engine/internal/logger"
	"laundry-engine/internal/repository"
	"laundry-engine/internal/repository/postgresql"
	"laundry-engine/internal/scheduler"
	"laundry-engine/internal/server"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log := logger.New()
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	database, err := db.NewDb(ctx, cfg.Dsn())
	if err != nil {
		log.Fatal("database init failed", zap.Error(err))
	}
	defer database.GetPool().Close()

	orderRepo := postgresql.NewOrderRepo(database)
	counterRepo := postgresql.NewCounterRepo(database)
	outboxRepo := postgresql.NewOutboxTaskRepo(database)
	userRepo := postgresql.NewUserRepo(database)

	if cfg.AdminPassword != "" {
		if err := userRepo.EnsureUser(ctx, cfg.AdminUsername, cfg.AdminPassword); err != nil {
			log.Fatal("failed to seed admin user", zap.Error(err))
		}
	}

	durations := map[repository.Status]time.Duration{
		repository.StatusWashing: cfg.WashingDuration,
		repository.StatusDrying:  cfg.DryingDuration,
		repository.StatusFolding: cfg.FoldingDuration,
	}
	machine := engine.NewStateMachine(map[repository.Kind]*engine.StageConfig{
		repository.KindOrder:   engine.OrderStages(durations),
		repository.KindBooking: engine.BookingStages(durations),
	})
	timers := engine.NewTimerCoordinator(machine, nil)
	ledger := engine.NewCapacityLedger(database, counterRepo, cfg.DefaultDailyQuota)
	eng := engine.New(database, orderRepo, ledger, machine, timers, log)

	eng.RegisterHook(kafka.NewNotificationHook(outboxRepo, cfg.KafkaTopic))

	if cfg.SMTPHost != "" {
		eng.RegisterHook(email.NewMailer(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, log))
	}

	var capacityReader cache.CapacityReader = eng
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		capacityReader = cache.NewCapacityCache(eng, redisClient, cfg.CacheTTL, log)
		eng.RegisterHook(cache.NewInvalidationHook(redisClient))
	}

	producer := kafka.NewConsoleProducer()
	if len(cfg.KafkaBrokers) > 0 {
		producer = kafka.NewKafkaProducer(cfg.KafkaBrokers)
	}
	publisher := kafka.NewPublisher(database, outboxRepo, producer, kafka.PublisherConfig{
		PollInterval: cfg.OutboxPollInterval,
		BatchSize:    cfg.OutboxBatchSize,
		MaxAttempts:  cfg.OutboxMaxAttempts,
	}, log)

	poller := scheduler.NewAutoAdvancePoller(eng, log)
	if err := poller.Start(); err != nil {
		log.Fatal("failed to start auto-advance poller", zap.Error(err))
	}

	srv := server.New(eng, capacityReader, userRepo, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(cfg.HTTPPort)
	})
	g.Go(func() error {
		publisher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		poller.Stop()
		publisher.Shutdown()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal("service exited with error", zap.Error(err))
	}
	log.Info("service stopped")
}
