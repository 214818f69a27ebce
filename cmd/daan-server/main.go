package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/vishesh2305/DAAN/internal/auth"
	"github.com/vishesh2305/DAAN/internal/bootstrap"
	"github.com/vishesh2305/DAAN/internal/handler"
	"github.com/vishesh2305/DAAN/internal/model"
	"github.com/vishesh2305/DAAN/internal/server"
	"github.com/vishesh2305/DAAN/internal/service/accumulator"
	"github.com/vishesh2305/DAAN/internal/service/consumer"
	"github.com/vishesh2305/DAAN/internal/service/ledger"
	"github.com/vishesh2305/DAAN/internal/service/lifecycle"
	"github.com/vishesh2305/DAAN/internal/service/mq"
	"github.com/vishesh2305/DAAN/internal/service/observer"
	"github.com/vishesh2305/DAAN/internal/service/reconciler"
	"github.com/vishesh2305/DAAN/internal/service/relay"
	"github.com/vishesh2305/DAAN/internal/service/screening"
	"github.com/vishesh2305/DAAN/pkg/config"
	"github.com/vishesh2305/DAAN/pkg/database"
	"github.com/vishesh2305/DAAN/pkg/logger"
	"github.com/vishesh2305/DAAN/pkg/utils/lock"
	"github.com/vishesh2305/DAAN/pkg/validator"
)

func main() {
	// 0. Config
	config.Init()
	validator.Init()

	// 1. Logger
	logger.Init(config.Global.App.Env)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Database
	db, err := bootstrap.OpenDB(config.Global.DB)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	if config.Global.DB.Driver == "sqlite" {
		// single-node deployments have no migration step
		if err := db.AutoMigrate(model.AllModels()...); err != nil {
			logger.Fatal("auto migrate failed", zap.Error(err))
		}
	}

	// 3. Redis
	rdb, err := database.ConnectRedis(config.Global.Redis.Addr, config.Global.Redis.Password, config.Global.Redis.DB)
	if err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}

	// 4. Store (gorm + L1/L2 cache)
	st := bootstrap.OpenStore(db, rdb)

	// 5. Ledger
	gw, closeLedger, err := bootstrap.OpenLedger(ctx, config.Global.Ledger)
	if err != nil {
		if config.Global.App.Env == "production" {
			logger.Fatal("ledger unavailable", zap.Error(err))
		}
		logger.Warn("ledger unavailable, entering simulation mode", zap.Error(err))
		gw, closeLedger = ledger.NewMemoryLedger(nil), func() {}
	}
	defer closeLedger()

	// 6. Lifecycle engine
	locks := lock.NewKeyedMutex()
	acc := accumulator.New(st, gw, locks)
	orch := lifecycle.New(
		screening.NewClient(config.Global.Screening.URL, config.Global.Screening.Timeout),
		gw, st, acc,
		lifecycle.Options{
			CreateAttempts:      config.Global.Lifecycle.CreateAttempts,
			LedgerBudget:        config.Global.Ledger.ConfirmTimeout * time.Duration(max(config.Global.Lifecycle.CreateAttempts, 1)+1),
			PendingAbandonAfter: config.Global.Lifecycle.PendingAbandonAfter,
			Locks:               locks,
			ClaimLock:           lock.NewRedisLock(rdb),
		})

	// 7. Message queue
	var producer mq.Producer
	var cons mq.Consumer
	if config.Global.Redis.MQType == "kafka" {
		logger.Info("using Kafka as message queue")
		producer = mq.NewKafkaProducer(config.Global.Kafka.Brokers)
		cons = mq.NewKafkaConsumer(config.Global.Kafka.Brokers, "daan_pledge_ingest")
	} else {
		logger.Info("using Redis Streams as message queue")
		producer = mq.NewRedisProducer(rdb)
		cons = mq.NewRedisConsumer(rdb, "daan_pledge_ingest", "ingest-0")
	}

	// 8. Outbox relay
	go relay.NewRelayService(db, producer, config.Global.Jobs.RelayInterval).Start(ctx)

	// 9. Pledge ingestion from indexers
	go func() {
		if err := consumer.NewPledgeConsumer(cons, acc).Start(ctx); err != nil && ctx.Err() == nil {
			logger.Error("pledge consumer stopped", zap.Error(err))
		}
	}()

	// 10. Pledge observer
	obs := observer.NewPledgeObserver(st, acc, config.Global.Jobs.ObserverInterval, 4)
	obs.Start(ctx)

	// 11. Reconciliation job
	cronService := reconciler.NewCronService(config.Global.Jobs.ReconcileSpec, lock.NewRedisLock(rdb), orch, acc, st)
	if err := cronService.Start(); err != nil {
		logger.Fatal("cron start failed", zap.Error(err))
	}

	// 12. HTTP + gRPC health
	sessions, err := auth.NewVerifier(config.Global.Session.HmacSecret, config.Global.Session.Issuer)
	if err != nil {
		logger.Fatal("session verifier", zap.Error(err))
	}
	r := server.NewHTTPRouter(handler.NewCampaignHandler(orch), sessions)

	app, err := server.New(server.Config{
		HttpPort: config.Global.App.HttpPort,
		GrpcPort: config.Global.App.GrpcPort,
	}, r)
	if err != nil {
		logger.Fatal("server init failed", zap.Error(err))
	}

	// blocks until SIGINT/SIGTERM
	if err := app.Run(ctx); err != nil {
		logger.Error("server error", zap.Error(err))
	}
	stop()
	obs.Wait()
	cronService.Stop()

	// 13. Cleanup
	_ = cons.Close()
	_ = producer.Close()
	logger.Info("closing database connections")
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	rdb.Close()
	logger.Info("daan-server exited")
}
