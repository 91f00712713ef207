package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rentals/internal/cache"
	intconfig "rentals/internal/config"
	intdb "rentals/internal/db"
	"rentals/internal/events"
	router "rentals/internal/http"
	"rentals/internal/http/handlers"
	"rentals/internal/repositories"
	"rentals/internal/services"
	"rentals/internal/utils"
	"rentals/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func main() {
	env := intconfig.LoadEnv()
	if env.GinMode != "" {
		gin.SetMode(env.GinMode)
	}
	logger := utils.InitLogger(env.IsProduction(), env.LogLevel)
	defer func() { _ = logger.Sync() }()

	if env.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	db, err := intconfig.ConnectDB(env)
	if err != nil {
		logger.Fatal("database connection failed", zap.Error(err))
	}
	defer intconfig.CloseDB()

	if env.DBEnsureSchema {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := intdb.EnsureSchema(ctx, db)
		cancel()
		if err != nil {
			logger.Fatal("schema setup failed", zap.Error(err))
		}
	}

	partners := repositories.PartnerRepository{DB: db}
	directory := cache.PartnerCache{Next: partners, TTL: env.StaffCacheTTL}
	if rdb, err := cache.NewClient(env.RedisAddr, env.RedisPassword, env.RedisCacheDB); err != nil {
		logger.Warn("redis cache unavailable, partner lookups go to the database", zap.Error(err))
	} else {
		directory.Client = rdb
		defer rdb.Close()
	}

	publisher := connectPublisher(env, logger)
	defer publisher.Close()

	queueRedis := asynq.RedisClientOpt{Addr: env.RedisAddr, Password: env.RedisPassword, DB: env.RedisQueueDB}
	queueClient := asynq.NewClient(queueRedis)
	defer queueClient.Close()

	app := wire(env, db, directory, worker.Queue{Client: queueClient})

	drainer := worker.Drainer{
		Store:         repositories.OutboxRepository{DB: db},
		History:       repositories.HistoryRepository{DB: db},
		Notifications: repositories.NotificationRepository{DB: db},
		Promoter:      app.ledger,
		Publisher:     publisher,
		Owner:         workerOwner(),
		BatchSize:     env.OutboxBatchSize,
		LeaseTTL:      env.OutboxLeaseTTL,
		MaxAttempts:   env.OutboxMaxAttempts,
	}
	runner, err := worker.NewRunner(queueRedis, worker.RunnerConfig{
		Concurrency:   env.WorkerConcurrency,
		DrainInterval: env.OutboxDrainInterval,
	}, drainer)
	if err != nil {
		logger.Fatal("outbox worker setup failed", zap.Error(err))
	}
	if err := runner.Start(); err != nil {
		logger.Fatal("outbox worker start failed", zap.Error(err))
	}
	defer runner.Shutdown()

	r := router.NewRouter(env, app.handlers, db)

	srv := &http.Server{
		Addr:              env.AppAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       20 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("addr", env.AppAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
		return
	}

	logger.Info("server stopped")
}

type application struct {
	handlers handlers.Handlers
	ledger   services.LedgerService
}

// wire builds the services over the MySQL repositories.
func wire(env intconfig.Env, db *sql.DB, directory services.PartnerDirectory, kicker services.Kicker) application {
	bookings := repositories.BookingRepository{DB: db}
	vehicles := repositories.VehicleRepository{DB: db}
	issues := repositories.IssueRepository{DB: db}
	history := repositories.HistoryRepository{DB: db}
	verification := repositories.VerificationRepository{DB: db}

	recorder := services.Recorder{Outbox: repositories.OutboxRepository{DB: db}, Kicker: kicker}
	fanout := services.Fanout{Recorder: recorder, Directory: directory, OperatorChannel: env.OperatorChannel}

	vehicleSvc := services.VehicleService{Bookings: bookings, Vehicles: vehicles, Recorder: recorder, Fanout: fanout}
	ledger := services.LedgerService{
		Bookings:         bookings,
		Instructions:     repositories.InstructionRepository{DB: db},
		Transactions:     repositories.TransactionRepository{DB: db},
		Vehicles:         vehicles,
		Rates:            services.DefaultRateProvider{},
		Directory:        directory,
		Recorder:         recorder,
		Fanout:           fanout,
		AcceptanceWindow: env.PartnerAcceptanceWindow,
	}
	bookingSvc := services.BookingService{
		Bookings:     bookings,
		Issues:       issues,
		History:      history,
		Verification: verification,
		Insurance:    verification,
		Vehicles:     vehicleSvc,
		Recorder:     recorder,
		Fanout:       fanout,
	}
	issueSvc := services.IssueService{Bookings: bookings, Issues: issues, Vehicles: vehicleSvc, Recorder: recorder, Fanout: fanout}
	reports := services.ReportService{Bookings: bookings, History: history, Issues: issues}

	return application{
		handlers: handlers.Handlers{
			Bookings: bookingSvc,
			Vehicles: vehicleSvc,
			Issues:   issueSvc,
			Ledger:   ledger,
			Reports:  reports,

			Notifications:   repositories.NotificationRepository{DB: db},
			OperatorChannel: env.OperatorChannel,
		},
		ledger: ledger,
	}
}

type eventPublisher interface {
	worker.Publisher
	Close() error
}

// connectPublisher falls back to a no-op publisher when RabbitMQ is not configured or unreachable.
func connectPublisher(env intconfig.Env, logger *zap.Logger) eventPublisher {
	if env.AMQPURL == "" {
		return events.Nop{}
	}
	p, err := events.NewPublisher(env.AMQPURL, env.AMQPExchange)
	if err != nil {
		logger.Warn("amqp unavailable, booking events will not be published", zap.Error(err))
		return events.Nop{}
	}
	return p
}

func workerOwner() string {
	host, err := os.Hostname()
	if err != nil {
		host = "worker"
	}
	return fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
}
