package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"booking-service/config"
	"booking-service/internal/api"
	"booking-service/internal/broker"
	"booking-service/internal/gateway"
	"booking-service/internal/redisclient"
	"booking-service/internal/service"
	"booking-service/internal/store"
	"booking-service/internal/store/memory"
	"booking-service/internal/util"
	"booking-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// backend is the persistence surface shared by the Postgres and memory stores
type backend interface {
	service.Catalog
	service.SeatLedger
	service.TicketStore
	service.PaymentStore
	api.Pinger
	Close() error
}

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting booking service", cfg.Fields()...)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	tp, err := util.InitTracer("booking-service", cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := openBackend(cfg)
	if err != nil {
		logger.Fatal("Failed to open database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	dependencies := map[string]api.Pinger{"database": db}

	var (
		cache  service.IdempotencyCache
		locker service.Locker
	)
	if cfg.Redis.Enabled {
		redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		cache, locker = redisClient, redisClient
		dependencies["redis"] = redisClient
		logger.Info("Redis connected")
	}

	var events service.EventPublisher = broker.NewLogPublisher()
	var callbackQueue api.CallbackQueue
	if cfg.Kafka.Enabled {
		producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicBookingEvents)
		defer producer.Close()
		events = broker.NewEventPublisher(producer)

		if cfg.Kafka.QueueCallbacks {
			callbackProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicPaymentCallbacks)
			defer callbackProducer.Close()
			callbackQueue = broker.NewCallbackRelay(callbackProducer)
		}
		logger.Info("Kafka producer initialized")
	}

	gw := gateway.NewClient(gateway.Config{
		Endpoint:    cfg.Gateway.Endpoint,
		PartnerCode: cfg.Gateway.PartnerCode,
		PartnerName: cfg.Gateway.PartnerName,
		StoreID:     cfg.Gateway.StoreID,
		AccessKey:   cfg.Gateway.AccessKey,
		SecretKey:   cfg.Gateway.SecretKey,
		IPNURL:      cfg.Gateway.IPNURL,
		Separator:   cfg.Gateway.Separator,
		Timeout:     cfg.Gateway.Timeout,
	})

	inventory := service.NewSeatInventory(db, db)
	promotions := service.NewPromotionValidator(db)
	booking := service.NewBookingCoordinator(db, db, inventory, promotions, events, time.Now)
	payments := service.NewPaymentReconciler(db, db, gw, events, cache, service.ReconcilerConfig{
		DefaultReturnURL: cfg.Gateway.DefaultReturnURL,
		CallbackDedupTTL: cfg.Gateway.CallbackDedupTTL,
	}, time.Now)
	reclamation := service.NewSeatReclamation(db, db, events, time.Now)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	scheduler := worker.NewReclamationScheduler(reclamation, payments, locker, worker.SchedulerConfig{
		Spec:      cfg.Scheduler.ReclaimCron,
		IntentTTL: cfg.Scheduler.PaymentIntentTTL,
	})
	if err := scheduler.Start(workerCtx); err != nil {
		logger.Fatal("Failed to start reclamation scheduler", zap.Error(err))
	}

	var callbackWorker *worker.CallbackWorker
	if callbackQueue != nil {
		consumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPaymentCallbacks, cfg.Kafka.ConsumerGroup)
		callbackWorker = worker.NewCallbackWorker(consumer, payments)
		go func() {
			if err := callbackWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
				logger.Error("Callback worker error", zap.Error(err))
			}
		}()
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	if cfg.TestCallbackEnabled() {
		logger.Warn("Unsigned test callback endpoint is enabled")
	}

	router := gin.New()
	handler := api.NewHandler(booking, payments, promotions, reclamation, api.Options{
		JWTSecret:         cfg.Auth.JWTSecret,
		AllowTestCallback: cfg.TestCallbackEnabled(),
		CallbackQueue:     callbackQueue,
		Dependencies:      dependencies,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	scheduler.Stop()
	workerCancel()
	if callbackWorker != nil {
		if err := callbackWorker.Stop(); err != nil {
			logger.Error("Error stopping callback worker", zap.Error(err))
		}
	}

	logger.Info("Server exited")
}

func openBackend(cfg *config.Config) (backend, error) {
	if cfg.Database.Driver == "memory" {
		s := memory.New()
		memory.SeedDemo(s, time.Now())
		return s, nil
	}
	return store.NewStore(cfg.Database.URL)
}
