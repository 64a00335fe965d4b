package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/suPer8Hu/chatform/internal/ai"
	"github.com/suPer8Hu/chatform/internal/config"
	"github.com/suPer8Hu/chatform/internal/db"
	"github.com/suPer8Hu/chatform/internal/logger"
	"github.com/suPer8Hu/chatform/internal/message"
	"github.com/suPer8Hu/chatform/internal/metrics"
	"github.com/suPer8Hu/chatform/internal/store/rabbitmq"
	"github.com/suPer8Hu/chatform/internal/sweeper"
	"github.com/suPer8Hu/chatform/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, JSON: cfg.LogJSON})
	defer func() { _ = log.Sync() }()

	if err := cfg.ValidateWorker(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal("db open", zap.Error(err))
	}
	repo := message.NewRepo(gdb)

	gen, err := ai.FromConfig(ctx, cfg)
	if err != nil {
		log.Fatal("ai provider", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	metricsSrv := metrics.NewServer(cfg.MetricsAddr, reg)
	go func() {
		log.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics listen", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	pipeline := message.NewPipeline(repo, gen, message.Options{
		MaxMessageLength:  cfg.MaxMessageLength,
		MaxResponseLength: cfg.MaxResponseLength,
		Logger:            log.Named("pipeline"),
		Metrics:           m,
	})

	sw := sweeper.New(repo, cfg.StaleAfter, log.Named("sweeper"), m)
	if err := sw.Start(cfg.StaleSweepSpec); err != nil {
		log.Fatal("sweeper", zap.Error(err))
	}
	defer sw.Stop()

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitQueue, rabbitmq.ConsumerOptions{
		Concurrency: cfg.WorkerConcurrency,
		MaxRetries:  3,
		RetryDelay:  5 * time.Second,
		Logger:      log.Named("consumer"),
	})
	if err != nil {
		log.Fatal("rabbit consumer", zap.Error(err))
	}
	defer consumer.Close()

	log.Info("worker started",
		zap.String("queue", cfg.RabbitQueue),
		zap.Int("concurrency", cfg.WorkerConcurrency),
		zap.String("ai_provider", cfg.AIProvider),
	)
	if err := consumer.Run(ctx, worker.MessageCreatedHandler(pipeline, log)); err != nil {
		log.Error("consumer stopped", zap.Error(err))
	}
}
