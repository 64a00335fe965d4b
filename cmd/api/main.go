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
	"github.com/suPer8Hu/chatform/internal/flows"
	"github.com/suPer8Hu/chatform/internal/httpapi"
	"github.com/suPer8Hu/chatform/internal/httpapi/handlers"
	"github.com/suPer8Hu/chatform/internal/httpapi/middleware"
	"github.com/suPer8Hu/chatform/internal/logger"
	"github.com/suPer8Hu/chatform/internal/message"
	"github.com/suPer8Hu/chatform/internal/metrics"
	"github.com/suPer8Hu/chatform/internal/store/rabbitmq"
	"github.com/suPer8Hu/chatform/internal/store/redisstore"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log := logger.New(logger.Options{Level: cfg.LogLevel, File: cfg.LogFile, JSON: cfg.LogJSON})
	defer func() { _ = log.Sync() }()

	if err := cfg.ValidateAPI(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Open(cfg.DBDriver, cfg.DBDSN)
	if err != nil {
		log.Fatal("db open", zap.Error(err))
	}
	repo := message.NewRepo(gdb)
	if err := repo.AutoMigrate(); err != nil {
		log.Fatal("automigrate", zap.Error(err))
	}

	rdb, err := redisstore.New(ctx, redisstore.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		log.Fatal("redis connect", zap.Error(err))
	}
	defer rdb.Close()

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatal("rabbit publisher", zap.Error(err))
	}
	defer pub.Close()

	gen, err := ai.FromConfig(ctx, cfg)
	if err != nil {
		log.Fatal("ai provider", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	pipeline := message.NewPipeline(repo, gen, message.Options{
		MaxMessageLength:  cfg.MaxMessageLength,
		MaxResponseLength: cfg.MaxResponseLength,
		Logger:            log.Named("pipeline"),
		Metrics:           m,
		Publisher:         pub,
	})

	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, log)
	stopCleanup := make(chan struct{})
	defer close(stopCleanup)
	go limiter.Cleanup(time.Minute, stopCleanup)

	h := handlers.NewHandler(
		pipeline,
		repo,
		flows.NewService(gen, cfg.MaxMessageLength),
		redisstore.NewIdempotency(rdb, cfg.IdempotencyTTL),
		log,
	)
	r := httpapi.NewRouter(h, httpapi.RouterConfig{
		JWTSecret: cfg.JWTSecret,
		Limiter:   limiter,
		Gatherer:  reg,
		Logger:    log.Named("http"),
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("api listening", zap.String("addr", cfg.HTTPAddr), zap.String("ai_provider", cfg.AIProvider))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("listen", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("api shutting down")

	// in-flight Submit calls finish their generation before returning
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GenerationTimeout+10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
}
