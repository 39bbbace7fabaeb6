package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/trogers1052/paper-trading-service/internal/api"
	"github.com/trogers1052/paper-trading-service/internal/config"
	"github.com/trogers1052/paper-trading-service/internal/database"
	"github.com/trogers1052/paper-trading-service/internal/engine"
	"github.com/trogers1052/paper-trading-service/internal/indicator"
	"github.com/trogers1052/paper-trading-service/internal/kafka"
	"github.com/trogers1052/paper-trading-service/internal/marketdata"
	"github.com/trogers1052/paper-trading-service/internal/scheduler"
	"github.com/trogers1052/paper-trading-service/internal/strategy"
)

func main() {
	cfg := config.Load()

	db, err := database.New(cfg.Database.ConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	location, err := time.LoadLocation(cfg.Engine.Timezone)
	if err != nil {
		log.Fatalf("Failed to load exchange timezone %q: %v", cfg.Engine.Timezone, err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
	provider := marketdata.NewCachedProvider(
		marketdata.NewHTTPProvider(cfg.MarketData.BaseURL),
		redisClient,
		cfg.Redis.QuoteTTL,
	)
	indicators := indicator.NewService(provider, db)

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.EventTopic)
	defer producer.Close()

	eng := engine.NewEngine(db, provider, indicators, producer, engine.Config{
		SlippageBps:      cfg.Engine.SlippageBps,
		FeesPerShare:     cfg.Engine.FeesPerShare,
		FlatCommission:   cfg.Engine.FlatCommission,
		BacktestFillMode: cfg.Engine.BacktestFillMode,
		Location:         location,
	})
	runner := strategy.NewRunner(db, provider, engine.NewConditionEvaluator(provider, indicators), eng)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	consumer := kafka.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.RequestTopic, cfg.Kafka.ConsumerGroup, db, eng)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			log.Printf("Kafka consumer error: %v", err)
		}
	}()

	sched := scheduler.NewScheduler(db, eng, runner, scheduler.Intervals{
		Execution: cfg.Scheduler.ExecutionInterval,
		AlgoSlice: cfg.Scheduler.AlgoSliceInterval,
		Strategy:  cfg.Scheduler.StrategyInterval,
		Snapshot:  cfg.Scheduler.SnapshotInterval,
	})
	sched.Start(ctx)

	handler := api.NewHandler(db, eng, runner)
	httpServer := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: api.SetupRoutes(handler),
	}

	go func() {
		log.Printf("Paper trading service listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	sched.Wait()
}
