package main

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	catalogapp "github.com/akash768145s/Smartshake/internal/catalog/application"
	catalogpg "github.com/akash768145s/Smartshake/internal/catalog/infrastructure/postgres"
	"github.com/akash768145s/Smartshake/internal/config"
	orderapp "github.com/akash768145s/Smartshake/internal/order/application"
	orderkafka "github.com/akash768145s/Smartshake/internal/order/infrastructure/kafka"
	orderpg "github.com/akash768145s/Smartshake/internal/order/infrastructure/postgres"
	"github.com/akash768145s/Smartshake/pkg/idempotency"
	"github.com/akash768145s/Smartshake/pkg/logging"
	"github.com/akash768145s/Smartshake/pkg/outbox"
	"github.com/akash768145s/Smartshake/pkg/shutdown"
	"github.com/akash768145s/Smartshake/pkg/tracing"
)

const serviceName = "dispense-consumer"

func main() {
	cfg := config.Load(".env")
	log := logging.New(cfg.LogLevel)

	if err := cfg.ValidateConsumer(); err != nil {
		log.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, serviceName, cfg.TracingEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	pool, err := pgxpool.New(ctx, cfg.PGURL)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer rdb.Close()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Error("redis ping failed", "err", err)
		os.Exit(1)
	}
	idem := idempotency.NewStore(rdb, cfg.IdempotencyTTL)

	repo := orderpg.NewRepository(log, pool)
	if err := repo.Migrate(ctx); err != nil {
		log.Error("order migration failed", "err", err)
		os.Exit(1)
	}
	catalog := catalogapp.NewService(log, catalogpg.NewRepository(log, pool))
	// Status changes only; this process never creates orders, so no payment verifier.
	orders := orderapp.NewService(log, repo, catalog, nil, false)

	// Status changes written here are published by this process's relay too.
	writer := orderkafka.NewWriter(cfg.KafkaBrokers)
	defer writer.Close()
	dispatch := outbox.NewDispatcher(log, writer, cfg.OrderEventsTopic)
	relay := outbox.NewRelay(log, orderpg.NewOutboxStore(log, pool), dispatch, serviceName+"-relay")
	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()

	reader := orderkafka.NewReader(cfg.KafkaBrokers, cfg.DispenseEventsTopic, cfg.ConsumerGroup)
	consumer := orderkafka.NewConsumer(log, reader, orders, idem)
	log.Info("consuming dispense reports", "topic", cfg.DispenseEventsTopic, "group", cfg.ConsumerGroup)
	if err := consumer.Run(ctx); err != nil {
		log.Error("consumer stopped", "err", err)
		cancel()
	}

	log.Info("dispense-consumer shutdown complete")
}
