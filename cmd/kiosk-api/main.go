package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/segmentio/kafka-go"

	catalogapp "github.com/akash768145s/Smartshake/internal/catalog/application"
	catalogdomain "github.com/akash768145s/Smartshake/internal/catalog/domain"
	cataloghttp "github.com/akash768145s/Smartshake/internal/catalog/infrastructure/http"
	catalogmem "github.com/akash768145s/Smartshake/internal/catalog/infrastructure/memory"
	catalogpg "github.com/akash768145s/Smartshake/internal/catalog/infrastructure/postgres"
	"github.com/akash768145s/Smartshake/internal/config"
	orderapp "github.com/akash768145s/Smartshake/internal/order/application"
	orderhttp "github.com/akash768145s/Smartshake/internal/order/infrastructure/http"
	orderkafka "github.com/akash768145s/Smartshake/internal/order/infrastructure/kafka"
	ordermem "github.com/akash768145s/Smartshake/internal/order/infrastructure/memory"
	orderpg "github.com/akash768145s/Smartshake/internal/order/infrastructure/postgres"
	paymentapp "github.com/akash768145s/Smartshake/internal/payment/application"
	paymenthttp "github.com/akash768145s/Smartshake/internal/payment/infrastructure/http"
	"github.com/akash768145s/Smartshake/internal/payment/infrastructure/razorpay"
	"github.com/akash768145s/Smartshake/pkg/health"
	"github.com/akash768145s/Smartshake/pkg/httpx"
	"github.com/akash768145s/Smartshake/pkg/logging"
	"github.com/akash768145s/Smartshake/pkg/outbox"
	"github.com/akash768145s/Smartshake/pkg/shutdown"
	"github.com/akash768145s/Smartshake/pkg/tracing"
)

const serviceName = "kiosk-api"

func main() {
	cfg := config.Load(".env")
	log := logging.New(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
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

	// Stores
	var (
		flavourRepo catalogapp.FlavourRepository
		orderRepo   orderapp.OrderRepository
		outboxStore outbox.Store
		checks      = map[string]health.Check{}
	)
	switch cfg.StoreDriver {
	case "memory":
		mem := ordermem.NewRepository()
		flavourRepo = catalogmem.NewRepository(catalogdomain.Defaults()...)
		orderRepo, outboxStore = mem, mem
		log.Warn("using in-memory store, orders are lost on restart")
	default:
		pool, err := pgxpool.New(ctx, cfg.PGURL)
		if err != nil {
			log.Error("pg connect failed", "err", err)
			os.Exit(1)
		}
		defer pool.Close()

		catalogRepo := catalogpg.NewRepository(log, pool)
		pgOrders := orderpg.NewRepository(log, pool)
		if err := catalogRepo.Migrate(ctx); err != nil {
			log.Error("catalog migration failed", "err", err)
			os.Exit(1)
		}
		if err := pgOrders.Migrate(ctx); err != nil {
			log.Error("order migration failed", "err", err)
			os.Exit(1)
		}
		flavourRepo, orderRepo = catalogRepo, pgOrders
		outboxStore = orderpg.NewOutboxStore(log, pool)
		checks["postgres"] = pool.Ping
	}

	// Services
	catalog := catalogapp.NewService(log, flavourRepo)
	if err := catalog.Load(ctx); err != nil {
		log.Warn("catalog preload failed, lookups fall back to the store", "err", err)
	}

	gateway, err := razorpay.NewClient(razorpay.Config{
		KeyID:     cfg.RazorpayKeyID,
		KeySecret: cfg.RazorpayKeySecret,
		BaseURL:   cfg.RazorpayBaseURL,
	})
	if err != nil {
		log.Error("payment gateway init failed", "err", err)
		os.Exit(1)
	}
	payments := paymentapp.NewService(log, gateway)
	orders := orderapp.NewService(log, orderRepo, catalog, payments, cfg.RequirePayment)
	if !cfg.RequirePayment {
		log.Warn("payment verification optional, orders may be created unpaid")
	}

	// Outbox relay
	if len(cfg.KafkaBrokers) > 0 {
		writer := orderkafka.NewWriter(cfg.KafkaBrokers)
		defer writer.Close()
		dispatch := outbox.NewDispatcher(log, writer, cfg.OrderEventsTopic)
		relay := outbox.NewRelay(log, outboxStore, dispatch, serviceName+"-relay")
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("relay stopped with error", "err", err)
			}
		}()
		checks["kafka"] = kafkaCheck(cfg.KafkaBrokers[0])
	} else {
		log.Warn("KAFKA_ADDR empty, order events stay in the outbox")
	}

	// Stale order expirer
	expirer := orderapp.NewExpirer(log, orders, cfg.OrderStaleAfter, cfg.OrderSweepInterval)
	go func() {
		if err := expirer.Run(ctx); err != nil {
			log.Error("expirer stopped with error", "err", err)
		}
	}()

	// Health
	hs := health.NewServer(log, serviceName, checks)
	if err := hs.Serve(cfg.GRPCAddr); err != nil {
		log.Error("grpc health server failed", "err", err)
		os.Exit(1)
	}
	defer hs.Stop()
	go hs.Watch(ctx)

	// HTTP
	orderHandler := orderhttp.NewHandler(log, orders)
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(log), middleware.Recoverer, httpx.TraceContext)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Method(http.MethodGet, "/health", hs)
	r.Mount("/flavours", cataloghttp.NewHandler(log, catalog).Routes())
	r.Mount("/orders", orderHandler.Routes())
	r.Mount("/sales", orderHandler.SalesRoutes())
	r.Mount("/payments", paymenthttp.NewHandler(log, payments).Routes())

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 35 * time.Second,
	}

	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr, "store", cfg.StoreDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	log.Info("kiosk-api shutdown complete")
}

func kafkaCheck(broker string) health.Check {
	return func(ctx context.Context) error {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			return err
		}
		return conn.Close()
	}
}

func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}
