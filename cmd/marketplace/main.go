package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Vishal8376/Farm2Consumer/internal/cache"
	"github.com/Vishal8376/Farm2Consumer/internal/cart"
	"github.com/Vishal8376/Farm2Consumer/internal/catalog"
	"github.com/Vishal8376/Farm2Consumer/internal/checkout"
	"github.com/Vishal8376/Farm2Consumer/internal/config"
	h "github.com/Vishal8376/Farm2Consumer/internal/http"
	"github.com/Vishal8376/Farm2Consumer/internal/logger"
	"github.com/Vishal8376/Farm2Consumer/internal/memstore"
	"github.com/Vishal8376/Farm2Consumer/internal/metrics"
	"github.com/Vishal8376/Farm2Consumer/internal/publisher"
	"github.com/Vishal8376/Farm2Consumer/internal/repository"
	"github.com/Vishal8376/Farm2Consumer/internal/settlement"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type cartStore interface {
	cart.Repository
	checkout.CartReader
}

// stores is the set of backends one CART_BACKEND choice resolves to.
type stores struct {
	carts        cartStore
	ledger       checkout.Ledger
	orders       checkout.OrderReader
	materializer checkout.Materializer
	outbox       publisher.Repository
	health       []h.HealthChecker
	closers      []func(context.Context) error
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer lg.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	products, err := catalog.NewRepository(cfg.CatalogPath)
	if err != nil {
		lg.Fatal("Failed to open catalog", zap.Error(err))
	}
	defer products.Close()
	if err := products.RunMigrations(cfg.CatalogMigrationsPath); err != nil {
		lg.Fatal("Failed to migrate catalog", zap.Error(err))
	}

	st, err := openStores(ctx, cfg, lg)
	if err != nil {
		lg.Fatal("Failed to open stores", zap.String("backend", cfg.CartBackend), zap.Error(err))
	}
	st.health = append(st.health, products)

	var cartCache cache.CartCache = cache.Noop{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			lg.Fatal("Redis connection failed", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		lg.Info("Redis ping succeeded", zap.String("addr", cfg.RedisAddr))
		cartCache = cache.NewRedisCache(rdb, cfg.CartCacheTTL)
		st.health = append(st.health, pingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() }))
		st.closers = append(st.closers, func(context.Context) error { return rdb.Close() })
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	var decider settlement.Decider = settlement.AlwaysApprove{}
	if cfg.SettlementApprovalPct < 100 {
		decider = settlement.NewRandomDecider(cfg.SettlementApprovalPct, time.Now().UnixNano())
	}
	gateway := settlement.NewBreaker(
		settlement.NewSimulated(decider, cfg.SettlementLatency),
		settlement.BreakerConfig{
			ConsecutiveFailures: cfg.BreakerFailures,
			OpenTimeout:         cfg.BreakerOpenTimeout,
		},
		lg,
	)

	cartService := cart.NewService(st.carts, products, cartCache, lg)
	checkoutService := checkout.NewService(checkout.Deps{
		Carts:        st.carts,
		Catalog:      products,
		Ledger:       st.ledger,
		Orders:       st.orders,
		Materializer: st.materializer,
		Gateway:      gateway,
		Invalidator:  cartService,
		Recorder:     m,
		Logger:       lg,
	}, checkout.Options{
		SettlementTimeout: cfg.SettlementTimeout,
	})

	var writer publisher.MessageWriter = publisher.LogWriter{Logger: lg}
	if len(cfg.KafkaBrokers) > 0 {
		writer = publisher.NewKafkaWriter(cfg.KafkaTopic, cfg.KafkaBrokers...)
		lg.Info("Publishing order events to Kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	poller := publisher.NewOutboxPoller(st.outbox, writer, publisher.Config{
		EventTick:  cfg.OutboxPollTick,
		PendingTTL: cfg.PendingPaymentTTL,
	}, lg)
	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		poller.Run(ctx)
	}()

	router := h.NewRouter(h.Handlers{
		Cart:       h.NewCartHandler(cartService, cfg.RequestTimeout, lg),
		Checkout:   h.NewCheckoutHandler(checkoutService, cfg.RequestTimeout, lg),
		Orders:     h.NewOrdersHandler(checkoutService, cfg.RequestTimeout, lg),
		Products:   h.NewProductHandler(products, cfg.RequestTimeout, lg),
		Metrics:    m.Handler(),
		Instrument: m.Middleware,
		Health:     st.health,
	}, h.RouterConfig{
		RequestTimeout:     cfg.RequestTimeout,
		MaxRequestBodySize: cfg.MaxRequestBodySize,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(router, "marketplace"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		lg.Info("Marketplace starting", zap.String("port", cfg.HTTPPort), zap.String("backend", cfg.CartBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	lg.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("server forced to shutdown", zap.Error(err))
	}
	<-pollerDone
	if err := writer.Close(); err != nil {
		lg.Warn("failed to close event writer", zap.Error(err))
	}
	for i := len(st.closers) - 1; i >= 0; i-- {
		if err := st.closers[i](shutdownCtx); err != nil {
			lg.Warn("failed to close store", zap.Error(err))
		}
	}

	lg.Info("server exited")
}

func openStores(ctx context.Context, cfg *config.Config, lg *zap.Logger) (*stores, error) {
	if cfg.CartBackend == config.CartBackendMemory {
		mem := memstore.NewMemoryStore()
		lg.Warn("Using in-memory stores; nothing survives a restart")
		return &stores{
			carts:        mem,
			ledger:       mem,
			orders:       mem,
			materializer: mem,
			outbox:       mem,
			closers:      []func(context.Context) error{closeWith(mem)},
		}, nil
	}

	cred := &repository.Credentials{
		Host:              cfg.DBHost,
		Port:              cfg.DBPort,
		User:              cfg.DBUser,
		Password:          cfg.DBPassword,
		DBName:            cfg.DBName,
		MigrationsDirPath: cfg.MigrationsPath,
		MaxConns:          cfg.DBMaxConns,
	}
	repo, err := repository.NewRepository(ctx, cred)
	if err != nil {
		return nil, err
	}
	if err := repo.RunMigrations(cred); err != nil {
		repo.Close()
		return nil, err
	}
	lg.Info("Connected to Postgres", zap.String("host", cfg.DBHost), zap.Int("port", cfg.DBPort))

	st := &stores{
		carts:        repo,
		ledger:       repo,
		orders:       repo,
		materializer: repo,
		outbox:       repo,
		health:       []h.HealthChecker{repo},
		closers:      []func(context.Context) error{closeWith(repo)},
	}
	if cfg.CartBackend == config.CartBackendPostgres {
		return st, nil
	}

	mongoDB, err := repository.ConnectMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		repo.Close()
		return nil, err
	}
	st.closers = append(st.closers, func(ctx context.Context) error {
		return mongoDB.Client().Disconnect(ctx)
	})
	mongoCarts := repository.NewMongoCartRepository(mongoDB)
	if err := mongoCarts.CreateIndexes(ctx); err != nil {
		for _, c := range st.closers {
			c(ctx) //nolint:errcheck
		}
		return nil, err
	}
	lg.Info("Connected to MongoDB", zap.String("uri", cfg.MongoURI), zap.String("db", cfg.MongoDBName))

	st.carts = mongoCarts
	// Carts and orders live in different databases, so the drain is undone
	// by hand if the order commit fails.
	st.materializer = checkout.NewCompensatingMaterializer(mongoCarts, repo, lg)
	st.health = append(st.health, mongoCarts)
	return st, nil
}

func closeWith(c io.Closer) func(context.Context) error {
	return func(context.Context) error { return c.Close() }
}
