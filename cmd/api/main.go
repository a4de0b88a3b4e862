package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/youngleee/thesis/internal/api"
	"github.com/youngleee/thesis/internal/api/middleware"
	"github.com/youngleee/thesis/internal/auth"
	"github.com/youngleee/thesis/internal/config"
	"github.com/youngleee/thesis/internal/domain/cart"
	"github.com/youngleee/thesis/internal/domain/inventory"
	"github.com/youngleee/thesis/internal/domain/product"
	"github.com/youngleee/thesis/internal/domain/user"
	"github.com/youngleee/thesis/internal/infrastructure/kafka"
	"github.com/youngleee/thesis/internal/infrastructure/store"
	"github.com/youngleee/thesis/internal/logging"
	"github.com/youngleee/thesis/internal/metrics"
	"github.com/youngleee/thesis/internal/realtime"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type stores struct {
	catalog product.Catalog
	carts   cart.Store
	users   user.Store
	db      *sql.DB
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[API] Invalid configuration: %v", err)
	}

	logger, err := logging.New(cfg.ServiceName, cfg.Env, cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("[API] Failed to build logger: %v", err)
	}
	defer logger.Sync()

	if cfg.GeneratedSecret {
		logger.Warn("JWT_SECRET not set, using a generated secret; sessions end on restart")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New("webshop", reg)

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to open stores", zap.Error(err))
	}
	if st.db != nil {
		defer st.db.Close()
	}

	// Realtime
	hub := realtime.NewHub(realtime.WithHubLogger(logger), realtime.WithHubMetrics(m))
	dispatcherOpts := []realtime.DispatcherOption{
		realtime.WithQueueSize(cfg.BroadcastQueue),
		realtime.WithDispatcherLogger(logger),
		realtime.WithDispatcherMetrics(m),
	}

	var producer *kafka.Producer
	if cfg.RelayEnabled() {
		producer = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
		dispatcherOpts = append(dispatcherOpts, realtime.WithForwarders(producer))
	}
	dispatcher := realtime.NewDispatcher(hub, dispatcherOpts...)
	dispatcher.Start()

	var wg sync.WaitGroup
	if cfg.RelayEnabled() {
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, "webshop-realtime-"+dispatcher.Origin(), logger)
		defer consumer.Close()

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Consume(ctx, kafka.RelayToHub(hub, dispatcher.Origin())); err != nil && ctx.Err() == nil {
				logger.Error("relay consumer stopped", zap.Error(err))
			}
		}()
		logger.Info("cross-instance relay enabled",
			zap.Strings("brokers", cfg.KafkaBrokers),
			zap.String("topic", cfg.KafkaTopic),
		)
	}

	// Domain services
	cartSvc := cart.NewService(st.carts, st.catalog,
		cart.WithNotifier(dispatcher),
		cart.WithLogger(logger),
		cart.WithMetrics(m),
	)
	inventorySvc := inventory.NewService(st.catalog,
		inventory.WithNotifier(dispatcher),
		inventory.WithLogger(logger),
		inventory.WithMetrics(m),
	)
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.AccessTokenTTL)
	userSvc := user.NewService(st.users, auth.NewHasher(bcrypt.DefaultCost))

	ws := realtime.NewServer(dispatcher, cartSvc, middleware.ResolveOwner(tokens),
		realtime.WithAllowedOrigins(cfg.CORSOrigins),
		realtime.WithSnapshotTimeout(cfg.StoreTimeout),
		realtime.WithServerLogger(logger),
	)

	router := api.NewRouter(api.RouterConfig{
		Handlers:     api.NewHandlers(cartSvc, inventorySvc, hub, cfg.StoreTimeout, logger),
		AuthHandlers: api.NewAuthHandlers(userSvc, tokens, logger),
		Realtime:     ws,
		Tokens:       tokens,
		Logger:       logger,
		Metrics:      m,
		Gatherer:     reg,
		CORSOrigins:  cfg.CORSOrigins,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server started",
			zap.String("addr", cfg.HTTPAddr),
			zap.Bool("postgres", cfg.UsesDatabase()),
		)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := dispatcher.Stop(shutdownCtx); err != nil {
		logger.Warn("dispatcher shutdown", zap.Error(err))
	}
	hub.CloseAll()

	wg.Wait()
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	if !cfg.UsesDatabase() {
		catalog := store.NewMemoryCatalog(product.Seed()...)
		logger.Info("using in-memory stores")
		return &stores{
			catalog: catalog,
			carts:   store.NewMemoryCartStore(catalog),
			users:   store.NewMemoryUserStore(),
		}, nil
	}

	db, err := store.ConnectPostgres(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	logger.Info("connected to PostgreSQL")

	if err := store.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if cfg.SeedCatalog {
		n, err := store.SeedCatalog(ctx, db, product.Seed())
		if err != nil {
			db.Close()
			return nil, err
		}
		if n > 0 {
			logger.Info("seeded catalog", zap.Int("products", n))
		}
	}

	return &stores{
		catalog: store.NewPostgresCatalog(db),
		carts:   store.NewPostgresCartStore(db),
		users:   store.NewPostgresUserStore(db),
		db:      db,
	}, nil
}
