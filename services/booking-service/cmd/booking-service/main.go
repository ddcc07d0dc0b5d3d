package main

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/md-rashed-zaman/slotkeeper/libs/config"
	"github.com/md-rashed-zaman/slotkeeper/libs/db"
	"github.com/md-rashed-zaman/slotkeeper/libs/grpcx"
	"github.com/md-rashed-zaman/slotkeeper/libs/httpx"
	"github.com/md-rashed-zaman/slotkeeper/libs/kafkax"
	"github.com/md-rashed-zaman/slotkeeper/libs/metrics"
	otelx "github.com/md-rashed-zaman/slotkeeper/libs/otel"
	"github.com/md-rashed-zaman/slotkeeper/libs/runtime"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/hold"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/payment"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/slotcache"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/store"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/store/memstore"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/store/pgstore"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/sweeper"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/waitlist"
	"github.com/md-rashed-zaman/slotkeeper/services/booking-service/internal/workinghours"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const metricsNamespace = "slotkeeper"

func main() {
	service := config.String("SERVICE_NAME", "booking-service")
	port, err := config.Port("PORT", "8083")
	if err != nil {
		panic(err)
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	cfg, err := loadSettings()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		panic(err)
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engineMetrics := metrics.NewEngine(reg, metricsNamespace)
	httpMetrics := metrics.NewHTTP(reg, metricsNamespace)

	var (
		st       store.Store
		source   outbox.Source
		locker   sweeper.Locker
		checks   []runtime.ReadyCheck
		brokers  = config.String("KAFKA_BROKERS", "")
		dbURL    = config.String("DATABASE_URL", "")
		clock    = time.Now
		seedInto *memstore.Store
	)
	if dbURL != "" {
		pool, err := db.Open(ctx, dbURL)
		if err != nil {
			logger.Error("db connection failed", "err", err)
			panic(err)
		}
		defer pool.Close()

		outboxRepo := outbox.NewRepository(pool)
		st = pgstore.New(pool, outboxRepo)
		source = outboxRepo
		locker = pgstore.NewAdvisoryLocker(pool, cfg.Sweeper.LockKey)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})
		if len(cfg.Resources) > 0 {
			logger.Warn("resource seeds are ignored with DATABASE_URL set", "count", len(cfg.Resources))
		}
	} else {
		mem := memstore.New(memstore.WithClock(clock))
		st, source, seedInto = mem, mem, mem
		logger.Warn("DATABASE_URL not set; using in-memory store")
	}
	if seedInto != nil {
		for _, rs := range cfg.Resources {
			res, rules, excs, err := rs.seed()
			if err != nil {
				logger.Error("invalid resource seed", "err", err)
				panic(err)
			}
			seedInto.PutResource(res, rules...)
			for _, exc := range excs {
				seedInto.PutException(res.TenantID, res.ID, exc)
			}
		}
	}

	var rdb *redis.Client
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: addr, Password: config.String("REDIS_PASSWORD", "")})
		defer func() { _ = rdb.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}

	var writer outbox.Writer = outbox.LogWriter{Logger: logger}
	if kw := outbox.NewKafkaWriter(brokers); kw != nil {
		writer = kw
		defer func() { _ = kw.Close() }()
		checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}

	var payments payment.Checker = &payment.StaticChecker{}
	if key := config.String("STRIPE_SECRET_KEY", ""); key != "" {
		payments = payment.NewStripeChecker(key)
	} else {
		logger.Warn("STRIPE_SECRET_KEY not set; payment-required bookings cannot be confirmed")
	}

	timeout := cfg.Store.Timeout.Duration
	holds := hold.NewManager(st, hold.Config{
		DefaultTTL:   cfg.Holds.DefaultTTL.Duration,
		MaxTTL:       cfg.Holds.MaxTTL.Duration,
		StoreTimeout: timeout,
		MaxBuffer:    cfg.Availability.MaxBuffer.Duration,
	}, hold.WithLogger(logger), hold.WithMetrics(engineMetrics), hold.WithClock(clock))
	wl := waitlist.NewManager(st, timeout,
		waitlist.WithLogger(logger), waitlist.WithMetrics(engineMetrics), waitlist.WithClock(clock))
	bookings := booking.NewController(st, wl, payments, booking.Config{
		PaymentTTL:   cfg.Bookings.PaymentTTL.Duration,
		StoreTimeout: timeout,
		MaxBuffer:    cfg.Availability.MaxBuffer.Duration,
	}, booking.WithLogger(logger), booking.WithMetrics(engineMetrics), booking.WithClock(clock))
	slots := availability.NewGenerator(st, workinghours.NewResolver(st.Schedules()), availability.Config{
		StoreTimeout: timeout,
		MaxRangeDays: cfg.Availability.MaxRangeDays,
		MaxBuffer:    cfg.Availability.MaxBuffer.Duration,
	})
	cache := slotcache.New(rdb, cfg.Cache.TTL.Duration, cfg.Cache.Prefix, logger)

	publisher := outbox.NewPublisher(source, writer, logger, outbox.PublisherConfig{
		PollEvery: 2 * time.Second,
		BatchSize: 50,
		Metrics:   engineMetrics,
	})
	go publisher.Run(ctx)

	sweep := sweeper.NewWorker(bookings, wl, logger, sweeper.Config{
		Interval: cfg.Sweeper.Interval.Duration,
		Locker:   locker,
	})
	go sweep.Run(ctx)

	api := handlers.New(handlers.Deps{
		Holds:     holds,
		Bookings:  bookings,
		Waitlist:  wl,
		Slots:     slots,
		Cache:     cache,
		Schedules: st.Schedules(),
		Logger:    logger,
		Clock:     clock,
	})
	router := mux.NewRouter()
	router.Use(httpMetrics.Middleware)
	api.Register(router)

	base := runtime.NewBaseMuxWithReady(checks...)
	base.Handle("/metrics", metrics.Handler(reg))
	base.Handle("/api/", router)

	limit := httpx.NewRateLimiter(cfg.RateLimit.PerMinute, time.Minute).Middleware()
	if rdb != nil {
		limit = httpx.NewRedisRateLimiter(rdb, cfg.RateLimit.PerMinute, time.Minute, "rl:"+service).Middleware(logger, true)
	}
	httpHandler := httpx.Chain(base,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowedHeaders: []string{"Content-Type", handlers.TenantHeader, handlers.ActorHeader, handlers.IdempotencyHeader},
			MaxAge:         10 * time.Minute,
		}),
		limit,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(15*time.Second),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv := grpcx.NewServer(logger)
	grpcSrv.SetServing(true, service)
	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		logger.Error("grpc listen failed", "err", err)
		panic(err)
	}
	go func() {
		if err := grpcSrv.Serve(ctx, lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
