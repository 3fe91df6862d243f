package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/rl1809/campus-orders/internal/adapter/auth"
	"github.com/rl1809/campus-orders/internal/adapter/handler"
	"github.com/rl1809/campus-orders/internal/adapter/notify"
	"github.com/rl1809/campus-orders/internal/adapter/storage"
	"github.com/rl1809/campus-orders/internal/config"
	"github.com/rl1809/campus-orders/internal/core/service"
	"github.com/rl1809/campus-orders/internal/port"
)

const healthInterval = 10 * time.Second

type store interface {
	port.CatalogRepository
	port.CartRepository
	port.PaymentRepository
	port.NotificationRepository
	handler.Pinger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checks := make(map[string]handler.Pinger)
	var closers []func() error

	// Initialize store
	var db store
	switch cfg.StoreDriver {
	case config.StoreMySQL:
		conn, err := storage.OpenMySQL(ctx, cfg.MySQLDSN)
		if err != nil {
			fatal("failed to connect mysql", err)
		}
		if err := storage.Migrate(cfg.MySQLDSN); err != nil {
			fatal("failed to migrate mysql", err)
		}
		slog.Info("connected to mysql")
		db = storage.NewMySQLAdapter(conn)
		closers = append(closers, conn.Close)
	default:
		slog.Warn("using in-memory store, data is lost on restart")
		db = storage.NewMemoryAdapter()
	}
	checks["store"] = db

	// Cart locks and checkout idempotency
	var (
		locker port.Locker          = service.NewKeyedMutex()
		cache  port.CacheRepository = storage.NewMemoryAdapter()
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			PoolSize: 100,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			fatal("failed to connect redis", err)
		}
		slog.Info("connected to redis", "addr", cfg.RedisAddr)
		redisAdapter := storage.NewRedisAdapter(rdb)
		locker, cache = redisAdapter, redisAdapter
		checks["redis"] = redisAdapter
		closers = append(closers, rdb.Close)
	}

	// Notification dispatcher
	var channels []notify.Channel
	if len(cfg.KafkaBrokers) > 0 {
		kafkaChannel := notify.NewKafkaChannel(cfg.KafkaBrokers, cfg.NotifyTopic)
		channels = append(channels, kafkaChannel)
		closers = append(closers, kafkaChannel.Close)
		slog.Info("publishing payment events to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.NotifyTopic)
	}
	channels = append(channels, notify.NewLogChannel(slog.Default()))

	dispatcher := notify.NewDispatcher(db, cfg.NotifyQueueSize, channels...)
	dispatcher.Start(cfg.NotifyWorkers)
	slog.Info("started notification workers", "count", cfg.NotifyWorkers)

	// Initialize services
	policy := service.NewAdminPolicy(cfg.AdminEmails)
	carts := service.NewCartService(db, db, locker)
	orders := service.NewOrderService(db, db, carts, cache, service.DuesConfig{
		Amount: cfg.DuesAmount,
		Title:  cfg.DuesTitle,
	})
	services := handler.Services{
		Catalog:       service.NewCatalogService(db, policy),
		Carts:         carts,
		Orders:        orders,
		Verification:  service.NewVerificationService(orders, db, dispatcher, policy),
		Notifications: service.NewNotificationService(db),
	}

	var images port.ImageStore
	if cfg.ImageDir != "" {
		disk, err := storage.NewDiskImageStore(cfg.ImageDir, cfg.ImageBaseURL)
		if err != nil {
			fatal("failed to prepare image dir", err)
		}
		images = disk
	}

	// Initialize gRPC server
	grpcServer := grpc.NewServer()
	grpcHandler := handler.NewGRPCHandler(checks)
	grpcHandler.Register(grpcServer)
	go grpcHandler.Watch(healthInterval)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		fatal("failed to listen", err)
	}

	go func() {
		slog.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("gRPC server error", "err", err)
		}
	}()

	// Initialize HTTP server
	metrics := handler.NewMetrics(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
	httpHandler := handler.NewHTTPHandler(services, images, metrics, checks, cfg.RequestTimeout)
	router := httpHandler.Routes(auth.NewJWTAuthenticator(cfg.JWTSecret).Middleware)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			slog.Error("HTTP server error", "err", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP shutdown", "err", err)
	}
	slog.Info("HTTP server stopped")

	grpcHandler.Shutdown()
	grpcServer.GracefulStop()
	slog.Info("gRPC server stopped")

	// Drain queued events before the store goes away
	dispatcher.Close()
	slog.Info("notification workers stopped")

	for _, c := range closers {
		if err := c(); err != nil {
			slog.Error("close", "err", err)
		}
	}
	slog.Info("connections closed")
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
