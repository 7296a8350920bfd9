// launching the server, storage, broker consumers and push transport
package appServer

import (
	"context"
	"crypto/tls"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ds124wfegd/notification-dispatcher/config"
	"github.com/ds124wfegd/notification-dispatcher/internal/database"
	"github.com/ds124wfegd/notification-dispatcher/internal/database/memory"
	postgresRepo "github.com/ds124wfegd/notification-dispatcher/internal/database/postgres"
	"github.com/ds124wfegd/notification-dispatcher/internal/entity"
	"github.com/ds124wfegd/notification-dispatcher/internal/push"
	"github.com/ds124wfegd/notification-dispatcher/internal/rabbitMQ"
	"github.com/ds124wfegd/notification-dispatcher/internal/rateLimiter"
	"github.com/ds124wfegd/notification-dispatcher/internal/service"
	"github.com/ds124wfegd/notification-dispatcher/internal/transport"
	"github.com/ds124wfegd/notification-dispatcher/pkg/postgres"
	"github.com/ds124wfegd/notification-dispatcher/pkg/redis"

	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.Idle_timeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags),
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func NewServer(cfg *config.Config) {
	logrus.SetFormatter(new(logrus.JSONFormatter))
	if level, err := logrus.ParseLevel(cfg.Log.Level); err == nil {
		logrus.SetLevel(level)
	} else {
		logrus.Warnf("unknown log level %q, using info", cfg.Log.Level)
	}
	gin.SetMode(cfg.Server.Mode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis
	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		client, err := redis.NewRedisClient(ctx, &cfg.Redis)
		if err != nil {
			logrus.Fatalf("Failed to connect to Redis: %s", err.Error())
		}
		defer client.Close()
		redisClient = client
	}

	// Storage
	notificationRepo, userRepo, closeStorage := newStorage(ctx, cfg)
	defer closeStorage()

	var deliveryRepo database.DeliveryRepository
	if redisClient != nil {
		deliveryRepo = database.NewRedisDeliveryRepository(redisClient)
	} else {
		deliveryRepo = memory.NewDeliveryRepository()
	}

	limiter := newLimiter(cfg, redisClient)

	// RabbitMQ
	rabbitMQConfig := rabbitMQ.RabbitMQConfig{
		URL:                cfg.Rabbit.RabbitURL(),
		ExchangeName:       cfg.Rabbit.ExchangeName,
		DeadLetterExchange: cfg.Rabbit.DeadLetterExchange,
		DeadLetterQueue:    cfg.Rabbit.DeadLetterQueue,
		RetryCount:         cfg.Rabbit.RetryCount,
		RetryDelay:         cfg.Rabbit.RetryDelay,
		Queues: []rabbitMQ.LaneQueue{
			{Name: cfg.Rabbit.Lanes.Critical.Queue, RoutingKey: entity.LaneCritical.RoutingKey()},
			{Name: cfg.Rabbit.Lanes.Normal.Queue, RoutingKey: entity.LaneNormal.RoutingKey()},
		},
	}

	broker, err := rabbitMQ.NewRabbitMQ(rabbitMQConfig)
	if err != nil {
		logrus.Fatalf("Failed to connect to RabbitMQ: %s", err.Error())
	}
	defer func() {
		if err := broker.Close(); err != nil {
			logrus.Errorf("error occured on RabbitMQ closing: %s", err.Error())
		}
	}()

	// Push transport
	hub := push.NewHub()
	defer hub.Close()

	var pusher service.Pusher = hub
	if cfg.Push.Mode == "redis" {
		if redisClient == nil {
			logrus.Fatal("push.mode redis requires redis.enabled")
		}
		pusher = push.NewRedisPusher(redisClient, cfg.Push.ChannelPrefix)

		relay := push.NewRelay(redisClient, cfg.Push.ChannelPrefix, hub)
		go func() {
			if err := relay.Run(ctx); err != nil {
				logrus.Errorf("push relay stopped: %s", err.Error())
			}
		}()
	}

	notificationUseCase := service.NewNotificationUseCase(notificationRepo, userRepo, broker, limiter)
	userUseCase := service.NewUserUseCase(userRepo)
	consumer := service.NewNotificationConsumer(notificationRepo, deliveryRepo, service.NewDispatcher(pusher), cfg.Dispatch.DedupeTTL)

	lanes := map[entity.Lane]config.LaneConfig{
		entity.LaneCritical: cfg.Rabbit.Lanes.Critical,
		entity.LaneNormal:   cfg.Rabbit.Lanes.Normal,
	}
	for _, lane := range entity.Lanes {
		laneCfg := lanes[lane]
		if err := broker.Consume(ctx, laneCfg.Queue, laneCfg.Concurrency, consumer.Handler(lane)); err != nil {
			logrus.Fatalf("Failed to start %s consumer: %s", lane, err.Error())
		}
	}

	if cfg.Worker.RepublishInterval > 0 {
		go startBackgroundProcessor(ctx, notificationUseCase, cfg.Worker.RepublishInterval, cfg.Worker.RepublishAfter)
	}

	srv := new(Server)
	go func() {
		router := transport.InitRoutes(notificationUseCase, userUseCase, hub, broker.HealthCheck)
		if err := srv.Run(cfg, router); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.WithField("port", cfg.Server.Port).Print("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}
}

func newStorage(ctx context.Context, cfg *config.Config) (database.NotificationRepository, database.UserRepository, func()) {
	if cfg.Storage.Driver == "memory" {
		logrus.Warn("Using in-memory storage, data is lost on restart")
		return memory.NewNotificationRepository(), memory.NewUserRepository(), func() {}
	}

	db, err := postgres.NewPostgresDB(ctx, &cfg.Database)
	if err != nil {
		logrus.Fatalf("Failed to connect to PostgreSQL: %s", err.Error())
	}

	if err := postgres.RunMigrations(ctx, db); err != nil {
		logrus.Fatalf("Failed to run migrations: %s", err.Error())
	}

	closeDB := func() {
		if err := db.Close(); err != nil {
			logrus.Errorf("error occured on database connection closing: %s", err.Error())
		}
	}
	return postgresRepo.NewNotificationRepository(db), postgresRepo.NewUserRepository(db), closeDB
}

func newLimiter(cfg *config.Config, redisClient *goredis.Client) rateLimiter.Limiter {
	if cfg.RateLimit.Driver == "redis" {
		if redisClient != nil {
			return rateLimiter.NewRedisLimiter(redisClient, cfg.RateLimit.Interval, cfg.RateLimit.KeyPrefix)
		}
		logrus.Warn("rate_limit.driver is redis but redis is disabled, falling back to memory")
	}

	// The sweeper goroutine lives as long as the process.
	return rateLimiter.NewMemoryLimiter(cfg.RateLimit.Interval,
		rateLimiter.WithCleanupInterval(cfg.RateLimit.Interval*10),
	)
}

// startBackgroundProcessor republishes notifications that stayed PENDING, for
// example because the broker was down when they were submitted.
func startBackgroundProcessor(ctx context.Context, useCase service.NotificationUseCase, every, olderThan time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := useCase.RepublishStale(ctx, olderThan); err != nil {
				logrus.Errorf("Error republishing stale notifications: %s", err.Error())
			}
		case <-ctx.Done():
			return
		}
	}
}
