package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/campusconnect/messaging/internal/config"
	"github.com/campusconnect/messaging/internal/logger"
	"github.com/campusconnect/messaging/internal/relay"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	zlog, err := logger.New(logger.Config{Development: cfg.Development})
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	opts := relay.ServerOptions{
		RateLimitPerMinute: cfg.Server.RateLimitPerMinute,
		Logger:             zlog,
	}

	if cfg.JWT.Secret != "" {
		opts.Tokens = relay.NewTokenValidator(cfg.JWT.Secret)
	} else {
		zlog.Warn("no jwt secret configured, auth disabled")
	}

	if cfg.Mongo.URI != "" {
		mc, err := relay.NewMongoClient(context.Background(), cfg.Mongo.URI)
		if err != nil {
			zlog.Fatalw("mongo init", "err", err)
		}
		defer func() { _ = mc.Disconnect(context.Background()) }()
		opts.Store = relay.NewMongoStore(mc.Database(cfg.Mongo.Database).Collection(cfg.Mongo.Collection))
	} else {
		zlog.Warn("no mongo uri configured, using in-memory store")
		opts.Store = relay.NewMemoryStore()
	}

	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		opts.Presence = relay.NewPresenceStore(rdb, cfg.Redis.Prefix, 0)
	}

	var producer *relay.Producer
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic != "" {
		producer = relay.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		opts.Producer = producer
	}

	srv := relay.NewServer(opts)

	go func() {
		if err := srv.Listen(":" + cfg.Server.Port); err != nil {
			zlog.Fatalw("server listen", "err", err)
		}
	}()
	zlog.Infow("relayd started", "port", cfg.Server.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = producer.Close()
	zlog.Info("relayd stopped")
}
