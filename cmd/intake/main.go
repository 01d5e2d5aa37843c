/**
 * @description
 * This is the entry point for the intake service: the HTTP surface that
 * accepts trade instructions, persists them to the ledger and publishes
 * trade.requested events. It wires configuration, the database pool, the
 * RabbitMQ producer, the optional Redis rate limiter and the HTTP server.
 */

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"

	"github.com/meridianfs/tradeseal/internal/api"
	"github.com/meridianfs/tradeseal/internal/app"
	"github.com/meridianfs/tradeseal/internal/config"
	"github.com/meridianfs/tradeseal/internal/store"
	"github.com/meridianfs/tradeseal/pkg/rabbitmq"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if err := cfg.ValidateFor(true, true); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid configuration\" err=%v", err)
	}

	log.Printf("level=info component=bootstrap msg=\"starting intake service\" port=%s", cfg.ServerPort)

	dbpool, err := store.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()

	repo := store.NewPostgresRepository(dbpool)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"schema setup failed\" err=%v", err)
	}
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	producer, err := rabbitmq.NewProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq producer init failed\" err=%v", err)
	}
	defer producer.Close()
	log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")

	gateway := app.NewGateway(repo, app.NewBusPublisher(producer), cfg.DistributorName, cfg.DefaultAssetManager)
	handlers := api.NewTradeHandlers(gateway, repo)

	if cfg.IntakeRateLimitPerMinute > 0 {
		if strings.TrimSpace(cfg.RedisURL) == "" {
			log.Println("level=warn component=bootstrap msg=\"redis url missing; intake rate limiting disabled\" env=REDIS_URL")
		} else if redisClient := connectRedis(cfg.RedisURL); redisClient != nil {
			defer redisClient.Close()
			handlers.SetRateLimiter(app.NewRedisRateLimiter(redisClient, cfg.RedisRateLimitPrefix), cfg.IntakeRateLimitPerMinute)
			log.Println("level=info component=bootstrap msg=\"redis connected; intake rate limiting enabled\"")
		}
	}

	router := chi.NewRouter()
	router.Mount("/api/trades", api.TradeRoutes(handlers, cfg.InternalAPIKey))

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}
	log.Println("level=info component=http msg=\"shutdown complete\"")
}

func connectRedis(redisURL string) *redis.Client {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; intake rate limiting disabled\" err=%v", err)
		return nil
	}
	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis ping failed; intake rate limiting disabled\" err=%v", err)
		client.Close()
		return nil
	}
	return client
}
