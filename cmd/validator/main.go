/**
 * @description
 * This is the entry point for the validator service: the worker that consumes
 * trade.requested events, runs the business rule set and publishes
 * trade.validated or trade.rejected.
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/meridianfs/tradeseal/internal/app"
	"github.com/meridianfs/tradeseal/internal/config"
	"github.com/meridianfs/tradeseal/internal/domain"
	"github.com/meridianfs/tradeseal/internal/store"
	"github.com/meridianfs/tradeseal/pkg/rabbitmq"
)

const requestedQueue = "validator.trade_requested"

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if err := cfg.ValidateFor(true, true); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid configuration\" err=%v", err)
	}

	log.Println("level=info component=bootstrap msg=\"starting validator service\"")

	dbpool, err := store.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()

	repo := store.NewPostgresRepository(dbpool)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"schema setup failed\" err=%v", err)
	}

	producer, err := rabbitmq.NewProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq producer init failed\" err=%v", err)
	}
	defer producer.Close()

	consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq consumer init failed\" err=%v", err)
	}
	defer consumer.Close()

	validator := app.NewValidator(repo, app.NewBusPublisher(producer))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.Consume(ctx,
		domain.Exchange, domain.DeadLetterExchange, domain.DeadLetterQueue,
		requestedQueue, domain.ChannelTradeRequested,
		validator.HandleMessage)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"consume start failed\" queue=%s err=%v", requestedQueue, err)
	}
	log.Printf("level=info component=bootstrap msg=\"consuming\" queue=%s channel=%s", requestedQueue, domain.ChannelTradeRequested)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("level=info component=bootstrap msg=\"shutdown started\"")
	cancel()
	log.Println("level=info component=bootstrap msg=\"shutdown complete\"")
}
