/**
 * @description
 * This is the entry point for the settler service: the worker that consumes
 * trade.validated events, seals each trade with its SHA-256 hash via a
 * conditional ledger write, optionally anchors the composite digest with the
 * external gateway, and publishes trade.settled.
 */

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/meridianfs/tradeseal/internal/app"
	"github.com/meridianfs/tradeseal/internal/config"
	"github.com/meridianfs/tradeseal/internal/domain"
	"github.com/meridianfs/tradeseal/internal/store"
	"github.com/meridianfs/tradeseal/pkg/chainclient"
	"github.com/meridianfs/tradeseal/pkg/rabbitmq"
)

const validatedQueue = "settlement.trade_validated"

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if err := cfg.ValidateFor(true, true); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid configuration\" err=%v", err)
	}

	log.Println("level=info component=bootstrap msg=\"starting settler service\"")

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

	chain := chainclient.NewClient(cfg.AnchorGatewayURL, cfg.AnchorGatewayKey)
	if strings.TrimSpace(cfg.AnchorGatewayURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"anchor gateway not configured; anchoring disabled\"")
	}

	settler := app.NewSettler(repo, app.NewBusPublisher(producer), chain)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.Consume(ctx,
		domain.Exchange, domain.DeadLetterExchange, domain.DeadLetterQueue,
		validatedQueue, domain.ChannelTradeValidated,
		settler.HandleMessage)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"consume start failed\" queue=%s err=%v", validatedQueue, err)
	}
	log.Printf("level=info component=bootstrap msg=\"consuming\" queue=%s channel=%s", validatedQueue, domain.ChannelTradeValidated)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("level=info component=bootstrap msg=\"shutdown started\"")
	cancel()
	log.Println("level=info component=bootstrap msg=\"shutdown complete\"")
}
