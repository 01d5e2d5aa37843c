/**
 * @description
 * This is the entry point for the observer service: one participant's live
 * view of the ledger. It seeds an in-memory snapshot, keeps it current from
 * either the ledger change feed or a participant-specific trade.settled
 * subscription, and serves the snapshot over HTTP.
 */

package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/meridianfs/tradeseal/internal/app"
	"github.com/meridianfs/tradeseal/internal/config"
	"github.com/meridianfs/tradeseal/internal/domain"
	"github.com/meridianfs/tradeseal/internal/participant"
	"github.com/meridianfs/tradeseal/internal/store"
	"github.com/meridianfs/tradeseal/pkg/rabbitmq"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}

	source, err := app.ParseFeedSource(cfg.ProjectionSource)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid configuration\" err=%v", err)
	}
	if err := cfg.ValidateFor(true, source == app.FeedBus); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid configuration\" err=%v", err)
	}

	identity := participant.New(cfg.ParticipantName, cfg.ParticipantColor, cfg.ParticipantRole)
	log.Printf("level=info component=bootstrap msg=\"starting observer service\" participant=%q role=%s source=%s",
		identity.Name, identity.Role, source)

	dbpool, err := store.NewPool(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()

	repo := store.NewPostgresRepository(dbpool)
	if err := repo.EnsureSchema(context.Background()); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"schema setup failed\" err=%v", err)
	}

	projection := app.NewProjection(repo, cfg.SnapshotLimit)
	projection.Subscribe(func(trade *domain.Trade) {
		log.Printf("level=info component=observer msg=\"trade update\" participant=%q external_order_id=%s status=%s",
			identity.Name, trade.ExternalOrderID, trade.Status)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	projection.Load(ctx)

	switch source {
	case app.FeedLedger:
		go projection.RunLedgerFeed(ctx)
	case app.FeedBus:
		consumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"rabbitmq consumer init failed\" err=%v", err)
		}
		defer consumer.Close()

		// Each participant gets its own settled-event queue so every
		// deployment sees every confirmation.
		queueName := domain.ChannelTradeSettled + "." + identity.SubscriptionName()
		err = consumer.Consume(ctx,
			domain.Exchange, domain.DeadLetterExchange, domain.DeadLetterQueue,
			queueName, domain.ChannelTradeSettled,
			projection.HandleSettledMessage)
		if err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"consume start failed\" queue=%s err=%v", queueName, err)
		}
		log.Printf("level=info component=bootstrap msg=\"consuming\" queue=%s channel=%s", queueName, domain.ChannelTradeSettled)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})
	router.Get("/snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"participant": map[string]string{
				"name":        identity.Name,
				"color":       identity.Color,
				"role":        identity.Role,
				"logoInitial": identity.LogoInitial,
			},
			"trades": projection.Snapshot(),
		})
	})

	server := &http.Server{Addr: ":" + cfg.ServerPort, Handler: router}
	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Println("level=info component=bootstrap msg=\"shutdown started\"")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}
	log.Println("level=info component=bootstrap msg=\"shutdown complete\"")
}
