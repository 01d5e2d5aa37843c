/**
 * @description
 * This file implements the settlement engine: the consumer of trade.validated
 * events. For each validated trade it computes the SHA-256 seal, applies the
 * conditional settlement write (Validated → Settled, version + 1), optionally
 * anchors a composite digest with the external gateway, and publishes
 * trade.settled, but only when the write took effect in this invocation.
 *
 * The conditional write is the at-most-once guard: a redelivered
 * trade.validated message matches zero rows and produces no second
 * trade.settled event.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfs/tradeseal/internal/domain"
	"github.com/meridianfs/tradeseal/internal/seal"
	"github.com/meridianfs/tradeseal/internal/store"
	"github.com/meridianfs/tradeseal/pkg/chainclient"
	"github.com/meridianfs/tradeseal/pkg/rabbitmq"
)

// Settler seals validated trades into the ledger.
type Settler struct {
	repo      store.Repository
	publisher Publisher
	chain     *chainclient.Client
}

func NewSettler(repo store.Repository, publisher Publisher, chain *chainclient.Client) *Settler {
	return &Settler{repo: repo, publisher: publisher, chain: chain}
}

// HandleMessage is the bus entry point for one trade.validated delivery.
func (s *Settler) HandleMessage(body []byte) rabbitmq.Disposition {
	var trade domain.Trade
	if err := json.Unmarshal(body, &trade); err != nil {
		log.Printf("level=error component=settler msg=\"undecodable message body\" err=%v", err)
		return rabbitmq.DeadLetter
	}
	if trade.InternalID == uuid.Nil {
		log.Printf("level=error component=settler msg=\"message missing internal id\"")
		return rabbitmq.DeadLetter
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := s.Settle(ctx, &trade); err != nil {
		log.Printf("level=error component=settler msg=\"processing failed; message will be redelivered\" external_order_id=%s err=%v",
			trade.ExternalOrderID, err)
		return rabbitmq.Requeue
	}
	return rabbitmq.Ack
}

// Settle seals one validated trade. Safe to call twice for the same trade:
// the second call is a logged no-op.
func (s *Settler) Settle(ctx context.Context, trade *domain.Trade) error {
	log.Printf("level=info component=settler msg=\"settling\" external_order_id=%s amount=%s trade_id=%s",
		trade.ExternalOrderID, trade.Amount.StringFixed(2), trade.InternalID)

	sharedHash := seal.ComputeHash(trade)
	settledAt := time.Now().UTC().Truncate(time.Millisecond)

	log.Printf("level=info component=settler msg=\"seal computed\" external_order_id=%s hash_prefix=%s",
		trade.ExternalOrderID, sharedHash[:16])

	settled, err := s.repo.MarkSettled(ctx, trade.InternalID, sharedHash, settledAt)
	if err != nil {
		return fmt.Errorf("settlement write: %w", err)
	}

	if !settled {
		// Zero rows matched. An already-settled trade is routine redelivery;
		// a missing record means an event outran its ledger write somewhere
		// upstream and deserves louder logging. Both are safe no-ops.
		current, findErr := s.repo.FindByID(ctx, trade.InternalID)
		switch {
		case errors.Is(findErr, store.ErrTradeNotFound):
			log.Printf("level=error component=settler msg=\"settlement event references unknown trade; dropping\" trade_id=%s",
				trade.InternalID)
		case findErr != nil:
			return fmt.Errorf("fetch after no-op settlement write: %w", findErr)
		default:
			log.Printf("level=info component=settler msg=\"trade not settleable; skipping\" trade_id=%s status=%s",
				trade.InternalID, current.Status)
		}
		return nil
	}

	trade.Status = domain.StatusSettled
	trade.SharedHash = &sharedHash
	trade.SettledAt = &settledAt
	trade.Version++

	log.Printf("level=info component=settler msg=\"trade settled\" external_order_id=%s settled_at=%s version=%d",
		trade.ExternalOrderID, settledAt.Format(time.RFC3339), trade.Version)

	s.anchor(ctx, trade, sharedHash)

	if err := s.publisher.PublishTrade(ctx, domain.ChannelTradeSettled, trade); err != nil {
		// The settlement write is committed and cannot be repeated; a
		// redelivered message takes the no-op path above. The stalled
		// confirmation is the recoverable part, so requeue for that.
		return fmt.Errorf("publish %s: %w", domain.ChannelTradeSettled, err)
	}
	return nil
}

// anchor submits the composite digest to the external gateway when one is
// configured. Anchoring never blocks or fails settlement: errors are reported
// and dropped, and the ledger write above stays committed either way.
func (s *Settler) anchor(ctx context.Context, trade *domain.Trade, sharedHash string) {
	if !s.chain.Configured() {
		return
	}

	anchorHash := seal.ComputeAnchorHash(trade.ExternalOrderID, sharedHash, trade.Timestamp)
	txHash, err := s.chain.AnchorHash(ctx, trade.ExternalOrderID, anchorHash)
	if err != nil {
		log.Printf("level=error component=settler msg=\"anchoring failed; settlement unaffected\" external_order_id=%s err=%v",
			trade.ExternalOrderID, err)
		return
	}

	if err := s.repo.SetAnchorTxHash(ctx, trade.InternalID, txHash); err != nil {
		log.Printf("level=error component=settler msg=\"anchor tx hash not recorded\" external_order_id=%s tx=%s err=%v",
			trade.ExternalOrderID, txHash, err)
		return
	}

	trade.AnchorTxHash = &txHash
	log.Printf("level=info component=settler msg=\"trade anchored\" external_order_id=%s tx=%s",
		trade.ExternalOrderID, txHash)
}
