/**
 * @description
 * This file implements the validation engine: the consumer of trade.requested
 * events. It runs the ordered rule set, writes the outcome to the ledger with
 * a conditional update, then publishes trade.validated or trade.rejected.
 *
 * Redelivery of an already-validated trade rewinds nothing: the conditional
 * write matches zero rows and the outcome event is republished from the stored
 * state, which downstream consumers deduplicate on their own conditional writes.
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
	"github.com/meridianfs/tradeseal/internal/store"
	"github.com/meridianfs/tradeseal/pkg/rabbitmq"
)

// handlerTimeout bounds the store and bus work done for one message.
const handlerTimeout = 15 * time.Second

// Validator consumes trade.requested events and decides each trade's fate.
type Validator struct {
	repo      store.Repository
	publisher Publisher
}

func NewValidator(repo store.Repository, publisher Publisher) *Validator {
	return &Validator{repo: repo, publisher: publisher}
}

// HandleMessage is the bus entry point for one trade.requested delivery.
func (v *Validator) HandleMessage(body []byte) rabbitmq.Disposition {
	var trade domain.Trade
	if err := json.Unmarshal(body, &trade); err != nil {
		log.Printf("level=error component=validator msg=\"undecodable message body\" err=%v", err)
		return rabbitmq.DeadLetter
	}
	if trade.InternalID == uuid.Nil {
		log.Printf("level=error component=validator msg=\"message missing internal id\"")
		return rabbitmq.DeadLetter
	}

	ctx, cancel := context.WithTimeout(context.Background(), handlerTimeout)
	defer cancel()

	if err := v.ValidateAndPublish(ctx, &trade); err != nil {
		log.Printf("level=error component=validator msg=\"processing failed; message will be redelivered\" external_order_id=%s err=%v",
			trade.ExternalOrderID, err)
		return rabbitmq.Requeue
	}
	return rabbitmq.Ack
}

// ValidateAndPublish runs the rules against trade, persists the outcome and
// publishes the matching event.
func (v *Validator) ValidateAndPublish(ctx context.Context, trade *domain.Trade) error {
	log.Printf("level=info component=validator msg=\"validating\" external_order_id=%s amount=%s",
		trade.ExternalOrderID, trade.Amount.StringFixed(2))

	ruleName, reason := EvaluateRules(trade)
	if reason != "" {
		trade.Status = domain.StatusRejected
		trade.RejectionReason = &reason
		log.Printf("level=warn component=validator msg=\"trade rejected\" external_order_id=%s rule=%s reason=%q",
			trade.ExternalOrderID, ruleName, reason)
	} else {
		trade.Status = domain.StatusValidated
		trade.RejectionReason = nil
		log.Printf("level=info component=validator msg=\"trade validated\" external_order_id=%s rules=%d",
			trade.ExternalOrderID, len(ValidationRules))
	}

	applied, err := v.repo.ApplyValidationOutcome(ctx, trade.InternalID, trade.Status, trade.RejectionReason)
	if err != nil {
		return fmt.Errorf("write validation outcome: %w", err)
	}

	if !applied {
		// Redelivery, or an event for a record that never made it to the
		// ledger. Republish from the stored state so a crash between the
		// original write and publish cannot stall the pipeline.
		current, findErr := v.repo.FindByID(ctx, trade.InternalID)
		if findErr != nil {
			if errors.Is(findErr, store.ErrTradeNotFound) {
				log.Printf("level=error component=validator msg=\"event references unknown trade; dropping\" trade_id=%s",
					trade.InternalID)
				return nil
			}
			return fmt.Errorf("fetch after no-op outcome write: %w", findErr)
		}
		if current.Status != domain.StatusValidated && current.Status != domain.StatusRejected {
			log.Printf("level=info component=validator msg=\"trade already past validation; skipping\" trade_id=%s status=%s",
				trade.InternalID, current.Status)
			return nil
		}
		log.Printf("level=info component=validator msg=\"outcome already recorded; republishing\" trade_id=%s status=%s",
			trade.InternalID, current.Status)
		trade = current
	}

	channel := domain.ChannelTradeValidated
	if trade.Status == domain.StatusRejected {
		channel = domain.ChannelTradeRejected
	}
	if err := v.publisher.PublishTrade(ctx, channel, trade); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}
