/**
 * @description
 * This file implements the entry gateway: the idempotent intake of new trade
 * instructions. A submission is looked up by its external order id first; a
 * known id returns the existing record untouched. A new trade is persisted
 * before its trade.requested event is published, so no event can ever
 * reference a record that does not exist yet.
 *
 * @dependencies
 * - internal/store: Ledger repository interface and sentinel errors.
 * - internal/domain: Trade record and channel names.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/meridianfs/tradeseal/internal/domain"
	"github.com/meridianfs/tradeseal/internal/store"
)

// SubmitResult is the outcome of a trade submission: the record (new or
// pre-existing) and which of the two it is.
type SubmitResult struct {
	Trade *domain.Trade
	IsNew bool
}

// Gateway accepts trade instructions from the distributor client.
type Gateway struct {
	repo                store.Repository
	publisher           Publisher
	distributor         string
	defaultAssetManager string
}

func NewGateway(repo store.Repository, publisher Publisher, distributor, defaultAssetManager string) *Gateway {
	return &Gateway{
		repo:                repo,
		publisher:           publisher,
		distributor:         distributor,
		defaultAssetManager: defaultAssetManager,
	}
}

// Submit records a trade instruction exactly once per external order id.
//
// A store write failure is fatal to the call: nothing is published, the caller
// sees the error, and a retry of the same submission remains safe.
func (g *Gateway) Submit(ctx context.Context, req domain.SubmitTradeRequest) (*SubmitResult, error) {
	existing, err := g.repo.FindByExternalOrderID(ctx, req.ExternalOrderID)
	if err == nil {
		log.Printf("level=warn component=gateway msg=\"idempotency hit\" external_order_id=%s trade_id=%s",
			req.ExternalOrderID, existing.InternalID)
		return &SubmitResult{Trade: existing, IsNew: false}, nil
	}
	if !errors.Is(err, store.ErrTradeNotFound) {
		return nil, fmt.Errorf("idempotency lookup: %w", err)
	}

	assetManager := req.AssetManager
	if assetManager == "" {
		assetManager = g.defaultAssetManager
	}
	trade := domain.NewTrade(req.ExternalOrderID, g.distributor, assetManager, req.Amount)

	if err := g.repo.Insert(ctx, trade); err != nil {
		if errors.Is(err, store.ErrDuplicateExternalOrderID) {
			// Lost a race with a concurrent duplicate submission. Treat it
			// exactly like the found-duplicate path above.
			winner, findErr := g.repo.FindByExternalOrderID(ctx, req.ExternalOrderID)
			if findErr != nil {
				return nil, fmt.Errorf("fetch after duplicate insert: %w", findErr)
			}
			log.Printf("level=warn component=gateway msg=\"concurrent duplicate submission\" external_order_id=%s trade_id=%s",
				req.ExternalOrderID, winner.InternalID)
			return &SubmitResult{Trade: winner, IsNew: false}, nil
		}
		return nil, fmt.Errorf("persist trade: %w", err)
	}

	log.Printf("level=info component=gateway msg=\"trade persisted\" trade_id=%s external_order_id=%s amount=%s status=%s",
		trade.InternalID, trade.ExternalOrderID, trade.Amount.StringFixed(2), trade.Status)

	if err := g.publisher.PublishTrade(ctx, domain.ChannelTradeRequested, trade); err != nil {
		// The record is durable; a stuck publish will surface as a stalled
		// pipeline, not as lost data.
		return nil, fmt.Errorf("publish %s: %w", domain.ChannelTradeRequested, err)
	}

	log.Printf("level=info component=gateway msg=\"event published\" channel=%s external_order_id=%s",
		domain.ChannelTradeRequested, trade.ExternalOrderID)

	return &SubmitResult{Trade: trade, IsNew: true}, nil
}
