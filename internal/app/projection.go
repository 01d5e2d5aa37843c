/**
 * @description
 * This file implements the live projection: an in-memory, newest-first
 * snapshot of the trade ledger plus a registry of observers notified on every
 * change. The snapshot is seeded with a bulk load, then kept current by one of
 * two mutually exclusive sources chosen per deployment: the store's change
 * feed or a trade.settled bus subscription.
 *
 * The snapshot is the only mutable shared state in the process; a mutex
 * serializes the feed handler against concurrent readers.
 */

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfs/tradeseal/internal/domain"
	"github.com/meridianfs/tradeseal/internal/store"
	"github.com/meridianfs/tradeseal/pkg/rabbitmq"
)

// reconnectDelay is the fixed backoff between change-feed reconnect attempts.
const reconnectDelay = 5 * time.Second

// Observer receives every trade change applied to the projection.
type Observer func(trade *domain.Trade)

// Projection maintains the ordered snapshot and dispatches change
// notifications.
type Projection struct {
	repo          store.Repository
	snapshotLimit int

	mu        sync.RWMutex
	snapshot  []*domain.Trade
	observers []Observer
}

func NewProjection(repo store.Repository, snapshotLimit int) *Projection {
	if snapshotLimit <= 0 {
		snapshotLimit = 200
	}
	return &Projection{repo: repo, snapshotLimit: snapshotLimit}
}

// Subscribe registers an observer. Registration happens at wiring time, before
// the feed starts; observers are never removed.
func (p *Projection) Subscribe(obs Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, obs)
}

// Snapshot returns a point-in-time copy of the ordered snapshot, newest first.
func (p *Projection) Snapshot() []domain.Trade {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Trade, len(p.snapshot))
	for i, t := range p.snapshot {
		out[i] = *t
	}
	return out
}

// Load seeds the snapshot with the most recent trades. A failed bulk load is
// logged, not fatal: the projection fills in from the live feed.
func (p *Projection) Load(ctx context.Context) {
	recent, err := p.repo.ListRecent(ctx, p.snapshotLimit)
	if err != nil {
		log.Printf("level=error component=projection msg=\"initial snapshot load failed\" err=%v", err)
		return
	}

	p.mu.Lock()
	p.snapshot = p.snapshot[:0]
	for i := range recent {
		t := recent[i]
		p.snapshot = append(p.snapshot, &t)
	}
	p.mu.Unlock()

	log.Printf("level=info component=projection msg=\"snapshot loaded\" trades=%d", len(recent))
}

// Apply folds one changed trade into the snapshot, replacing in place when
// the internal id is known and prepending otherwise, then notifies every
// observer.
func (p *Projection) Apply(trade *domain.Trade) {
	p.mu.Lock()
	replaced := false
	for i, existing := range p.snapshot {
		if existing.InternalID == trade.InternalID {
			p.snapshot[i] = trade
			replaced = true
			break
		}
	}
	if !replaced {
		p.snapshot = append([]*domain.Trade{trade}, p.snapshot...)
	}
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.Unlock()

	log.Printf("level=info component=projection msg=\"trade change applied\" external_order_id=%s status=%s",
		trade.ExternalOrderID, trade.Status)

	for _, obs := range observers {
		obs(trade)
	}
}

// RunLedgerFeed keeps the projection current from the store change feed,
// reconnecting with a fixed backoff on faults. Cancellation exits the loop
// cleanly; it is never treated as an error.
func (p *Projection) RunLedgerFeed(ctx context.Context) {
	for {
		log.Printf("level=info component=projection msg=\"opening ledger change feed\"")
		err := p.repo.Watch(ctx, p.Apply)
		if ctx.Err() != nil {
			log.Printf("level=info component=projection msg=\"ledger feed stopped\"")
			return
		}
		log.Printf("level=error component=projection msg=\"ledger feed disconnected; reconnecting\" delay=%s err=%v",
			reconnectDelay, err)

		select {
		case <-ctx.Done():
			log.Printf("level=info component=projection msg=\"ledger feed stopped\"")
			return
		case <-time.After(reconnectDelay):
		}
	}
}

// HandleSettledMessage is the bus entry point when the projection runs from a
// trade.settled subscription instead of the ledger feed.
func (p *Projection) HandleSettledMessage(body []byte) rabbitmq.Disposition {
	var trade domain.Trade
	if err := json.Unmarshal(body, &trade); err != nil {
		log.Printf("level=error component=projection msg=\"undecodable message body\" err=%v", err)
		return rabbitmq.DeadLetter
	}
	if trade.InternalID == uuid.Nil {
		log.Printf("level=error component=projection msg=\"message missing internal id\"")
		return rabbitmq.DeadLetter
	}
	p.Apply(&trade)
	return rabbitmq.Ack
}

// FeedSource selects the projection's live-update source.
type FeedSource string

const (
	FeedLedger FeedSource = "ledger"
	FeedBus    FeedSource = "bus"
)

// ParseFeedSource validates a configured source name.
func ParseFeedSource(raw string) (FeedSource, error) {
	switch FeedSource(raw) {
	case FeedLedger, FeedBus:
		return FeedSource(raw), nil
	default:
		return "", fmt.Errorf("projection source must be %q or %q, got %q", FeedLedger, FeedBus, raw)
	}
}
