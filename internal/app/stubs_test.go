package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfs/tradeseal/internal/domain"
	"github.com/meridianfs/tradeseal/internal/store"
)

// repoStub satisfies store.Repository through per-test function fields; any
// method a test does not configure fails loudly via the embedded nil interface.
type repoStub struct {
	store.Repository

	findByID     func(internalID uuid.UUID) (*domain.Trade, error)
	findByExt    func(externalOrderID string) (*domain.Trade, error)
	listRecent   func(limit int) ([]domain.Trade, error)
	insert       func(trade *domain.Trade) error
	applyOutcome func(internalID uuid.UUID, status domain.TradeStatus, reason *string) (bool, error)
	markSettled  func(internalID uuid.UUID, sharedHash string, settledAt time.Time) (bool, error)
	setAnchorTx  func(internalID uuid.UUID, txHash string) error
	watch        func(ctx context.Context, onChange func(*domain.Trade)) error
}

func (s *repoStub) FindByID(ctx context.Context, internalID uuid.UUID) (*domain.Trade, error) {
	return s.findByID(internalID)
}

func (s *repoStub) FindByExternalOrderID(ctx context.Context, externalOrderID string) (*domain.Trade, error) {
	return s.findByExt(externalOrderID)
}

func (s *repoStub) ListRecent(ctx context.Context, limit int) ([]domain.Trade, error) {
	return s.listRecent(limit)
}

func (s *repoStub) Insert(ctx context.Context, trade *domain.Trade) error {
	return s.insert(trade)
}

func (s *repoStub) ApplyValidationOutcome(ctx context.Context, internalID uuid.UUID, status domain.TradeStatus, reason *string) (bool, error) {
	return s.applyOutcome(internalID, status, reason)
}

func (s *repoStub) MarkSettled(ctx context.Context, internalID uuid.UUID, sharedHash string, settledAt time.Time) (bool, error) {
	return s.markSettled(internalID, sharedHash, settledAt)
}

func (s *repoStub) SetAnchorTxHash(ctx context.Context, internalID uuid.UUID, txHash string) error {
	return s.setAnchorTx(internalID, txHash)
}

func (s *repoStub) Watch(ctx context.Context, onChange func(*domain.Trade)) error {
	return s.watch(ctx, onChange)
}

// publishedEvent records one PublishTrade call.
type publishedEvent struct {
	channel string
	trade   domain.Trade
}

type publisherStub struct {
	published []publishedEvent
	err       error
}

func (p *publisherStub) PublishTrade(ctx context.Context, channel string, trade *domain.Trade) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, publishedEvent{channel: channel, trade: *trade})
	return nil
}

var errStubStore = errors.New("stub store failure")
