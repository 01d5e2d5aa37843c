package app

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridianfs/tradeseal/internal/domain"
	"github.com/meridianfs/tradeseal/internal/store"
)

func submitRequest(externalOrderID, amount string) domain.SubmitTradeRequest {
	return domain.SubmitTradeRequest{
		ExternalOrderID: externalOrderID,
		Amount:          decimal.RequireFromString(amount),
	}
}

func TestSubmit_NewTradePersistsBeforePublishing(t *testing.T) {
	var inserted *domain.Trade
	repo := &repoStub{
		findByExt: func(string) (*domain.Trade, error) { return nil, store.ErrTradeNotFound },
		insert: func(trade *domain.Trade) error {
			inserted = trade
			return nil
		},
	}
	pub := &publisherStub{}
	gateway := NewGateway(repo, pub, "Hargreaves Lansdown", "Schroders")

	result, err := gateway.Submit(context.Background(), submitRequest("ORD-2", "500.00"))
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if !result.IsNew {
		t.Fatal("expected a new trade")
	}
	if inserted == nil {
		t.Fatal("expected the trade to be persisted")
	}
	if inserted.Status != domain.StatusPending {
		t.Fatalf("expected Pending status, got %s", inserted.Status)
	}
	if inserted.Distributor != "Hargreaves Lansdown" || inserted.AssetManager != "Schroders" {
		t.Fatalf("unexpected parties: %s / %s", inserted.Distributor, inserted.AssetManager)
	}
	if inserted.Timestamp != inserted.Timestamp.Truncate(time.Millisecond) {
		t.Fatal("expected a millisecond-precision timestamp")
	}

	if len(pub.published) != 1 {
		t.Fatalf("expected exactly one publish, got %d", len(pub.published))
	}
	if pub.published[0].channel != domain.ChannelTradeRequested {
		t.Fatalf("expected %s, got %s", domain.ChannelTradeRequested, pub.published[0].channel)
	}
	if pub.published[0].trade.InternalID != inserted.InternalID {
		t.Fatal("published record does not match the persisted record")
	}
}

func TestSubmit_DuplicateReturnsOriginalWithoutRepublishing(t *testing.T) {
	original := domain.NewTrade("ORD-2", "Hargreaves Lansdown", "Schroders", decimal.RequireFromString("500.00"))
	repo := &repoStub{
		findByExt: func(externalOrderID string) (*domain.Trade, error) {
			if externalOrderID == "ORD-2" {
				return original, nil
			}
			return nil, store.ErrTradeNotFound
		},
	}
	pub := &publisherStub{}
	gateway := NewGateway(repo, pub, "Hargreaves Lansdown", "Schroders")

	result, err := gateway.Submit(context.Background(), submitRequest("ORD-2", "500.00"))
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if result.IsNew {
		t.Fatal("expected duplicate result")
	}
	if result.Trade.InternalID != original.InternalID {
		t.Fatal("expected the original record back")
	}
	if !result.Trade.Timestamp.Equal(original.Timestamp) {
		t.Fatal("expected the original timestamp back")
	}
	if len(pub.published) != 0 {
		t.Fatalf("duplicate submission must not publish, got %d events", len(pub.published))
	}
}

func TestSubmit_ConcurrentDuplicateInsertTakesDuplicatePath(t *testing.T) {
	winner := domain.NewTrade("ORD-9", "Hargreaves Lansdown", "Schroders", decimal.RequireFromString("100.00"))
	lookups := 0
	repo := &repoStub{
		findByExt: func(string) (*domain.Trade, error) {
			lookups++
			if lookups == 1 {
				// Not visible yet at the idempotency check.
				return nil, store.ErrTradeNotFound
			}
			return winner, nil
		},
		insert: func(*domain.Trade) error { return store.ErrDuplicateExternalOrderID },
	}
	pub := &publisherStub{}
	gateway := NewGateway(repo, pub, "Hargreaves Lansdown", "Schroders")

	result, err := gateway.Submit(context.Background(), submitRequest("ORD-9", "100.00"))
	if err != nil {
		t.Fatalf("expected the conflict to resolve as a duplicate, got error: %v", err)
	}
	if result.IsNew {
		t.Fatal("expected duplicate result after losing the insert race")
	}
	if result.Trade.InternalID != winner.InternalID {
		t.Fatal("expected the winning record back")
	}
	if len(pub.published) != 0 {
		t.Fatal("losing an insert race must not publish")
	}
}

func TestSubmit_StoreFailureIsFatalAndUnpublished(t *testing.T) {
	repo := &repoStub{
		findByExt: func(string) (*domain.Trade, error) { return nil, store.ErrTradeNotFound },
		insert:    func(*domain.Trade) error { return errStubStore },
	}
	pub := &publisherStub{}
	gateway := NewGateway(repo, pub, "Hargreaves Lansdown", "Schroders")

	if _, err := gateway.Submit(context.Background(), submitRequest("ORD-3", "10.00")); err == nil {
		t.Fatal("expected store failure to surface")
	}
	if len(pub.published) != 0 {
		t.Fatal("no event may be published when persistence fails")
	}
}

func TestSubmit_DefaultsAssetManagerWhenAbsent(t *testing.T) {
	var inserted *domain.Trade
	repo := &repoStub{
		findByExt: func(string) (*domain.Trade, error) { return nil, store.ErrTradeNotFound },
		insert: func(trade *domain.Trade) error {
			inserted = trade
			return nil
		},
	}
	gateway := NewGateway(repo, &publisherStub{}, "Hargreaves Lansdown", "Schroders")

	req := submitRequest("ORD-4", "25.00")
	req.AssetManager = ""
	if _, err := gateway.Submit(context.Background(), req); err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if inserted.AssetManager != "Schroders" {
		t.Fatalf("expected default asset manager, got %q", inserted.AssetManager)
	}
}
