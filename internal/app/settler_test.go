package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfs/tradeseal/internal/domain"
	"github.com/meridianfs/tradeseal/internal/seal"
	"github.com/meridianfs/tradeseal/internal/store"
	"github.com/meridianfs/tradeseal/pkg/chainclient"
	"github.com/meridianfs/tradeseal/pkg/rabbitmq"
)

func validatedTrade(externalOrderID string) *domain.Trade {
	trade := validTrade(externalOrderID, "50000.00")
	trade.Status = domain.StatusValidated
	return trade
}

func TestSettle_SealsAndPublishesOnce(t *testing.T) {
	trade := validatedTrade("ORD-20")

	var writtenHash string
	var writtenAt time.Time
	repo := &repoStub{
		markSettled: func(id uuid.UUID, sharedHash string, settledAt time.Time) (bool, error) {
			writtenHash = sharedHash
			writtenAt = settledAt
			return true, nil
		},
	}
	pub := &publisherStub{}
	settler := NewSettler(repo, pub, chainclient.NewClient("", ""))

	if err := settler.Settle(context.Background(), trade); err != nil {
		t.Fatalf("Settle returned error: %v", err)
	}

	if writtenHash != seal.ComputeHashFields(trade.ExternalOrderID, trade.Amount, trade.Timestamp) {
		t.Fatal("persisted hash does not match the recomputable seal")
	}
	if writtenAt.IsZero() {
		t.Fatal("expected a settledAt timestamp")
	}

	if len(pub.published) != 1 || pub.published[0].channel != domain.ChannelTradeSettled {
		t.Fatalf("expected one %s event, got %+v", domain.ChannelTradeSettled, pub.published)
	}
	published := pub.published[0].trade
	if published.Status != domain.StatusSettled {
		t.Fatalf("expected Settled, got %s", published.Status)
	}
	if published.SharedHash == nil || *published.SharedHash != writtenHash {
		t.Fatal("published record must carry the seal")
	}
	if published.Version != trade.Version {
		t.Fatal("published record must carry the incremented version")
	}
	if !seal.VerifyHash(&published) {
		t.Fatal("published record must verify against its own seal")
	}
}

func TestSettle_RedeliveryIsSilentNoOp(t *testing.T) {
	trade := validatedTrade("ORD-21")
	alreadySettled := *trade
	alreadySettled.Status = domain.StatusSettled

	repo := &repoStub{
		markSettled: func(uuid.UUID, string, time.Time) (bool, error) { return false, nil },
		findByID:    func(uuid.UUID) (*domain.Trade, error) { return &alreadySettled, nil },
	}
	pub := &publisherStub{}
	settler := NewSettler(repo, pub, chainclient.NewClient("", ""))

	if err := settler.Settle(context.Background(), trade); err != nil {
		t.Fatalf("redelivery must be a safe no-op, got error: %v", err)
	}
	if len(pub.published) != 0 {
		t.Fatalf("a redelivered settlement must not publish again, got %+v", pub.published)
	}
}

func TestSettle_UnknownRecordAcksWithoutPublishing(t *testing.T) {
	trade := validatedTrade("ORD-22")
	repo := &repoStub{
		markSettled: func(uuid.UUID, string, time.Time) (bool, error) { return false, nil },
		findByID:    func(uuid.UUID) (*domain.Trade, error) { return nil, store.ErrTradeNotFound },
	}
	pub := &publisherStub{}
	settler := NewSettler(repo, pub, chainclient.NewClient("", ""))

	if err := settler.Settle(context.Background(), trade); err != nil {
		t.Fatalf("an unknown record is a safe no-op, got error: %v", err)
	}
	if len(pub.published) != 0 {
		t.Fatal("an unknown record must not publish")
	}
}

func TestSettle_AnchoringFailureDoesNotBlockSettlement(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway exploded", http.StatusBadGateway)
	}))
	defer server.Close()

	trade := validatedTrade("ORD-23")
	repo := &repoStub{
		markSettled: func(uuid.UUID, string, time.Time) (bool, error) { return true, nil },
	}
	pub := &publisherStub{}
	settler := NewSettler(repo, pub, chainclient.NewClient(server.URL, "key"))

	if err := settler.Settle(context.Background(), trade); err != nil {
		t.Fatalf("anchoring failure must not fail settlement, got: %v", err)
	}
	if len(pub.published) != 1 {
		t.Fatalf("settlement must still publish, got %d events", len(pub.published))
	}
	if pub.published[0].trade.AnchorTxHash != nil {
		t.Fatal("no anchor reference may be set when anchoring fails")
	}
}

func TestSettle_AnchoringSuccessRecordsTxHash(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"txHash":"0xabc123"}`))
	}))
	defer server.Close()

	trade := validatedTrade("ORD-24")
	var recordedTx string
	repo := &repoStub{
		markSettled: func(uuid.UUID, string, time.Time) (bool, error) { return true, nil },
		setAnchorTx: func(id uuid.UUID, txHash string) error {
			recordedTx = txHash
			return nil
		},
	}
	pub := &publisherStub{}
	settler := NewSettler(repo, pub, chainclient.NewClient(server.URL, "key"))

	if err := settler.Settle(context.Background(), trade); err != nil {
		t.Fatalf("Settle returned error: %v", err)
	}
	if recordedTx != "0xabc123" {
		t.Fatalf("expected anchor tx recorded, got %q", recordedTx)
	}
	if pub.published[0].trade.AnchorTxHash == nil || *pub.published[0].trade.AnchorTxHash != "0xabc123" {
		t.Fatal("published record must carry the anchor tx reference")
	}
}

func TestSettlerHandleMessage_Dispositions(t *testing.T) {
	settler := NewSettler(&repoStub{}, &publisherStub{}, chainclient.NewClient("", ""))
	if got := settler.HandleMessage([]byte("not json")); got != rabbitmq.DeadLetter {
		t.Fatalf("expected DeadLetter for undecodable body, got %v", got)
	}

	failing := NewSettler(&repoStub{
		markSettled: func(uuid.UUID, string, time.Time) (bool, error) { return false, errors.New("connection reset") },
	}, &publisherStub{}, chainclient.NewClient("", ""))

	body, err := json.Marshal(validatedTrade("ORD-25"))
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	if got := failing.HandleMessage(body); got != rabbitmq.Requeue {
		t.Fatalf("expected Requeue on transient store failure, got %v", got)
	}
}
