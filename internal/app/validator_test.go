package app

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridianfs/tradeseal/internal/domain"
	"github.com/meridianfs/tradeseal/internal/store"
	"github.com/meridianfs/tradeseal/pkg/rabbitmq"
)

func TestValidateAndPublish_ValidTrade(t *testing.T) {
	trade := validTrade("ORD-10", "500.00")

	var written struct {
		status domain.TradeStatus
		reason *string
	}
	repo := &repoStub{
		applyOutcome: func(id uuid.UUID, status domain.TradeStatus, reason *string) (bool, error) {
			written.status = status
			written.reason = reason
			return true, nil
		},
	}
	pub := &publisherStub{}
	validator := NewValidator(repo, pub)

	if err := validator.ValidateAndPublish(context.Background(), trade); err != nil {
		t.Fatalf("ValidateAndPublish returned error: %v", err)
	}

	if written.status != domain.StatusValidated {
		t.Fatalf("expected Validated written to the ledger, got %s", written.status)
	}
	if written.reason != nil {
		t.Fatalf("expected no rejection reason, got %q", *written.reason)
	}
	if len(pub.published) != 1 || pub.published[0].channel != domain.ChannelTradeValidated {
		t.Fatalf("expected one %s event, got %+v", domain.ChannelTradeValidated, pub.published)
	}
	if pub.published[0].trade.Status != domain.StatusValidated {
		t.Fatal("published record must carry the Validated status")
	}
}

func TestValidateAndPublish_RejectedTradeCarriesFirstReason(t *testing.T) {
	trade := validTrade("ORD-11", "500.00")
	trade.Amount = decimal.Zero
	trade.Distributor = ""

	repo := &repoStub{
		applyOutcome: func(id uuid.UUID, status domain.TradeStatus, reason *string) (bool, error) {
			return true, nil
		},
	}
	pub := &publisherStub{}
	validator := NewValidator(repo, pub)

	if err := validator.ValidateAndPublish(context.Background(), trade); err != nil {
		t.Fatalf("ValidateAndPublish returned error: %v", err)
	}

	if len(pub.published) != 1 || pub.published[0].channel != domain.ChannelTradeRejected {
		t.Fatalf("expected one %s event, got %+v", domain.ChannelTradeRejected, pub.published)
	}
	published := pub.published[0].trade
	if published.Status != domain.StatusRejected {
		t.Fatalf("expected Rejected, got %s", published.Status)
	}
	if published.RejectionReason == nil || *published.RejectionReason == "" {
		t.Fatal("expected a rejection reason")
	}
	// Fail-fast: the amount rule outranks the distributor rule.
	if got := *published.RejectionReason; got != "Amount must be greater than zero. Received: 0.00" {
		t.Fatalf("unexpected rejection reason %q", got)
	}
}

func TestValidateAndPublish_RedeliveryRepublishesStoredOutcome(t *testing.T) {
	trade := validTrade("ORD-12", "500.00")
	stored := *trade
	stored.Status = domain.StatusValidated

	repo := &repoStub{
		applyOutcome: func(uuid.UUID, domain.TradeStatus, *string) (bool, error) { return false, nil },
		findByID:     func(uuid.UUID) (*domain.Trade, error) { return &stored, nil },
	}
	pub := &publisherStub{}
	validator := NewValidator(repo, pub)

	if err := validator.ValidateAndPublish(context.Background(), trade); err != nil {
		t.Fatalf("ValidateAndPublish returned error: %v", err)
	}
	if len(pub.published) != 1 || pub.published[0].channel != domain.ChannelTradeValidated {
		t.Fatalf("expected the stored outcome to be republished, got %+v", pub.published)
	}
}

func TestValidateAndPublish_SettledTradeIsSkipped(t *testing.T) {
	trade := validTrade("ORD-13", "500.00")
	stored := *trade
	stored.Status = domain.StatusSettled

	repo := &repoStub{
		applyOutcome: func(uuid.UUID, domain.TradeStatus, *string) (bool, error) { return false, nil },
		findByID:     func(uuid.UUID) (*domain.Trade, error) { return &stored, nil },
	}
	pub := &publisherStub{}
	validator := NewValidator(repo, pub)

	if err := validator.ValidateAndPublish(context.Background(), trade); err != nil {
		t.Fatalf("ValidateAndPublish returned error: %v", err)
	}
	if len(pub.published) != 0 {
		t.Fatalf("a trade already past validation must not republish, got %+v", pub.published)
	}
}

func TestValidateAndPublish_UnknownTradeIsDropped(t *testing.T) {
	trade := validTrade("ORD-14", "500.00")
	repo := &repoStub{
		applyOutcome: func(uuid.UUID, domain.TradeStatus, *string) (bool, error) { return false, nil },
		findByID:     func(uuid.UUID) (*domain.Trade, error) { return nil, store.ErrTradeNotFound },
	}
	pub := &publisherStub{}
	validator := NewValidator(repo, pub)

	if err := validator.ValidateAndPublish(context.Background(), trade); err != nil {
		t.Fatalf("an unknown trade is a safe no-op, got error: %v", err)
	}
	if len(pub.published) != 0 {
		t.Fatal("an unknown trade must not publish")
	}
}

func TestHandleMessage_DeadLettersGarbage(t *testing.T) {
	validator := NewValidator(&repoStub{}, &publisherStub{})

	if got := validator.HandleMessage([]byte("{not json")); got != rabbitmq.DeadLetter {
		t.Fatalf("expected DeadLetter for undecodable body, got %v", got)
	}

	missingID, _ := json.Marshal(map[string]string{"externalOrderId": "ORD-1"})
	if got := validator.HandleMessage(missingID); got != rabbitmq.DeadLetter {
		t.Fatalf("expected DeadLetter for missing internal id, got %v", got)
	}
}

func TestHandleMessage_RequeuesOnStoreFailure(t *testing.T) {
	repo := &repoStub{
		applyOutcome: func(uuid.UUID, domain.TradeStatus, *string) (bool, error) { return false, errStubStore },
	}
	validator := NewValidator(repo, &publisherStub{})

	body, err := json.Marshal(validTrade("ORD-15", "500.00"))
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	if got := validator.HandleMessage(body); got != rabbitmq.Requeue {
		t.Fatalf("expected Requeue on transient store failure, got %v", got)
	}
}
