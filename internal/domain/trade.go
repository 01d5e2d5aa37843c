/**
 * @description
 * This file defines the core domain model for the settlement pipeline: the trade
 * record that flows through every service. The same struct is the database row,
 * the message body on the event bus, and the API response payload.
 *
 * @notes
 * - Amounts use shopspring/decimal. The cryptographic seal is computed over the
 *   amount formatted to two decimal places, so the amount must be carried as a
 *   fixed-point value end to end; a float64 would not round-trip deterministically.
 * - Timestamps are truncated to millisecond precision at intake. The seal is
 *   computed over the millisecond-precision timestamp, and the database column
 *   stores no finer resolution, so every service recomputes the same hash.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeStatus is the state machine position of a trade.
// Legal transitions: Pending→Validated, Pending→Rejected, Validated→Settled.
// Rejected and Settled are terminal.
type TradeStatus string

const (
	StatusPending   TradeStatus = "Pending"
	StatusValidated TradeStatus = "Validated"
	StatusRejected  TradeStatus = "Rejected"
	StatusSettled   TradeStatus = "Settled"
)

// MaxTradeAmount is the single-trade ceiling enforced by the validation rules.
var MaxTradeAmount = decimal.NewFromInt(100_000_000)

// Trade is the ledger record for one trade instruction.
type Trade struct {
	InternalID      uuid.UUID       `json:"internalId"`
	ExternalOrderID string          `json:"externalOrderId"`
	Distributor     string          `json:"distributor"`
	AssetManager    string          `json:"assetManager"`
	Amount          decimal.Decimal `json:"amount"`
	Status          TradeStatus     `json:"status"`
	SharedHash      *string         `json:"sharedHash,omitempty"`
	Version         int             `json:"version"`
	Timestamp       time.Time       `json:"timestamp"`
	SettledAt       *time.Time      `json:"settledAt,omitempty"`
	RejectionReason *string         `json:"rejectionReason,omitempty"`
	AnchorTxHash    *string         `json:"anchorTxHash,omitempty"`
}

// NewTrade builds a Pending trade with a fresh internal id and a
// millisecond-precision UTC timestamp.
func NewTrade(externalOrderID, distributor, assetManager string, amount decimal.Decimal) *Trade {
	return &Trade{
		InternalID:      uuid.New(),
		ExternalOrderID: externalOrderID,
		Distributor:     distributor,
		AssetManager:    assetManager,
		Amount:          amount,
		Status:          StatusPending,
		Version:         1,
		Timestamp:       time.Now().UTC().Truncate(time.Millisecond),
	}
}

// SubmitTradeRequest is the inbound intake payload from the distributor client.
type SubmitTradeRequest struct {
	ExternalOrderID string          `json:"externalOrderId"`
	Amount          decimal.Decimal `json:"amount"`
	AssetManager    string          `json:"assetManager,omitempty"`
}
