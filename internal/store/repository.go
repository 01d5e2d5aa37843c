/**
 * @description
 * This file defines the `Repository` interface, the contract for every ledger
 * operation the pipeline services need. Defining an interface decouples the
 * business logic from PostgreSQL and lets tests substitute in-memory stubs.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: Trade internal identifiers.
 * - internal/domain: The trade record model.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/meridianfs/tradeseal/internal/domain"
)

// Repository defines the set of methods for interacting with the trade ledger.
type Repository interface {
	// EnsureSchema applies the trades table, the unique index on
	// external_order_id and the change-notification trigger. Idempotent;
	// every service calls it at startup.
	EnsureSchema(ctx context.Context) error

	FindByID(ctx context.Context, internalID uuid.UUID) (*domain.Trade, error)
	FindByExternalOrderID(ctx context.Context, externalOrderID string) (*domain.Trade, error)
	// ListRecent returns up to limit trades ordered by timestamp descending.
	ListRecent(ctx context.Context, limit int) ([]domain.Trade, error)

	// Insert persists a new Pending trade. Returns ErrDuplicateExternalOrderID
	// when the unique index rejects the external order id, so the caller can
	// take the idempotent-duplicate path instead of failing.
	Insert(ctx context.Context, trade *domain.Trade) error

	// ApplyValidationOutcome conditionally moves a Pending trade to Validated
	// or Rejected. Reports false when no row matched: either the trade has
	// already left Pending (message redelivery) or it does not exist.
	ApplyValidationOutcome(ctx context.Context, internalID uuid.UUID, status domain.TradeStatus, rejectionReason *string) (bool, error)

	// MarkSettled conditionally seals a Validated trade: sets Settled, the
	// shared hash and settledAt, and increments version by exactly one.
	// Reports false when no row matched, which the settler treats as an
	// already-settled redelivery no-op.
	MarkSettled(ctx context.Context, internalID uuid.UUID, sharedHash string, settledAt time.Time) (bool, error)

	// SetAnchorTxHash records the external anchoring transaction reference.
	// Best-effort follow-up to MarkSettled; never part of the settlement write.
	SetAnchorTxHash(ctx context.Context, internalID uuid.UUID, txHash string) error

	// Watch blocks delivering every inserted or updated trade to onChange until
	// ctx is cancelled (returns ctx.Err()) or the feed connection fails
	// (returns the underlying error, caller reconnects).
	Watch(ctx context.Context, onChange func(*domain.Trade)) error
}
