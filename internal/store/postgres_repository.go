/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It owns every SQL statement in the system: the trades table schema, the unique
 * idempotency index, the conditional state-machine updates, and the
 * LISTEN/NOTIFY change feed that backs the live projection.
 *
 * @dependencies
 * - context, errors, fmt, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: PostgreSQL driver and connection pool.
 * - internal/domain: The trade record model.
 *
 * @notes
 * - State transitions are enforced by the WHERE clause of each UPDATE, never by
 *   a read-then-write in Go. A redelivered message re-running an UPDATE matches
 *   zero rows and becomes a no-op instead of a corruption.
 * - Amounts travel as text between Go and NUMERIC(18,2) so the fixed-point value
 *   survives without a driver-level decimal codec.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/meridianfs/tradeseal/internal/domain"
)

var (
	ErrTradeNotFound            = errors.New("trade not found")
	ErrDuplicateExternalOrderID = errors.New("external order id already exists")
)

// notifyChannel is the pg_notify channel the trades trigger fires on.
const notifyChannel = "trade_events"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS trades (
	internal_id       UUID PRIMARY KEY,
	external_order_id TEXT NOT NULL,
	distributor       TEXT NOT NULL,
	asset_manager     TEXT NOT NULL,
	amount            NUMERIC(18,2) NOT NULL,
	status            TEXT NOT NULL,
	shared_hash       TEXT,
	version           INTEGER NOT NULL DEFAULT 1,
	ts                TIMESTAMPTZ NOT NULL,
	settled_at        TIMESTAMPTZ,
	rejection_reason  TEXT,
	anchor_tx_hash    TEXT
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_trades_external_order_id
	ON trades (external_order_id);

CREATE INDEX IF NOT EXISTS idx_trades_ts
	ON trades (ts DESC);

CREATE OR REPLACE FUNCTION notify_trade_change() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('trade_events', NEW.internal_id::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS trades_notify_change ON trades;
CREATE TRIGGER trades_notify_change
	AFTER INSERT OR UPDATE ON trades
	FOR EACH ROW EXECUTE FUNCTION notify_trade_change();
`

const tradeColumns = `internal_id, external_order_id, distributor, asset_manager,
	amount::text, status, shared_hash, version, ts, settled_at, rejection_reason, anchor_tx_hash`

// PostgresRepository is the concrete Repository backed by a pgx pool.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// EnsureSchema creates the trades table, indexes and notify trigger. Safe to
// run from every service at startup.
func (r *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade
	var amount string
	err := row.Scan(
		&t.InternalID,
		&t.ExternalOrderID,
		&t.Distributor,
		&t.AssetManager,
		&amount,
		&t.Status,
		&t.SharedHash,
		&t.Version,
		&t.Timestamp,
		&t.SettledAt,
		&t.RejectionReason,
		&t.AnchorTxHash,
	)
	if err != nil {
		return nil, err
	}

	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}

	t.Timestamp = t.Timestamp.UTC()
	if t.SettledAt != nil {
		utc := t.SettledAt.UTC()
		t.SettledAt = &utc
	}
	return &t, nil
}

// FindByID retrieves a trade by its internal id.
func (r *PostgresRepository) FindByID(ctx context.Context, internalID uuid.UUID) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE internal_id = $1`
	t, err := scanTrade(r.db.QueryRow(ctx, query, internalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}
	return t, nil
}

// FindByExternalOrderID retrieves a trade by the client-supplied idempotency key.
func (r *PostgresRepository) FindByExternalOrderID(ctx context.Context, externalOrderID string) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE external_order_id = $1`
	t, err := scanTrade(r.db.QueryRow(ctx, query, externalOrderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTradeNotFound
		}
		return nil, err
	}
	return t, nil
}

// ListRecent returns up to limit trades, newest first.
func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]domain.Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + tradeColumns + ` FROM trades ORDER BY ts DESC LIMIT $1`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trades []domain.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

// Insert persists a new trade. A unique-index conflict on external_order_id is
// reported as ErrDuplicateExternalOrderID so the gateway can treat a concurrent
// duplicate submission exactly like a found duplicate.
func (r *PostgresRepository) Insert(ctx context.Context, trade *domain.Trade) error {
	query := `
		INSERT INTO trades (internal_id, external_order_id, distributor, asset_manager,
			amount, status, version, ts)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8)
	`
	_, err := r.db.Exec(ctx, query,
		trade.InternalID,
		trade.ExternalOrderID,
		trade.Distributor,
		trade.AssetManager,
		trade.Amount.StringFixed(2),
		trade.Status,
		trade.Version,
		trade.Timestamp,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrDuplicateExternalOrderID
		}
		return err
	}
	return nil
}

// ApplyValidationOutcome moves a Pending trade to Validated or Rejected.
// The status predicate in the WHERE clause makes redelivered outcomes no-ops.
func (r *PostgresRepository) ApplyValidationOutcome(ctx context.Context, internalID uuid.UUID, status domain.TradeStatus, rejectionReason *string) (bool, error) {
	if status != domain.StatusValidated && status != domain.StatusRejected {
		return false, fmt.Errorf("invalid validation outcome %q", status)
	}
	query := `
		UPDATE trades
		SET status = $2, rejection_reason = $3
		WHERE internal_id = $1 AND status = $4
	`
	tag, err := r.db.Exec(ctx, query, internalID, status, rejectionReason, domain.StatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// MarkSettled seals a Validated trade. The WHERE clause guarantees at-most-once
// effect: a second call for the same trade matches zero rows.
func (r *PostgresRepository) MarkSettled(ctx context.Context, internalID uuid.UUID, sharedHash string, settledAt time.Time) (bool, error) {
	query := `
		UPDATE trades
		SET status = $2, shared_hash = $3, settled_at = $4, version = version + 1
		WHERE internal_id = $1 AND status = $5
	`
	tag, err := r.db.Exec(ctx, query,
		internalID, domain.StatusSettled, sharedHash, settledAt, domain.StatusValidated)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// SetAnchorTxHash records the anchoring transaction reference after settlement.
func (r *PostgresRepository) SetAnchorTxHash(ctx context.Context, internalID uuid.UUID, txHash string) error {
	query := `UPDATE trades SET anchor_tx_hash = $2 WHERE internal_id = $1`
	_, err := r.db.Exec(ctx, query, internalID, txHash)
	return err
}

// Watch holds a dedicated connection on LISTEN and delivers each changed trade
// to onChange. Returns ctx.Err() on cancellation, or the connection error on a
// feed fault; the caller decides between exiting and reconnecting.
func (r *PostgresRepository) Watch(ctx context.Context, onChange func(*domain.Trade)) error {
	conn, err := r.db.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire watch connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen %s: %w", notifyChannel, err)
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("wait for notification: %w", err)
		}

		internalID, err := uuid.Parse(notification.Payload)
		if err != nil {
			log.Printf("level=warn component=store msg=\"notify payload is not a trade id\" payload=%q", notification.Payload)
			continue
		}

		trade, err := r.FindByID(ctx, internalID)
		if err != nil {
			if errors.Is(err, ErrTradeNotFound) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("fetch changed trade %s: %w", internalID, err)
		}
		onChange(trade)
	}
}
