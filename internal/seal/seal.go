/**
 * @description
 * This package computes and verifies the cryptographic seal that makes a settled
 * trade tamper-evident, plus the composite digest submitted to the external
 * anchoring gateway.
 *
 * Seal formula:   SHA256( externalOrderId + amount formatted to 2dp + timestamp ISO-8601 ms )
 * Anchor formula: Keccak256( externalOrderId + sealHex + timestamp ISO-8601 ms )
 *
 * Pure functions: no I/O, no dependencies on the store or the bus. Any service
 * (or an external auditor holding the record) can recompute and compare.
 */

package seal

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"

	"github.com/meridianfs/tradeseal/internal/domain"
)

// TimeLayout is the canonical timestamp encoding hashed into the seal:
// ISO-8601 UTC with exactly millisecond precision. Timestamps are truncated to
// milliseconds at intake, so formatting loses nothing.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// ComputeHash returns the lowercase hex SHA-256 seal for a trade's identity
// fields. It reads only ExternalOrderID, Amount and Timestamp.
func ComputeHash(t *domain.Trade) string {
	return ComputeHashFields(t.ExternalOrderID, t.Amount, t.Timestamp)
}

// ComputeHashFields is the field-level form of ComputeHash, used by auditors
// that hold the raw values rather than a Trade.
func ComputeHashFields(externalOrderID string, amount decimal.Decimal, timestamp time.Time) string {
	ts := timestamp.UTC().Truncate(time.Millisecond)
	raw := externalOrderID + amount.StringFixed(2) + ts.Format(TimeLayout)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// VerifyHash reports whether the trade's stored seal matches a recomputation
// from its current field values. False when no seal has been applied yet.
// Comparison is case-insensitive so seals recorded as uppercase hex still verify.
func VerifyHash(t *domain.Trade) bool {
	if t.SharedHash == nil || *t.SharedHash == "" {
		return false
	}
	return strings.EqualFold(ComputeHash(t), *t.SharedHash)
}

// ComputeAnchorHash returns the Keccak-256 composite digest submitted to the
// external anchoring gateway, as 0x-prefixed lowercase hex.
func ComputeAnchorHash(externalOrderID, sharedHash string, timestamp time.Time) string {
	ts := timestamp.UTC().Truncate(time.Millisecond)
	raw := externalOrderID + sharedHash + ts.Format(TimeLayout)

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(raw))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}
