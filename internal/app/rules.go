package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/meridianfs/tradeseal/internal/domain"
)

// futureSkewTolerance is how far ahead of the validator's clock a trade
// timestamp may sit before it is rejected.
const futureSkewTolerance = 5 * time.Minute

// Rule is one business validation check. Check returns "" on pass or a
// human-readable rejection reason on fail.
type Rule struct {
	Name  string
	Check func(t *domain.Trade) string
}

// ValidationRules is the fixed, ordered rule set. Evaluation is fail-fast:
// the first failing rule supplies the rejection reason, so the order here
// determines which reason a multiply-invalid trade reports.
var ValidationRules = []Rule{
	{
		Name: "ExternalOrderId_Required",
		Check: func(t *domain.Trade) string {
			if strings.TrimSpace(t.ExternalOrderID) == "" {
				return "ExternalOrderId must not be empty."
			}
			return ""
		},
	},
	{
		Name: "Amount_MustBePositive",
		Check: func(t *domain.Trade) string {
			if !t.Amount.IsPositive() {
				return fmt.Sprintf("Amount must be greater than zero. Received: %s", t.Amount.StringFixed(2))
			}
			return ""
		},
	},
	{
		Name: "Amount_BelowMaximum",
		Check: func(t *domain.Trade) string {
			if t.Amount.GreaterThan(domain.MaxTradeAmount) {
				return fmt.Sprintf("Amount %s exceeds the single-trade maximum of %s.",
					t.Amount.StringFixed(2), domain.MaxTradeAmount.StringFixed(2))
			}
			return ""
		},
	},
	{
		Name: "Distributor_Required",
		Check: func(t *domain.Trade) string {
			if strings.TrimSpace(t.Distributor) == "" {
				return "Distributor name must not be empty."
			}
			return ""
		},
	},
	{
		Name: "AssetManager_Required",
		Check: func(t *domain.Trade) string {
			if strings.TrimSpace(t.AssetManager) == "" {
				return "AssetManager name must not be empty."
			}
			return ""
		},
	},
	{
		Name: "Timestamp_NotInFuture",
		Check: func(t *domain.Trade) string {
			if t.Timestamp.After(time.Now().UTC().Add(futureSkewTolerance)) {
				return fmt.Sprintf("Trade timestamp %s is more than 5 minutes in the future.",
					t.Timestamp.Format(time.RFC3339))
			}
			return ""
		},
	},
}

// EvaluateRules runs the rule set in order and returns the name and reason of
// the first failing rule, or ("", "") when every rule passes.
func EvaluateRules(t *domain.Trade) (ruleName, reason string) {
	for _, rule := range ValidationRules {
		if r := rule.Check(t); r != "" {
			return rule.Name, r
		}
	}
	return "", ""
}
