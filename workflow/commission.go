package workflow

import (
	"sort"

	"bitbucket.org/mmtopup/recon_backend/models"
	"github.com/shopspring/decimal"
)

// topMismatchSample caps how many per-transaction commission mismatches travel
// into reports. Full detail remains queryable from the match table.
const topMismatchSample = 10

type CommissionMismatch struct {
	MatchId            string          `json:"match_id"`
	TransactionId      string          `json:"transaction_id"`
	LedgerCommission   decimal.Decimal `json:"ledger_commission"`
	SupplierCommission decimal.Decimal `json:"supplier_commission"`
	Diff               decimal.Decimal `json:"diff"`
}

type CommissionOutcome struct {
	TotalCommissionLedger   decimal.Decimal      `json:"total_commission_ledger"`
	TotalCommissionSupplier decimal.Decimal      `json:"total_commission_supplier"`
	Variance                decimal.Decimal      `json:"variance"`
	VariancePercent         decimal.Decimal      `json:"variance_percent"`
	MismatchCount           int                  `json:"mismatch_count"`
	TopMismatches           []CommissionMismatch `json:"top_mismatches"`
}

// ReconcileCommission aggregates commission totals over all matched pairs on
// each side and computes the signed variance, independently of per-transaction
// discrepancy flags. Runs after detection but consumes the same match set.
func ReconcileCommission(matches []*models.TransactionMatch, tolerance decimal.Decimal) *CommissionOutcome {
	if tolerance.IsZero() {
		tolerance = decimal.NewFromFloat(0.01)
	}

	out := &CommissionOutcome{
		TotalCommissionLedger:   decimal.Zero,
		TotalCommissionSupplier: decimal.Zero,
		Variance:                decimal.Zero,
		VariancePercent:         decimal.Zero,
	}

	var mismatches []CommissionMismatch
	for _, m := range matches {
		if !m.IsMatchedPair() {
			continue
		}
		if m.LedgerCommission.Valid {
			out.TotalCommissionLedger = out.TotalCommissionLedger.Add(m.LedgerCommission.Decimal)
		}
		if m.SupplierCommission.Valid {
			out.TotalCommissionSupplier = out.TotalCommissionSupplier.Add(m.SupplierCommission.Decimal)
		}
		if m.LedgerCommission.Valid && m.SupplierCommission.Valid {
			diff := m.LedgerCommission.Decimal.Sub(m.SupplierCommission.Decimal)
			if diff.Abs().GreaterThan(tolerance) {
				txnId := ""
				if m.LedgerTransactionId != nil {
					txnId = *m.LedgerTransactionId
				} else if m.SupplierTransactionId != nil {
					txnId = *m.SupplierTransactionId
				}
				mismatches = append(mismatches, CommissionMismatch{
					MatchId:            m.ID,
					TransactionId:      txnId,
					LedgerCommission:   m.LedgerCommission.Decimal,
					SupplierCommission: m.SupplierCommission.Decimal,
					Diff:               diff,
				})
			}
		}
	}

	out.Variance = out.TotalCommissionLedger.Sub(out.TotalCommissionSupplier)
	if !out.TotalCommissionSupplier.IsZero() {
		out.VariancePercent = out.Variance.
			Div(out.TotalCommissionSupplier).
			Mul(decimal.NewFromInt(100)).
			Round(4)
	}

	out.MismatchCount = len(mismatches)
	sort.SliceStable(mismatches, func(i, j int) bool {
		return mismatches[i].Diff.Abs().GreaterThan(mismatches[j].Diff.Abs())
	})
	if len(mismatches) > topMismatchSample {
		mismatches = mismatches[:topMismatchSample]
	}
	out.TopMismatches = mismatches

	return out
}
