package workflow

import (
	"testing"

	"bitbucket.org/mmtopup/recon_backend/models"
	"github.com/shopspring/decimal"
)

func commissionPair(id string, ledger, supplier float64) *models.TransactionMatch {
	txnId := "TXN-" + id
	return &models.TransactionMatch{
		ID:                  id,
		RunId:               "run-1",
		MatchStatus:         models.MatchStatusExact,
		LedgerTransactionId: &txnId,
		LedgerCommission:    decimal.NullDecimal{Decimal: decimal.NewFromFloat(ledger), Valid: true},
		SupplierCommission:  decimal.NullDecimal{Decimal: decimal.NewFromFloat(supplier), Valid: true},
	}
}

func TestReconcileCommission_Totals(t *testing.T) {
	matches := []*models.TransactionMatch{
		commissionPair("m1", 20.00, 20.00),
		commissionPair("m2", 50.00, 45.00),
		// Unmatched rows never contribute to either total.
		{ID: "m3", MatchStatus: models.MatchStatusUnmatchedMmtp,
			LedgerCommission: decimal.NullDecimal{Decimal: decimal.NewFromInt(999), Valid: true}},
	}

	out := ReconcileCommission(matches, decimal.NewFromFloat(0.01))

	if !out.TotalCommissionLedger.Equal(decimal.NewFromFloat(70.00)) {
		t.Fatalf("ledger total %s, want 70.00", out.TotalCommissionLedger)
	}
	if !out.TotalCommissionSupplier.Equal(decimal.NewFromFloat(65.00)) {
		t.Fatalf("supplier total %s, want 65.00", out.TotalCommissionSupplier)
	}
	if !out.Variance.Equal(decimal.NewFromFloat(5.00)) {
		t.Fatalf("variance %s, want 5.00", out.Variance)
	}
	// 5 / 65 * 100 rounded to 4 places.
	if !out.VariancePercent.Equal(decimal.NewFromFloat(7.6923)) {
		t.Fatalf("variance percent %s, want 7.6923", out.VariancePercent)
	}
	if out.MismatchCount != 1 {
		t.Fatalf("mismatch count %d, want 1", out.MismatchCount)
	}
}

func TestReconcileCommission_ZeroSupplierTotal(t *testing.T) {
	matches := []*models.TransactionMatch{commissionPair("m1", 10.00, 0)}
	out := ReconcileCommission(matches, decimal.NewFromFloat(0.01))
	if !out.VariancePercent.IsZero() {
		t.Fatalf("variance percent must stay zero when supplier total is zero, got %s", out.VariancePercent)
	}
	if !out.Variance.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("variance %s, want 10", out.Variance)
	}
}

func TestReconcileCommission_TopMismatchesSortedAndCapped(t *testing.T) {
	var matches []*models.TransactionMatch
	for i := 0; i < 15; i++ {
		// Diffs 1.00, 2.00, ... 15.00, built in ascending order.
		matches = append(matches, commissionPair(string(rune('a'+i)), float64(i+1), 0))
	}

	out := ReconcileCommission(matches, decimal.NewFromFloat(0.01))

	if out.MismatchCount != 15 {
		t.Fatalf("mismatch count %d, want 15", out.MismatchCount)
	}
	if len(out.TopMismatches) != topMismatchSample {
		t.Fatalf("top sample %d, want %d", len(out.TopMismatches), topMismatchSample)
	}
	if !out.TopMismatches[0].Diff.Equal(decimal.NewFromInt(15)) {
		t.Fatalf("largest diff first, got %s", out.TopMismatches[0].Diff)
	}
	for i := 1; i < len(out.TopMismatches); i++ {
		if out.TopMismatches[i].Diff.Abs().GreaterThan(out.TopMismatches[i-1].Diff.Abs()) {
			t.Fatalf("top mismatches not sorted by |diff| desc at %d", i)
		}
	}
}
