package workflow

import (
	"testing"
	"time"

	"bitbucket.org/mmtopup/recon_backend/adapters"
	"bitbucket.org/mmtopup/recon_backend/models"
	"github.com/shopspring/decimal"
)

// NOTE: These tests are intentionally DB-free. The matching engine is pure;
// persistence of the resulting match rows is exercised separately.

var matchBase = time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

func ledgerTxn(txnId, ref string, amount float64, offset time.Duration) models.LedgerTransaction {
	return models.LedgerTransaction{
		TransactionId:       txnId,
		Reference:           ref,
		Amount:              decimal.NewFromFloat(amount),
		Commission:          decimal.NewFromFloat(amount * 0.02),
		Status:              "completed",
		TransactionTime:     matchBase.Add(offset),
		SupplierProductCode: "AIRTIME_1000",
		ProductName:         "Airtime 1000",
	}
}

func supplierRec(txnId, ref string, amount float64, offset time.Duration) adapters.SettlementRecord {
	return adapters.SettlementRecord{
		TransactionId: txnId,
		Reference:     ref,
		Amount:        decimal.NewFromFloat(amount),
		Commission:    decimal.NewFromFloat(amount * 0.02),
		Status:        "success",
		Timestamp:     matchBase.Add(offset),
		ProductCode:   "AIRTIME_1000",
		ProductName:   "Airtime 1000",
	}
}

func TestMatchSettlement_ExactByTransactionId(t *testing.T) {
	ledger := []models.LedgerTransaction{ledgerTxn("TXN-1", "REF-1", 1000, 0)}
	records := []adapters.SettlementRecord{supplierRec("txn-1", "OTHER", 999999, 90*24*time.Hour)}

	out := MatchSettlement(ledger, records, models.DefaultMatchingConfig(), "run-1")

	if out.ExactCount != 1 || len(out.Matches) != 1 {
		t.Fatalf("expected 1 exact match, got exact=%d total=%d", out.ExactCount, len(out.Matches))
	}
	m := out.Matches[0]
	if m.MatchStatus != models.MatchStatusExact || m.MatchMethod != models.MatchMethodTransactionId {
		t.Fatalf("expected exact/transaction_id, got %s/%s", m.MatchStatus, m.MatchMethod)
	}
	// Exact key equality wins regardless of secondary attributes.
	if m.MatchConfidence != nil {
		t.Fatalf("exact matches carry no confidence score, got %v", *m.MatchConfidence)
	}
}

func TestMatchSettlement_ExactByReferenceNumber(t *testing.T) {
	ledger := []models.LedgerTransaction{ledgerTxn("TXN-A", "REF-77", 500, 0)}
	records := []adapters.SettlementRecord{supplierRec("SUP-OWN-ID", "ref-77 ", 500, 0)}

	out := MatchSettlement(ledger, records, models.DefaultMatchingConfig(), "run-1")

	if out.ExactCount != 1 {
		t.Fatalf("expected reference match, got exact=%d", out.ExactCount)
	}
	if out.Matches[0].MatchMethod != models.MatchMethodReferenceNumber {
		t.Fatalf("expected reference_number method, got %s", out.Matches[0].MatchMethod)
	}
}

func TestMatchSettlement_EmptyKeysNeverMatch(t *testing.T) {
	ledger := []models.LedgerTransaction{ledgerTxn("", "", 1000, 0)}
	rec := supplierRec("", "", 5000, 48*time.Hour)
	rec.ProductCode = "DATA_5GB"
	rec.ProductName = "Data Pack 5GB"

	cfg := models.DefaultMatchingConfig()
	out := MatchSettlement(ledger, []adapters.SettlementRecord{rec}, cfg, "run-1")

	if out.ExactCount != 0 {
		t.Fatalf("empty keys must not exact-match, got exact=%d", out.ExactCount)
	}
	if out.UnmatchedLedgerCount != 1 || out.UnmatchedSupplierCount != 1 {
		t.Fatalf("expected both sides unmatched, got ledger=%d supplier=%d",
			out.UnmatchedLedgerCount, out.UnmatchedSupplierCount)
	}
}

func TestMatchSettlement_FuzzyAboveThreshold(t *testing.T) {
	// Same amount (within tolerance), 2 minutes apart, same product code:
	// 0.40 + 0.30 + 0.30 = 1.0.
	ledger := []models.LedgerTransaction{ledgerTxn("TXN-L", "", 1000, 0)}
	records := []adapters.SettlementRecord{supplierRec("TXN-S", "", 1000, 2*time.Minute)}

	out := MatchSettlement(ledger, records, models.DefaultMatchingConfig(), "run-1")

	if out.FuzzyCount != 1 {
		t.Fatalf("expected fuzzy match, got fuzzy=%d unmatchedLedger=%d", out.FuzzyCount, out.UnmatchedLedgerCount)
	}
	m := out.Matches[0]
	if m.MatchStatus != models.MatchStatusFuzzy || m.MatchMethod != models.MatchMethodFuzzy {
		t.Fatalf("expected fuzzy status+method, got %s/%s", m.MatchStatus, m.MatchMethod)
	}
	if m.MatchConfidence == nil || *m.MatchConfidence < 0.99 {
		t.Fatalf("expected confidence ~1.0, got %v", m.MatchConfidence)
	}
}

func TestMatchSettlement_FuzzyHalfWeightBands(t *testing.T) {
	// Amount off by 1.5x tolerance -> half amount weight. Timestamp at 1.5x
	// tolerance -> half timestamp weight. Product identical -> full weight.
	// 0.20 + 0.15 + 0.30 = 0.65 < 0.85 floor.
	ledger := []models.LedgerTransaction{ledgerTxn("TXN-L", "", 1000.000, 0)}
	rec := supplierRec("TXN-S", "", 1000.015, 450*time.Second)

	out := MatchSettlement(ledger, []adapters.SettlementRecord{rec}, models.DefaultMatchingConfig(), "run-1")

	if out.FuzzyCount != 0 {
		t.Fatalf("score below confidence floor must not match, got fuzzy=%d", out.FuzzyCount)
	}
	if out.UnmatchedLedgerCount != 1 || out.UnmatchedSupplierCount != 1 {
		t.Fatalf("expected residual rows, got ledger=%d supplier=%d",
			out.UnmatchedLedgerCount, out.UnmatchedSupplierCount)
	}
}

func TestMatchSettlement_FuzzyDisabled(t *testing.T) {
	ledger := []models.LedgerTransaction{ledgerTxn("TXN-L", "", 1000, 0)}
	records := []adapters.SettlementRecord{supplierRec("TXN-S", "", 1000, 0)}

	cfg := models.DefaultMatchingConfig()
	cfg.FuzzyEnabled = false
	out := MatchSettlement(ledger, records, cfg, "run-1")

	if out.FuzzyCount != 0 || out.UnmatchedLedgerCount != 1 {
		t.Fatalf("fuzzy disabled must skip phase 2, got fuzzy=%d unmatched=%d",
			out.FuzzyCount, out.UnmatchedLedgerCount)
	}
}

func TestMatchSettlement_EveryRowAppearsExactlyOnce(t *testing.T) {
	ledger := []models.LedgerTransaction{
		ledgerTxn("TXN-1", "REF-1", 1000, 0),
		ledgerTxn("TXN-2", "REF-2", 2000, time.Minute),
		ledgerTxn("TXN-3", "REF-3", 3000, 2*time.Minute),
	}
	records := []adapters.SettlementRecord{
		supplierRec("TXN-1", "REF-1", 1000, 0),
		supplierRec("TXN-X", "REF-X", 2000, time.Minute),
		supplierRec("TXN-Y", "REF-Y", 999, 7*time.Hour),
	}

	out := MatchSettlement(ledger, records, models.DefaultMatchingConfig(), "run-1")

	total := out.ExactCount + out.FuzzyCount
	if got := total + out.UnmatchedLedgerCount + out.UnmatchedSupplierCount; got != len(out.Matches) {
		t.Fatalf("counts do not partition matches: %d rows vs %d counted", len(out.Matches), got)
	}

	ledgerSeen := 0
	supplierSeen := 0
	for _, m := range out.Matches {
		if m.LedgerAmount.Valid {
			ledgerSeen++
		}
		if m.SupplierAmount.Valid {
			supplierSeen++
		}
	}
	if ledgerSeen != len(ledger) || supplierSeen != len(records) {
		t.Fatalf("completeness violated: ledger %d/%d supplier %d/%d",
			ledgerSeen, len(ledger), supplierSeen, len(records))
	}
}

func TestMatchSettlement_DeterministicTieBreak(t *testing.T) {
	// Two supplier candidates score identically; the first-seen one must win,
	// on every rerun.
	ledger := []models.LedgerTransaction{ledgerTxn("TXN-L", "", 1000, 0)}
	records := []adapters.SettlementRecord{
		supplierRec("CAND-A", "", 1000, time.Minute),
		supplierRec("CAND-B", "", 1000, time.Minute),
	}

	cfg := models.DefaultMatchingConfig()
	for run := 0; run < 50; run++ {
		out := MatchSettlement(ledger, records, cfg, "run-1")
		if out.FuzzyCount != 1 {
			t.Fatalf("run=%d expected 1 fuzzy match, got %d", run, out.FuzzyCount)
		}
		m := out.Matches[0]
		if m.SupplierTransactionId == nil || *m.SupplierTransactionId != "CAND-A" {
			t.Fatalf("run=%d tie must keep first-seen candidate, got %v", run, m.SupplierTransactionId)
		}
	}
}

func TestFuzzyConfidence_Bounds(t *testing.T) {
	cfg := models.DefaultMatchingConfig()
	cases := []struct {
		name   string
		ledger models.LedgerTransaction
		rec    adapters.SettlementRecord
	}{
		{"identical", ledgerTxn("A", "", 100, 0), supplierRec("B", "", 100, 0)},
		{"disjoint", ledgerTxn("A", "", 100, 0), func() adapters.SettlementRecord {
			r := supplierRec("B", "", 90000, 400*time.Hour)
			r.ProductCode = "BILL_PAY"
			r.ProductName = "Electricity Bill"
			return r
		}()},
	}
	for _, tc := range cases {
		score := fuzzyConfidence(&tc.ledger, &tc.rec, cfg)
		if score < 0 || score > 1 {
			t.Fatalf("%s: confidence %f out of [0,1]", tc.name, score)
		}
	}
}

func TestStringSimilarity(t *testing.T) {
	cases := []struct {
		a, b string
		want float64
	}{
		{"Airtime 1000", "airtime 1000", 1},
		{"", "", 0},
		{"abcd", "abce", 0.75},
	}
	for _, tc := range cases {
		if got := stringSimilarity(tc.a, tc.b); got != tc.want {
			t.Fatalf("stringSimilarity(%q,%q)=%f want %f", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestMatchSettlement_CrossKeyReportsReferenceNumber(t *testing.T) {
	cases := []struct {
		name   string
		ledger models.LedgerTransaction
		record adapters.SettlementRecord
	}{
		{"ledger txn id equals supplier reference", ledgerTxn("TXN-9", "", 700, 0), supplierRec("SUP-OWN", "txn-9", 700, 0)},
		{"ledger reference equals supplier txn id", ledgerTxn("", "REF-5", 700, 0), supplierRec("ref-5", "", 700, 0)},
	}
	for _, tc := range cases {
		out := MatchSettlement([]models.LedgerTransaction{tc.ledger},
			[]adapters.SettlementRecord{tc.record}, models.DefaultMatchingConfig(), "run-1")

		if out.ExactCount != 1 || len(out.Matches) != 1 {
			t.Fatalf("%s: expected 1 exact match, got exact=%d total=%d", tc.name, out.ExactCount, len(out.Matches))
		}
		m := out.Matches[0]
		if m.MatchStatus != models.MatchStatusExact {
			t.Fatalf("%s: expected exact status, got %s", tc.name, m.MatchStatus)
		}
		// Cross-key hits involve a reference number on one side; the recorded
		// method must say so rather than claiming a transaction-id match.
		if m.MatchMethod != models.MatchMethodReferenceNumber {
			t.Fatalf("%s: expected reference_number method, got %s", tc.name, m.MatchMethod)
		}
	}
}
