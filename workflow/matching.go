package workflow

import (
	"time"

	"bitbucket.org/mmtopup/recon_backend/adapters"
	"bitbucket.org/mmtopup/recon_backend/models"
	"bitbucket.org/mmtopup/recon_backend/utils"
	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MatchOutcome is the full result of pairing one ledger set against one
// supplier file. Every ledger transaction and every supplier record appears in
// exactly one match row.
type MatchOutcome struct {
	Matches                []*models.TransactionMatch
	ExactCount             int
	FuzzyCount             int
	UnmatchedLedgerCount   int
	UnmatchedSupplierCount int
	TotalAmountLedger      decimal.Decimal
	TotalAmountSupplier    decimal.Decimal
}

// MatchSettlement pairs ledger transactions with supplier records in three
// phases: exact key equality, confidence-scored fuzzy matching over secondary
// attributes, then residual unmatched rows. Pure computation, no I/O; candidate
// iteration order is the input order, so identical inputs always produce the
// identical outcome (required for audit replay).
func MatchSettlement(ledger []models.LedgerTransaction, records []adapters.SettlementRecord, cfg models.MatchingConfig, runId string) *MatchOutcome {
	out := &MatchOutcome{
		TotalAmountLedger:   decimal.Zero,
		TotalAmountSupplier: decimal.Zero,
	}
	for i := range ledger {
		out.TotalAmountLedger = out.TotalAmountLedger.Add(ledger[i].Amount)
	}
	for i := range records {
		out.TotalAmountSupplier = out.TotalAmountSupplier.Add(records[i].Amount)
	}

	ledgerClaimed := make([]bool, len(ledger))
	supplierClaimed := make([]bool, len(records))

	// Phase 1: exact key match. First match wins; nothing is claimed twice.
	for li := range ledger {
		for si := range records {
			if supplierClaimed[si] {
				continue
			}
			method, ok := exactKeyMatch(&ledger[li], &records[si])
			if !ok {
				continue
			}
			ledgerClaimed[li] = true
			supplierClaimed[si] = true
			out.ExactCount++
			out.Matches = append(out.Matches,
				newPairMatch(runId, &ledger[li], &records[si], models.MatchStatusExact, method, nil))
			break
		}
	}

	// Phase 2: fuzzy match over the remainder. The highest-scoring candidate at
	// or above the confidence floor wins; ties keep the first-seen candidate.
	if cfg.FuzzyEnabled {
		for li := range ledger {
			if ledgerClaimed[li] {
				continue
			}
			bestScore := -1.0
			bestIdx := -1
			for si := range records {
				if supplierClaimed[si] {
					continue
				}
				score := fuzzyConfidence(&ledger[li], &records[si], cfg)
				if score > bestScore {
					bestScore = score
					bestIdx = si
				}
			}
			if bestIdx >= 0 && bestScore >= cfg.MinConfidence {
				ledgerClaimed[li] = true
				supplierClaimed[bestIdx] = true
				out.FuzzyCount++
				confidence := bestScore
				out.Matches = append(out.Matches,
					newPairMatch(runId, &ledger[li], &records[bestIdx], models.MatchStatusFuzzy, models.MatchMethodFuzzy, &confidence))
			}
		}
	}

	// Phase 3: residuals.
	for li := range ledger {
		if ledgerClaimed[li] {
			continue
		}
		out.UnmatchedLedgerCount++
		out.Matches = append(out.Matches,
			newPairMatch(runId, &ledger[li], nil, models.MatchStatusUnmatchedMmtp, "", nil))
	}
	for si := range records {
		if supplierClaimed[si] {
			continue
		}
		out.UnmatchedSupplierCount++
		out.Matches = append(out.Matches,
			newPairMatch(runId, nil, &records[si], models.MatchStatusUnmatchedSupplier, "", nil))
	}

	return out
}

// exactKeyMatch checks transaction-id equality first, then any pairing that
// involves a reference number (reference=reference or cross-key). Empty keys
// never match anything; the returned method records which key kind the pair
// actually matched on, so the audit trail stays truthful for cross-key hits.
func exactKeyMatch(l *models.LedgerTransaction, r *adapters.SettlementRecord) (models.MatchMethod, bool) {
	lTxn := utils.NormalizeKey(l.TransactionId)
	lRef := utils.NormalizeKey(l.Reference)
	rTxn := utils.NormalizeKey(r.TransactionId)
	rRef := utils.NormalizeKey(r.Reference)

	if lTxn != "" && lTxn == rTxn {
		return models.MatchMethodTransactionId, true
	}
	if lTxn != "" && lTxn == rRef {
		return models.MatchMethodReferenceNumber, true
	}
	if rTxn != "" && lRef == rTxn {
		return models.MatchMethodReferenceNumber, true
	}
	if lRef != "" && lRef == rRef {
		return models.MatchMethodReferenceNumber, true
	}
	return "", false
}

// fuzzyConfidence scores one candidate pair in [0, 1] with the weighted
// rubric: each secondary key contributes its full weight inside tolerance,
// half weight inside twice the tolerance, zero beyond.
func fuzzyConfidence(l *models.LedgerTransaction, r *adapters.SettlementRecord, cfg models.MatchingConfig) float64 {
	score := 0.0

	amountDiff := l.Amount.Sub(r.Amount).Abs()
	if amountDiff.LessThanOrEqual(cfg.AmountTolerance) {
		score += cfg.AmountWeight
	} else if amountDiff.LessThanOrEqual(cfg.AmountTolerance.Mul(decimal.NewFromInt(2))) {
		score += cfg.AmountWeight / 2
	}

	tol := time.Duration(cfg.TimestampToleranceSeconds) * time.Second
	tsDiff := l.TransactionTime.Sub(r.Timestamp)
	if tsDiff < 0 {
		tsDiff = -tsDiff
	}
	if tsDiff <= tol {
		score += cfg.TimestampWeight
	} else if tsDiff <= 2*tol {
		score += cfg.TimestampWeight / 2
	}

	score += cfg.ProductWeight * productSimilarity(l, r)

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// productSimilarity returns 1 on an exact product-code match and otherwise
// falls back to normalized edit distance over product names.
func productSimilarity(l *models.LedgerTransaction, r *adapters.SettlementRecord) float64 {
	lCode := utils.NormalizeKey(l.SupplierProductCode)
	rCode := utils.NormalizeKey(r.ProductCode)
	if lCode != "" && lCode == rCode {
		return 1
	}
	return stringSimilarity(l.ProductName, r.ProductName)
}

// stringSimilarity is 1 - levenshtein(a,b) / max(len(a), len(b)), computed
// over normalized strings.
func stringSimilarity(a, b string) float64 {
	a = utils.NormalizeKey(a)
	b = utils.NormalizeKey(b)
	if a == "" && b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	dist := levenshtein.ComputeDistance(a, b)
	sim := 1 - float64(dist)/float64(maxLen)
	if sim < 0 {
		return 0
	}
	return sim
}

func newPairMatch(runId string, l *models.LedgerTransaction, r *adapters.SettlementRecord, status models.MatchStatus, method models.MatchMethod, confidence *float64) *models.TransactionMatch {
	match := &models.TransactionMatch{
		ID:               uuid.NewString(),
		RunId:            runId,
		MatchStatus:      status,
		MatchMethod:      method,
		MatchConfidence:  confidence,
		ResolutionStatus: models.ResolutionStatusPending,
	}

	if l != nil {
		match.LedgerTransactionId = utils.NilIfEmpty(l.TransactionId)
		match.LedgerReference = utils.NilIfEmpty(l.Reference)
		match.LedgerAmount = decimal.NullDecimal{Decimal: l.Amount, Valid: true}
		match.LedgerCommission = decimal.NullDecimal{Decimal: l.Commission, Valid: true}
		match.LedgerStatus = l.Status
		ts := l.TransactionTime
		match.LedgerTimestamp = &ts
		match.LedgerProductCode = l.SupplierProductCode
		match.LedgerProductName = l.ProductName
	}
	if r != nil {
		match.SupplierTransactionId = utils.NilIfEmpty(r.TransactionId)
		match.SupplierReference = utils.NilIfEmpty(r.Reference)
		match.SupplierAmount = decimal.NullDecimal{Decimal: r.Amount, Valid: true}
		match.SupplierCommission = decimal.NullDecimal{Decimal: r.Commission, Valid: true}
		match.SupplierStatus = r.Status
		ts := r.Timestamp
		match.SupplierTimestamp = &ts
		match.SupplierProductCode = r.ProductCode
		match.SupplierProductName = r.ProductName
	}
	return match
}
