package workflow

import (
	"encoding/json"
	"strings"

	"bitbucket.org/mmtopup/recon_backend/models"
	"github.com/shopspring/decimal"
)

// DetectionPolicy carries the per-supplier thresholds the detector compares
// against. Tolerances are named, operator-tunable configuration, never
// re-derived in code.
type DetectionPolicy struct {
	AmountTolerance           decimal.Decimal
	CommissionTolerance       decimal.Decimal
	TimestampToleranceSeconds int
}

func DetectionPolicyForSupplier(s *models.Supplier) DetectionPolicy {
	policy := DetectionPolicy{
		AmountTolerance:           s.AmountTolerance,
		CommissionTolerance:       s.CommissionTolerance,
		TimestampToleranceSeconds: s.TimestampToleranceSeconds,
	}
	if policy.AmountTolerance.IsZero() {
		policy.AmountTolerance = decimal.NewFromFloat(0.01)
	}
	if policy.CommissionTolerance.IsZero() {
		policy.CommissionTolerance = decimal.NewFromFloat(0.01)
	}
	if policy.TimestampToleranceSeconds <= 0 {
		policy.TimestampToleranceSeconds = 300
	}
	return policy
}

// DiscrepancyDetails is the structured diff attached to a flagged match.
// Diffs are signed ledger-minus-supplier.
type DiscrepancyDetails struct {
	AmountDiff            *decimal.Decimal `json:"amount_diff,omitempty"`
	LedgerStatus          string           `json:"ledger_status,omitempty"`
	SupplierStatus        string           `json:"supplier_status,omitempty"`
	TimestampDeltaSeconds *int64           `json:"timestamp_delta_seconds,omitempty"`
	LedgerProductName     string           `json:"ledger_product_name,omitempty"`
	SupplierProductName   string           `json:"supplier_product_name,omitempty"`
	CommissionDiff        *decimal.Decimal `json:"commission_diff,omitempty"`
}

// DetectDiscrepancies inspects every matched pair for field-level divergence
// and enriches flagged matches in place. Unmatched rows are skipped: they are
// already discrepancies by construction. Purely additive and idempotent; the
// same input always yields the same tags and details.
func DetectDiscrepancies(matches []*models.TransactionMatch, policy DetectionPolicy) []*models.TransactionMatch {
	var flagged []*models.TransactionMatch

	for _, m := range matches {
		if !m.IsMatchedPair() {
			continue
		}

		var tags []models.DiscrepancyType
		details := DiscrepancyDetails{}

		if m.LedgerAmount.Valid && m.SupplierAmount.Valid {
			diff := m.LedgerAmount.Decimal.Sub(m.SupplierAmount.Decimal)
			if diff.Abs().GreaterThan(policy.AmountTolerance) {
				tags = append(tags, models.DiscrepancyAmountMismatch)
				d := diff
				details.AmountDiff = &d
			}
		}

		ledgerStatus := NormalizeTxnStatus(m.LedgerStatus)
		supplierStatus := NormalizeTxnStatus(m.SupplierStatus)
		if ledgerStatus != supplierStatus {
			tags = append(tags, models.DiscrepancyStatusMismatch)
			details.LedgerStatus = string(ledgerStatus)
			details.SupplierStatus = string(supplierStatus)
		}

		if m.LedgerTimestamp != nil && m.SupplierTimestamp != nil {
			delta := int64(m.LedgerTimestamp.Sub(*m.SupplierTimestamp).Seconds())
			absDelta := delta
			if absDelta < 0 {
				absDelta = -absDelta
			}
			if absDelta > int64(policy.TimestampToleranceSeconds) {
				tags = append(tags, models.DiscrepancyTimestampDiff)
				d := delta
				details.TimestampDeltaSeconds = &d
			}
		}

		// Verbatim compare: fuzziness already happened during matching.
		if m.LedgerProductName != m.SupplierProductName {
			tags = append(tags, models.DiscrepancyProductMismatch)
			details.LedgerProductName = m.LedgerProductName
			details.SupplierProductName = m.SupplierProductName
		}

		if m.LedgerCommission.Valid && m.SupplierCommission.Valid {
			diff := m.LedgerCommission.Decimal.Sub(m.SupplierCommission.Decimal)
			if diff.Abs().GreaterThan(policy.CommissionTolerance) {
				tags = append(tags, models.DiscrepancyCommissionMismatch)
				d := diff
				details.CommissionDiff = &d
			}
		}

		if len(tags) == 0 {
			m.HasDiscrepancy = false
			m.DiscrepancyTypes = ""
			m.DiscrepancyDetails = ""
			continue
		}

		m.HasDiscrepancy = true
		m.DiscrepancyTypes = JoinDiscrepancyTags(tags)
		data, _ := json.Marshal(details)
		m.DiscrepancyDetails = string(data)
		flagged = append(flagged, m)
	}

	return flagged
}

func JoinDiscrepancyTags(tags []models.DiscrepancyType) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func SplitDiscrepancyTags(joined string) []models.DiscrepancyType {
	if joined == "" {
		return nil
	}
	parts := strings.Split(joined, ",")
	tags := make([]models.DiscrepancyType, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, models.DiscrepancyType(p))
		}
	}
	return tags
}

var statusKeywords = map[string]models.NormalizedTxnStatus{
	"completed":  models.TxnStatusCompleted,
	"complete":   models.TxnStatusCompleted,
	"success":    models.TxnStatusCompleted,
	"successful": models.TxnStatusCompleted,
	"settled":    models.TxnStatusCompleted,
	"ok":         models.TxnStatusCompleted,
	"paid":       models.TxnStatusCompleted,

	"pending":     models.TxnStatusPending,
	"processing":  models.TxnStatusPending,
	"in_progress": models.TxnStatusPending,
	"initiated":   models.TxnStatusPending,
	"queued":      models.TxnStatusPending,

	"failed":    models.TxnStatusFailed,
	"failure":   models.TxnStatusFailed,
	"error":     models.TxnStatusFailed,
	"declined":  models.TxnStatusFailed,
	"rejected":  models.TxnStatusFailed,
	"reversed":  models.TxnStatusFailed,
	"cancelled": models.TxnStatusFailed,
	"canceled":  models.TxnStatusFailed,
	"timeout":   models.TxnStatusFailed,
}

// NormalizeTxnStatus maps a raw supplier or ledger status into the three-value
// domain. Unknown statuses normalize to pending: the conservative reading of a
// status we cannot interpret is "not yet settled".
func NormalizeTxnStatus(raw string) models.NormalizedTxnStatus {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.ReplaceAll(key, "-", "_")
	key = strings.ReplaceAll(key, " ", "_")
	if normalized, ok := statusKeywords[key]; ok {
		return normalized
	}
	return models.TxnStatusPending
}
