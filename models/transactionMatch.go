package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var ErrorResolutionAlreadySet = errors.New("match resolution already set")

// TransactionMatch is one pairing outcome owned by exactly one run. Either
// side may be absent (nil key columns): a missing supplier side means the
// transaction exists only in the platform ledger, and vice versa. At least one
// side is always populated.
type TransactionMatch struct {
	ID    string `gorm:"primaryKey;size:36" json:"id"`
	RunId string `gorm:"size:36;not null;index" json:"run_id"`

	MatchStatus     MatchStatus `gorm:"size:20;not null;index" json:"match_status"`
	MatchMethod     MatchMethod `gorm:"size:20" json:"match_method"`
	MatchConfidence *float64    `json:"match_confidence"`

	// Ledger side snapshot.
	LedgerTransactionId *string             `gorm:"size:64;index" json:"ledger_transaction_id"`
	LedgerReference     *string             `gorm:"size:64" json:"ledger_reference"`
	LedgerAmount        decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"ledger_amount"`
	LedgerCommission    decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"ledger_commission"`
	LedgerStatus        string              `gorm:"size:30" json:"ledger_status"`
	LedgerTimestamp     *time.Time          `json:"ledger_timestamp"`
	LedgerProductCode   string              `gorm:"size:50" json:"ledger_product_code"`
	LedgerProductName   string              `gorm:"size:100" json:"ledger_product_name"`

	// Supplier side snapshot.
	SupplierTransactionId *string             `gorm:"size:64;index" json:"supplier_transaction_id"`
	SupplierReference     *string             `gorm:"size:64" json:"supplier_reference"`
	SupplierAmount        decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"supplier_amount"`
	SupplierCommission    decimal.NullDecimal `gorm:"type:decimal(20,4)" json:"supplier_commission"`
	SupplierStatus        string              `gorm:"size:30" json:"supplier_status"`
	SupplierTimestamp     *time.Time          `json:"supplier_timestamp"`
	SupplierProductCode   string              `gorm:"size:50" json:"supplier_product_code"`
	SupplierProductName   string              `gorm:"size:100" json:"supplier_product_name"`

	HasDiscrepancy     bool   `gorm:"not null;default:false;index" json:"has_discrepancy"`
	DiscrepancyTypes   string `gorm:"size:255" json:"discrepancy_types"`
	DiscrepancyDetails string `gorm:"type:text" json:"discrepancy_details"`

	ResolutionStatus ResolutionStatus `gorm:"size:20;not null;default:'pending';index" json:"resolution_status"`
	ResolutionMethod ResolutionMethod `gorm:"size:30" json:"resolution_method"`
	ResolutionNotes  string           `gorm:"type:text" json:"resolution_notes"`
	ResolvedBy       string           `gorm:"size:100" json:"resolved_by"`
	ResolvedAt       *time.Time       `json:"resolved_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsMatchedPair reports whether both sides are populated (exact or fuzzy).
func (m *TransactionMatch) IsMatchedPair() bool {
	return m.MatchStatus == MatchStatusExact || m.MatchStatus == MatchStatusFuzzy
}

func GetTransactionMatch(db *gorm.DB, id string) (*TransactionMatch, error) {
	var match TransactionMatch
	err := db.Where("id = ?", id).First(&match).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &match, nil
}

func ListRunMatches(db *gorm.DB, runId string, onlyDiscrepancies bool) ([]TransactionMatch, error) {
	var matches []TransactionMatch
	q := db.Where("run_id = ?", runId).Order("created_at asc, id asc")
	if onlyDiscrepancies {
		q = q.Where("has_discrepancy = ?", true)
	}
	err := q.Find(&matches).Error
	return matches, err
}

// ResolveManually closes a discrepancy that self-healing routed to a human.
// The guarded WHERE enforces set-once semantics: only matches sitting in
// manual_review or escalated can transition, and only to resolved.
func ResolveManually(db *gorm.DB, matchId, resolvedBy, notes string) (*TransactionMatch, error) {
	match, err := GetTransactionMatch(db, matchId)
	if err != nil {
		return nil, err
	}
	if !match.HasDiscrepancy {
		return nil, errors.New("match has no discrepancy to resolve")
	}

	now := time.Now().UTC()
	res := db.Model(&TransactionMatch{}).
		Where("id = ? AND resolution_status IN ?", matchId,
			[]ResolutionStatus{ResolutionStatusManualReview, ResolutionStatusEscalated}).
		Updates(map[string]interface{}{
			"resolution_status": ResolutionStatusResolved,
			"resolution_method": ResolutionMethodManual,
			"resolution_notes":  notes,
			"resolved_by":       resolvedBy,
			"resolved_at":       now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrorResolutionAlreadySet
	}
	return GetTransactionMatch(db, matchId)
}
