package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// ReconciliationRun is one execution against one supplier settlement file.
// (supplier_id, file_hash) is unique: reprocessing the same bytes is a no-op
// unless explicitly forced, enforced by the DB so two concurrent ingestions of
// the same file cannot both proceed.
type ReconciliationRun struct {
	ID         string `gorm:"primaryKey;size:36" json:"id"`
	SupplierId int    `gorm:"not null;index:uniq_supplier_file,unique" json:"supplier_id"`
	FileHash   string `gorm:"size:64;not null;index:uniq_supplier_file,unique" json:"file_hash"`
	FileName   string `gorm:"size:255" json:"file_name"`
	FileSize   int64  `json:"file_size"`

	Status     RunStatus `gorm:"size:20;not null;index" json:"status"`
	ReceivedAt time.Time `gorm:"not null" json:"received_at"`

	SettlementPeriodStart *time.Time `json:"settlement_period_start"`
	SettlementPeriodEnd   *time.Time `json:"settlement_period_end"`

	TotalTransactions      int `json:"total_transactions"`
	ExactMatchCount        int `json:"exact_match_count"`
	FuzzyMatchCount        int `json:"fuzzy_match_count"`
	UnmatchedLedgerCount   int `json:"unmatched_ledger_count"`
	UnmatchedSupplierCount int `json:"unmatched_supplier_count"`

	TotalAmountLedger   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount_ledger"`
	TotalAmountSupplier decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_amount_supplier"`
	AmountVariance      decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"amount_variance"`

	TotalCommissionLedger     decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_commission_ledger"`
	TotalCommissionSupplier   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"total_commission_supplier"`
	CommissionVariance        decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"commission_variance"`
	CommissionVariancePercent decimal.Decimal `gorm:"type:decimal(10,4);default:0" json:"commission_variance_percent"`

	DiscrepancyCount   int    `json:"discrepancy_count"`
	AutoResolvedCount  int    `json:"auto_resolved_count"`
	ManualReviewCount  int    `json:"manual_review_count"`
	EscalatedCount     int    `json:"escalated_count"`
	DiscrepancySummary string `gorm:"type:text" json:"discrepancy_summary"`

	Verdict     RunVerdict  `gorm:"size:10" json:"verdict"`
	Severity    RunSeverity `gorm:"size:10" json:"severity"`
	AlertWorthy *bool       `json:"alert_worthy"`

	ErrorContext         string     `gorm:"type:text" json:"error_context"`
	ProcessingDurationMs int64      `json:"processing_duration_ms"`
	CompletedAt          *time.Time `json:"completed_at"`
	CorrelationId        string     `gorm:"size:64;index" json:"correlation_id"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// MatchRate is (exact + fuzzy) / total. A run with no transactions on either
// side trivially passes with rate 1.
func (r *ReconciliationRun) MatchRate() float64 {
	if r.TotalTransactions == 0 {
		return 1.0
	}
	return float64(r.ExactMatchCount+r.FuzzyMatchCount) / float64(r.TotalTransactions)
}

func GetReconciliationRun(db *gorm.DB, id string) (*ReconciliationRun, error) {
	var run ReconciliationRun
	err := db.Where("id = ?", id).First(&run).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &run, nil
}

func FindRunByFileHash(db *gorm.DB, supplierId int, fileHash string) (*ReconciliationRun, error) {
	var run ReconciliationRun
	err := db.Where("supplier_id = ? AND file_hash = ?", supplierId, fileHash).First(&run).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &run, nil
}

func ListReconciliationRuns(db *gorm.DB, supplierId int, status RunStatus, limit, offset int) ([]ReconciliationRun, error) {
	var runs []ReconciliationRun
	q := db.Order("received_at desc")
	if supplierId > 0 {
		q = q.Where("supplier_id = ?", supplierId)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if limit <= 0 || limit > SearchLimitMax {
		limit = SearchLimitMax
	}
	err := q.Limit(limit).Offset(offset).Find(&runs).Error
	return runs, err
}

const SearchLimitMax = 100
