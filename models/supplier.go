package models

import (
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmtopup/recon_backend/adapters"
	"bitbucket.org/mmtopup/recon_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Supplier is one settlement counterparty (airtime/voucher/bill-payment
// aggregator) together with the reconciliation policy applied to its files.
//
// All numeric thresholds are operator-tunable business policy, not derived
// values; the defaults below are deliberately conservative.
type Supplier struct {
	ID       int    `gorm:"primary_key" json:"id"`
	Code     string `gorm:"size:50;not null;uniqueIndex" json:"code" binding:"required"`
	Name     string `gorm:"size:100;not null" json:"name" binding:"required"`
	Email    string `gorm:"size:100" json:"email"`
	Phone    string `gorm:"size:20" json:"phone"`
	Notes    string `gorm:"type:text" json:"notes"`
	IsActive *bool  `gorm:"not null;default:true" json:"is_active"`

	// AdapterName selects the FileAdapter used to parse this supplier's
	// settlement files (configuration-driven dispatch, no reflection).
	AdapterName string `gorm:"size:50;not null;default:'csv'" json:"adapter_name"`

	// SchemaJSON overrides the adapter's default dialect knobs (delimiter,
	// time layouts, row markers) as a JSON object. Empty means defaults.
	SchemaJSON string `gorm:"type:text" json:"schema_config"`

	// Matching policy.
	FuzzyMatchingEnabled      *bool           `gorm:"not null;default:true" json:"fuzzy_matching_enabled"`
	MinConfidence             float64         `gorm:"not null;default:0.85" json:"min_confidence"`
	AmountWeight              float64         `gorm:"not null;default:0.40" json:"amount_weight"`
	TimestampWeight           float64         `gorm:"not null;default:0.30" json:"timestamp_weight"`
	ProductWeight             float64         `gorm:"not null;default:0.30" json:"product_weight"`
	AmountTolerance           decimal.Decimal `gorm:"type:decimal(20,4);default:0.01" json:"amount_tolerance"`
	CommissionTolerance       decimal.Decimal `gorm:"type:decimal(20,4);default:0.01" json:"commission_tolerance"`
	TimestampToleranceSeconds int             `gorm:"not null;default:300" json:"timestamp_tolerance_seconds"`

	// Self-healing policy.
	AutoRoundingTolerance     decimal.Decimal `gorm:"type:decimal(20,4);default:0.10" json:"auto_rounding_tolerance"`
	AutoCommissionTolerance   decimal.Decimal `gorm:"type:decimal(20,4);default:1.00" json:"auto_commission_tolerance"`
	EscalationAmountThreshold decimal.Decimal `gorm:"type:decimal(20,4);default:100.00" json:"escalation_amount_threshold"`

	// Verdict policy.
	MatchRateThreshold        float64         `gorm:"not null;default:0.99" json:"match_rate_threshold"`
	CriticalVarianceThreshold decimal.Decimal `gorm:"type:decimal(20,4);default:1000.00" json:"critical_variance_threshold"`

	// Alerting dedup state. Stored on the row (not in process memory) so the
	// cooldown survives restarts and is checkable atomically.
	AlertCooldownMinutes int        `gorm:"not null;default:60" json:"alert_cooldown_minutes"`
	LastAlertedAt        *time.Time `json:"last_alerted_at"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// MatchingConfig is the slice of supplier policy the matching engine needs.
// The engine is pure; it never touches the Supplier row directly.
type MatchingConfig struct {
	FuzzyEnabled              bool
	MinConfidence             float64
	AmountWeight              float64
	TimestampWeight           float64
	ProductWeight             float64
	AmountTolerance           decimal.Decimal
	TimestampToleranceSeconds int
}

func DefaultMatchingConfig() MatchingConfig {
	return MatchingConfig{
		FuzzyEnabled:              true,
		MinConfidence:             0.85,
		AmountWeight:              0.40,
		TimestampWeight:           0.30,
		ProductWeight:             0.30,
		AmountTolerance:           decimal.NewFromFloat(0.01),
		TimestampToleranceSeconds: 300,
	}
}

func (s *Supplier) MatchingConfig() MatchingConfig {
	cfg := MatchingConfig{
		FuzzyEnabled:              s.FuzzyMatchingEnabled == nil || *s.FuzzyMatchingEnabled,
		MinConfidence:             s.MinConfidence,
		AmountWeight:              s.AmountWeight,
		TimestampWeight:           s.TimestampWeight,
		ProductWeight:             s.ProductWeight,
		AmountTolerance:           s.AmountTolerance,
		TimestampToleranceSeconds: s.TimestampToleranceSeconds,
	}
	def := DefaultMatchingConfig()
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = def.MinConfidence
	}
	if cfg.AmountWeight <= 0 && cfg.TimestampWeight <= 0 && cfg.ProductWeight <= 0 {
		cfg.AmountWeight = def.AmountWeight
		cfg.TimestampWeight = def.TimestampWeight
		cfg.ProductWeight = def.ProductWeight
	}
	if cfg.AmountTolerance.IsZero() {
		cfg.AmountTolerance = def.AmountTolerance
	}
	if cfg.TimestampToleranceSeconds <= 0 {
		cfg.TimestampToleranceSeconds = def.TimestampToleranceSeconds
	}
	return cfg
}

// SchemaConfig materializes this supplier's file-dialect overrides on top of
// the adapter defaults, so a partial JSON object only overrides what it names.
func (s *Supplier) SchemaConfig() (adapters.SchemaConfig, error) {
	schema := adapters.DefaultSchemaConfig()
	if strings.TrimSpace(s.SchemaJSON) == "" {
		return schema, nil
	}
	if err := utils.UnmarshalFromJSON([]byte(s.SchemaJSON), &schema); err != nil {
		return schema, fmt.Errorf("supplier %s schema config: %w", s.Code, err)
	}
	return schema, nil
}

func GetSupplierByCode(db *gorm.DB, code string) (*Supplier, error) {
	var supplier Supplier
	err := db.Where("code = ?", code).First(&supplier).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &supplier, nil
}

func GetSupplier(db *gorm.DB, id int) (*Supplier, error) {
	var supplier Supplier
	err := db.Where("id = ?", id).First(&supplier).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &supplier, nil
}

func ListSuppliers(db *gorm.DB, activeOnly bool) ([]Supplier, error) {
	var suppliers []Supplier
	q := db.Order("code asc")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	err := q.Find(&suppliers).Error
	return suppliers, err
}

// TryMarkAlerted flips last_alerted_at only when the cooldown window has
// elapsed, in a single guarded UPDATE. Returns true when this caller owns the
// alert (i.e. downstream delivery should be triggered).
func (s *Supplier) TryMarkAlerted(db *gorm.DB, now time.Time) (bool, error) {
	cooldown := time.Duration(s.AlertCooldownMinutes) * time.Minute
	cutoff := now.Add(-cooldown)

	res := db.Model(&Supplier{}).
		Where("id = ? AND (last_alerted_at IS NULL OR last_alerted_at < ?)", s.ID, cutoff).
		Update("last_alerted_at", now)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		s.LastAlertedAt = &now
		return true, nil
	}
	return false, nil
}
