package workflow

import (
	"encoding/json"
	"time"

	"bitbucket.org/mmtopup/recon_backend/models"
	"github.com/shopspring/decimal"
)

// ResolutionPolicy carries the self-healing tolerances. Values are
// conservative, auditable numeric thresholds chosen to be far smaller than any
// amount that would matter financially.
type ResolutionPolicy struct {
	TimingToleranceSeconds    int
	RoundingTolerance         decimal.Decimal
	CommissionTolerance       decimal.Decimal
	EscalationAmountThreshold decimal.Decimal
	CompoundTagThreshold      int
}

func DefaultResolutionPolicy() ResolutionPolicy {
	return ResolutionPolicy{
		TimingToleranceSeconds:    300,
		RoundingTolerance:         decimal.NewFromFloat(0.10),
		CommissionTolerance:       decimal.NewFromFloat(1.00),
		EscalationAmountThreshold: decimal.NewFromFloat(100.00),
		CompoundTagThreshold:      3,
	}
}

func ResolutionPolicyForSupplier(s *models.Supplier) ResolutionPolicy {
	policy := DefaultResolutionPolicy()
	if !s.AutoRoundingTolerance.IsZero() {
		policy.RoundingTolerance = s.AutoRoundingTolerance
	}
	if !s.AutoCommissionTolerance.IsZero() {
		policy.CommissionTolerance = s.AutoCommissionTolerance
	}
	if !s.EscalationAmountThreshold.IsZero() {
		policy.EscalationAmountThreshold = s.EscalationAmountThreshold
	}
	return policy
}

// resolutionContext is one discrepancy as the rules see it.
type resolutionContext struct {
	Tags    []models.DiscrepancyType
	Details DiscrepancyDetails
}

func (c resolutionContext) hasOnly(tag models.DiscrepancyType) bool {
	return len(c.Tags) == 1 && c.Tags[0] == tag
}

func (c resolutionContext) has(tag models.DiscrepancyType) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ResolutionRule is one entry of the priority-ordered decision list. Keeping
// the order as data lets each rule be unit-tested on its own instead of being
// an implicit control-flow artifact.
type ResolutionRule struct {
	Name    string
	Applies func(c resolutionContext, p ResolutionPolicy) bool
	Status  models.ResolutionStatus
	Method  models.ResolutionMethod
	Note    string
}

// ResolutionRules is evaluated per discrepancy, first applicable rule wins.
// Rules 1-4 codify "normal operational jitter"; the escalation rules codify
// "severe enough that automation must not decide".
var ResolutionRules = []ResolutionRule{
	{
		Name: "auto_timing",
		Applies: func(c resolutionContext, p ResolutionPolicy) bool {
			if !c.hasOnly(models.DiscrepancyTimestampDiff) || c.Details.TimestampDeltaSeconds == nil {
				return false
			}
			delta := *c.Details.TimestampDeltaSeconds
			if delta < 0 {
				delta = -delta
			}
			return delta <= int64(p.TimingToleranceSeconds)
		},
		Status: models.ResolutionStatusAutoResolved,
		Method: models.ResolutionMethodAutoTiming,
		Note:   "timestamp delta within settlement timing tolerance",
	},
	{
		Name: "auto_rounding",
		Applies: func(c resolutionContext, p ResolutionPolicy) bool {
			return c.hasOnly(models.DiscrepancyAmountMismatch) &&
				c.Details.AmountDiff != nil &&
				c.Details.AmountDiff.Abs().LessThanOrEqual(p.RoundingTolerance)
		},
		Status: models.ResolutionStatusAutoResolved,
		Method: models.ResolutionMethodAutoRounding,
		Note:   "amount difference within rounding tolerance",
	},
	{
		Name: "auto_status_progression",
		Applies: func(c resolutionContext, p ResolutionPolicy) bool {
			// A supplier confirming completion before the ledger's own status
			// settles is expected, not anomalous.
			return c.hasOnly(models.DiscrepancyStatusMismatch) &&
				c.Details.LedgerStatus == string(models.TxnStatusPending) &&
				c.Details.SupplierStatus == string(models.TxnStatusCompleted)
		},
		Status: models.ResolutionStatusAutoResolved,
		Method: models.ResolutionMethodAutoStatusProgression,
		Note:   "supplier completed ahead of ledger status settling",
	},
	{
		Name: "auto_commission_rounding",
		Applies: func(c resolutionContext, p ResolutionPolicy) bool {
			return c.hasOnly(models.DiscrepancyCommissionMismatch) &&
				c.Details.CommissionDiff != nil &&
				c.Details.CommissionDiff.Abs().LessThanOrEqual(p.CommissionTolerance)
		},
		Status: models.ResolutionStatusAutoResolved,
		Method: models.ResolutionMethodAutoCommissionRounding,
		Note:   "commission difference within rounding tolerance",
	},
	{
		Name: "escalate_large_amount",
		Applies: func(c resolutionContext, p ResolutionPolicy) bool {
			return c.has(models.DiscrepancyAmountMismatch) &&
				c.Details.AmountDiff != nil &&
				c.Details.AmountDiff.Abs().GreaterThan(p.EscalationAmountThreshold)
		},
		Status: models.ResolutionStatusEscalated,
		Note:   "amount difference exceeds escalation threshold",
	},
	{
		Name: "escalate_compound",
		Applies: func(c resolutionContext, p ResolutionPolicy) bool {
			// Multiple simultaneous failures indicate a systemic problem, not noise.
			return len(c.Tags) >= p.CompoundTagThreshold
		},
		Status: models.ResolutionStatusEscalated,
		Note:   "compound discrepancy across multiple fields",
	},
	{
		Name: "default_manual_review",
		Applies: func(resolutionContext, ResolutionPolicy) bool {
			return true
		},
		Status: models.ResolutionStatusManualReview,
		Note:   "no auto-resolution rule applies",
	},
}

// ResolutionSummary counts where every discrepancy ended up. The three
// buckets are exhaustive: nothing stays pending after the resolver runs.
type ResolutionSummary struct {
	AutoResolved int
	ManualReview int
	Escalated    int
}

// ResolveDiscrepancies applies the rule list to each flagged match, setting
// resolution fields exactly once. Matches already past pending are left alone.
func ResolveDiscrepancies(discrepancies []*models.TransactionMatch, policy ResolutionPolicy, now time.Time) ResolutionSummary {
	var summary ResolutionSummary

	for _, m := range discrepancies {
		if !m.HasDiscrepancy || m.ResolutionStatus != models.ResolutionStatusPending {
			continue
		}

		c := resolutionContext{Tags: SplitDiscrepancyTags(m.DiscrepancyTypes)}
		if m.DiscrepancyDetails != "" {
			_ = json.Unmarshal([]byte(m.DiscrepancyDetails), &c.Details)
		}

		for _, rule := range ResolutionRules {
			if !rule.Applies(c, policy) {
				continue
			}
			m.ResolutionStatus = rule.Status
			m.ResolutionMethod = rule.Method
			m.ResolutionNotes = rule.Note
			if rule.Status == models.ResolutionStatusAutoResolved {
				m.ResolvedBy = "system"
				ts := now
				m.ResolvedAt = &ts
			}
			break
		}

		switch m.ResolutionStatus {
		case models.ResolutionStatusAutoResolved:
			summary.AutoResolved++
		case models.ResolutionStatusManualReview:
			summary.ManualReview++
		case models.ResolutionStatusEscalated:
			summary.Escalated++
		}
	}

	return summary
}
