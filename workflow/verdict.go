package workflow

import (
	"time"

	"bitbucket.org/mmtopup/recon_backend/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// VerdictPolicy carries the pass/fail thresholds. A run "fails" here in the
// financial-control sense: the software ran fine, the numbers need attention.
type VerdictPolicy struct {
	MatchRateThreshold        float64
	CriticalVarianceThreshold decimal.Decimal
}

func VerdictPolicyForSupplier(s *models.Supplier) VerdictPolicy {
	policy := VerdictPolicy{
		MatchRateThreshold:        s.MatchRateThreshold,
		CriticalVarianceThreshold: s.CriticalVarianceThreshold,
	}
	if policy.MatchRateThreshold <= 0 || policy.MatchRateThreshold > 1 {
		policy.MatchRateThreshold = 0.99
	}
	if policy.CriticalVarianceThreshold.IsZero() {
		policy.CriticalVarianceThreshold = decimal.NewFromInt(1000)
	}
	return policy
}

// ComputeVerdict grades a completed run: passed needs the match rate at or
// above the threshold AND absolute amount variance within the critical
// threshold. Severity scales with how far below the match-rate floor and how
// far over the variance threshold the run landed.
func ComputeVerdict(run *models.ReconciliationRun, policy VerdictPolicy) (models.RunVerdict, models.RunSeverity) {
	matchRate := run.MatchRate()
	variance := run.AmountVariance.Abs()

	rateOk := matchRate >= policy.MatchRateThreshold
	varianceOk := variance.LessThanOrEqual(policy.CriticalVarianceThreshold)
	if rateOk && varianceOk {
		return models.RunVerdictPassed, models.RunSeverityLow
	}

	rateShortfall := policy.MatchRateThreshold - matchRate
	varianceRatio := decimal.Zero
	if !policy.CriticalVarianceThreshold.IsZero() {
		varianceRatio = variance.Div(policy.CriticalVarianceThreshold)
	}

	severity := models.RunSeverityMedium
	switch {
	case rateShortfall > 0.10 || varianceRatio.GreaterThan(decimal.NewFromInt(5)):
		severity = models.RunSeverityCritical
	case rateShortfall > 0.04 || varianceRatio.GreaterThan(decimal.NewFromInt(2)):
		severity = models.RunSeverityHigh
	}
	return models.RunVerdictFailed, severity
}

// DecideAlert is the alert-worthiness decision plus its dedup gate. A failed
// verdict warrants an alert unless one already went out inside the supplier's
// cooldown window; the gate is a single guarded UPDATE on the supplier row so
// it survives restarts and concurrent runs.
func DecideAlert(db *gorm.DB, supplier *models.Supplier, verdict models.RunVerdict, now time.Time) (bool, error) {
	if verdict == models.RunVerdictPassed {
		return false, nil
	}
	return supplier.TryMarkAlerted(db, now)
}
