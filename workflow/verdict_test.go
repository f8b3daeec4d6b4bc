package workflow

import (
	"testing"

	"bitbucket.org/mmtopup/recon_backend/models"
	"github.com/shopspring/decimal"
)

func verdictRun(total, matched int, variance float64) *models.ReconciliationRun {
	return &models.ReconciliationRun{
		TotalTransactions: total,
		ExactMatchCount:   matched,
		AmountVariance:    decimal.NewFromFloat(variance),
	}
}

func defaultVerdictPolicy() VerdictPolicy {
	return VerdictPolicy{
		MatchRateThreshold:        0.99,
		CriticalVarianceThreshold: decimal.NewFromInt(1000),
	}
}

func TestComputeVerdict(t *testing.T) {
	cases := []struct {
		name         string
		run          *models.ReconciliationRun
		wantVerdict  models.RunVerdict
		wantSeverity models.RunSeverity
	}{
		{"perfect", verdictRun(100, 100, 0), models.RunVerdictPassed, models.RunSeverityLow},
		{"at_threshold", verdictRun(100, 99, 0), models.RunVerdictPassed, models.RunSeverityLow},
		{"empty_run_passes", verdictRun(0, 0, 0), models.RunVerdictPassed, models.RunSeverityLow},
		{"variance_negative_within", verdictRun(100, 100, -900), models.RunVerdictPassed, models.RunSeverityLow},
		{"rate_just_below", verdictRun(100, 98, 0), models.RunVerdictFailed, models.RunSeverityMedium},
		{"rate_high_band", verdictRun(100, 94, 0), models.RunVerdictFailed, models.RunSeverityHigh},
		{"rate_critical_band", verdictRun(100, 80, 0), models.RunVerdictFailed, models.RunSeverityCritical},
		{"variance_medium", verdictRun(100, 100, 1500), models.RunVerdictFailed, models.RunSeverityMedium},
		{"variance_high_band", verdictRun(100, 100, 2500), models.RunVerdictFailed, models.RunSeverityHigh},
		{"variance_critical_band", verdictRun(100, 100, -6000), models.RunVerdictFailed, models.RunSeverityCritical},
		{"both_bad_takes_worst", verdictRun(100, 80, 6000), models.RunVerdictFailed, models.RunSeverityCritical},
	}

	policy := defaultVerdictPolicy()
	for _, tc := range cases {
		verdict, severity := ComputeVerdict(tc.run, policy)
		if verdict != tc.wantVerdict || severity != tc.wantSeverity {
			t.Fatalf("%s: got %s/%s, want %s/%s", tc.name, verdict, severity, tc.wantVerdict, tc.wantSeverity)
		}
	}
}

func TestVerdictPolicyForSupplier_Fallbacks(t *testing.T) {
	s := &models.Supplier{}
	policy := VerdictPolicyForSupplier(s)
	if policy.MatchRateThreshold != 0.99 {
		t.Fatalf("zero threshold must fall back to 0.99, got %f", policy.MatchRateThreshold)
	}
	if !policy.CriticalVarianceThreshold.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("zero variance threshold must fall back to 1000, got %s", policy.CriticalVarianceThreshold)
	}

	s.MatchRateThreshold = 0.95
	s.CriticalVarianceThreshold = decimal.NewFromInt(500)
	policy = VerdictPolicyForSupplier(s)
	if policy.MatchRateThreshold != 0.95 || !policy.CriticalVarianceThreshold.Equal(decimal.NewFromInt(500)) {
		t.Fatalf("supplier thresholds ignored: %+v", policy)
	}
}
