package models

type RunStatus string

const (
	RunStatusProcessing RunStatus = "processing"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusFailed     RunStatus = "failed"
)

// RunVerdict is the financial-control outcome of a completed run. A run can
// complete successfully as software execution while still carrying a "failed"
// verdict that requires operator attention.
type RunVerdict string

const (
	RunVerdictPassed RunVerdict = "passed"
	RunVerdictFailed RunVerdict = "failed"
)

type RunSeverity string

const (
	RunSeverityLow      RunSeverity = "low"
	RunSeverityMedium   RunSeverity = "medium"
	RunSeverityHigh     RunSeverity = "high"
	RunSeverityCritical RunSeverity = "critical"
)

type MatchStatus string

const (
	MatchStatusExact             MatchStatus = "exact_match"
	MatchStatusFuzzy             MatchStatus = "fuzzy_match"
	MatchStatusUnmatchedMmtp     MatchStatus = "unmatched_mmtp"
	MatchStatusUnmatchedSupplier MatchStatus = "unmatched_supplier"
)

type MatchMethod string

const (
	MatchMethodTransactionId   MatchMethod = "transaction_id"
	MatchMethodReferenceNumber MatchMethod = "reference_number"
	MatchMethodFuzzy           MatchMethod = "fuzzy"
)

type ResolutionStatus string

const (
	ResolutionStatusPending      ResolutionStatus = "pending"
	ResolutionStatusAutoResolved ResolutionStatus = "auto_resolved"
	ResolutionStatusManualReview ResolutionStatus = "manual_review"
	ResolutionStatusEscalated    ResolutionStatus = "escalated"
	ResolutionStatusResolved     ResolutionStatus = "resolved"
)

type ResolutionMethod string

const (
	ResolutionMethodAutoTiming             ResolutionMethod = "auto_timing"
	ResolutionMethodAutoRounding           ResolutionMethod = "auto_rounding"
	ResolutionMethodAutoStatusProgression  ResolutionMethod = "auto_status_progression"
	ResolutionMethodAutoCommissionRounding ResolutionMethod = "auto_commission_rounding"
	ResolutionMethodManual                 ResolutionMethod = "manual"
)

type DiscrepancyType string

const (
	DiscrepancyAmountMismatch     DiscrepancyType = "amount_mismatch"
	DiscrepancyStatusMismatch     DiscrepancyType = "status_mismatch"
	DiscrepancyTimestampDiff      DiscrepancyType = "timestamp_diff"
	DiscrepancyProductMismatch    DiscrepancyType = "product_mismatch"
	DiscrepancyCommissionMismatch DiscrepancyType = "commission_mismatch"
)

// NormalizedTxnStatus is the three-value status domain both sides are mapped
// into before comparison.
type NormalizedTxnStatus string

const (
	TxnStatusCompleted NormalizedTxnStatus = "completed"
	TxnStatusPending   NormalizedTxnStatus = "pending"
	TxnStatusFailed    NormalizedTxnStatus = "failed"
)

type AuditEventType string

const (
	AuditEventRunCreated           AuditEventType = "run_created"
	AuditEventRunReprocessed       AuditEventType = "run_reprocessed"
	AuditEventFileValidated        AuditEventType = "file_validated"
	AuditEventLedgerFetched        AuditEventType = "ledger_fetched"
	AuditEventMatchingCompleted    AuditEventType = "matching_completed"
	AuditEventDetectionCompleted   AuditEventType = "discrepancy_detection_completed"
	AuditEventResolutionCompleted  AuditEventType = "resolution_completed"
	AuditEventCommissionReconciled AuditEventType = "commission_reconciled"
	AuditEventRunCompleted         AuditEventType = "run_completed"
	AuditEventRunFailed            AuditEventType = "run_failed"
	AuditEventMatchResolvedByUser  AuditEventType = "match_manually_resolved"
	AuditEventAlertDecision        AuditEventType = "alert_decision"
)

type ActorType string

const (
	ActorTypeSystem   ActorType = "system"
	ActorTypeOperator ActorType = "operator"
)
