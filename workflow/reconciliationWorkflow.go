package workflow

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmtopup/recon_backend/adapters"
	"bitbucket.org/mmtopup/recon_backend/config"
	"bitbucket.org/mmtopup/recon_backend/models"
	"bitbucket.org/mmtopup/recon_backend/utils"
	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const matchInsertBatchSize = 200

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// ProcessSettlementFile runs one reconciliation end to end:
// accept file -> idempotency check -> parse -> cross-validate footer ->
// fetch ledger -> match -> detect -> resolve -> reconcile commission ->
// persist aggregates -> verdict + alert decision -> emit run trigger.
//
// Reprocessing the same bytes for the same supplier is a no-op returning the
// prior run, unless the context carries the force-reprocess flag. Any error
// during processing persists a failed run with its error context and a
// terminal audit event, then propagates to the caller; nothing is retried
// here.
func ProcessSettlementFile(ctx context.Context, db *gorm.DB, logger *logrus.Logger, ledger models.LedgerSource, supplier *models.Supplier, fileName string, raw []byte) (*models.ReconciliationRun, error) {
	started := time.Now()
	auditLog := models.NewAuditLog(db)

	sum := sha256.Sum256(raw)
	fileHash := hex.EncodeToString(sum[:])

	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	if correlationId == "" {
		correlationId = uuid.NewString()
	}

	// Best-effort per-supplier serialization; the unique constraint below is
	// the actual idempotency guarantee.
	if release, err := config.AcquireIngestLock(ctx, supplier.Code); err == nil && release != nil {
		defer release()
	}

	run := &models.ReconciliationRun{
		ID:            uuid.NewString(),
		SupplierId:    supplier.ID,
		FileHash:      fileHash,
		FileName:      fileName,
		FileSize:      int64(len(raw)),
		Status:        models.RunStatusProcessing,
		ReceivedAt:    started.UTC(),
		CorrelationId: correlationId,
	}

	force := utils.GetForceReprocessFromContext(ctx)
	if err := db.Create(run).Error; err != nil {
		if !isDuplicateKeyErr(err) {
			return nil, err
		}
		prior, findErr := models.FindRunByFileHash(db, supplier.ID, fileHash)
		if findErr != nil {
			return nil, findErr
		}
		if !force {
			// Same bytes, same supplier: successful no-op.
			logger.WithFields(logrus.Fields{
				"module":      "ReconciliationWorkflow",
				"supplier_id": supplier.ID,
				"file_hash":   fileHash,
				"run_id":      prior.ID,
			}).Info("duplicate settlement file; returning prior run")
			return prior, nil
		}
		var resetErr error
		run, resetErr = resetRunForReprocess(db, auditLog, prior, correlationId, started)
		if resetErr != nil {
			return nil, resetErr
		}
	}

	if _, err := auditLog.Append(models.AppendInput{
		RunId:      &run.ID,
		SupplierId: supplier.ID,
		EventType:  models.AuditEventRunCreated,
		ActorType:  models.ActorTypeSystem,
		EntityType: "reconciliation_run",
		EntityId:   run.ID,
		Payload: map[string]any{
			"file_name":      fileName,
			"file_hash":      fileHash,
			"file_size":      len(raw),
			"supplier_code":  supplier.Code,
			"correlation_id": correlationId,
		},
	}); err != nil {
		return nil, err
	}

	// Parse + ingest validation. Failures here are fatal before any matching.
	adapter, err := adapters.Get(supplier.AdapterName)
	if err != nil {
		return run, failRun(db, logger, auditLog, run, "adapter_lookup", err)
	}
	schema, err := supplier.SchemaConfig()
	if err != nil {
		return run, failRun(db, logger, auditLog, run, "schema_config", err)
	}
	file, err := adapter.Parse(raw, schema)
	if err != nil {
		return run, failRun(db, logger, auditLog, run, "parse", err)
	}
	if err := file.ValidateFooter(); err != nil {
		return run, failRun(db, logger, auditLog, run, "footer_validation", err)
	}

	periodStart, periodEnd := settlementPeriod(file)
	run.SettlementPeriodStart = &periodStart
	run.SettlementPeriodEnd = &periodEnd

	if _, err := auditLog.Append(models.AppendInput{
		RunId:      &run.ID,
		SupplierId: supplier.ID,
		EventType:  models.AuditEventFileValidated,
		ActorType:  models.ActorTypeSystem,
		EntityType: "reconciliation_run",
		EntityId:   run.ID,
		Payload: map[string]any{
			"record_count":    len(file.Records),
			"declared_count":  file.Footer.TotalCount,
			"declared_amount": file.Footer.TotalAmount,
			"period_start":    periodStart,
			"period_end":      periodEnd,
			"file_reference":  file.Header.FileReference,
		},
	}); err != nil {
		return run, failRun(db, logger, auditLog, run, "audit", err)
	}

	ledgerTxns, err := ledger.FetchTransactions(ctx, supplier.Name, periodStart, periodEnd)
	if err != nil {
		return run, failRun(db, logger, auditLog, run, "ledger_fetch", err)
	}
	if _, err := auditLog.Append(models.AppendInput{
		RunId:      &run.ID,
		SupplierId: supplier.ID,
		EventType:  models.AuditEventLedgerFetched,
		ActorType:  models.ActorTypeSystem,
		EntityType: "reconciliation_run",
		EntityId:   run.ID,
		Payload:    map[string]any{"ledger_transaction_count": len(ledgerTxns)},
	}); err != nil {
		return run, failRun(db, logger, auditLog, run, "audit", err)
	}

	// Matching. Pure computation; persisted immediately so partial data stays
	// available for forensics if a later phase fails.
	outcome := MatchSettlement(ledgerTxns, file.Records, supplier.MatchingConfig(), run.ID)
	if len(outcome.Matches) > 0 {
		if err := db.CreateInBatches(outcome.Matches, matchInsertBatchSize).Error; err != nil {
			return run, failRun(db, logger, auditLog, run, "match_persist", err)
		}
	}
	if _, err := auditLog.Append(models.AppendInput{
		RunId:      &run.ID,
		SupplierId: supplier.ID,
		EventType:  models.AuditEventMatchingCompleted,
		ActorType:  models.ActorTypeSystem,
		EntityType: "reconciliation_run",
		EntityId:   run.ID,
		Payload: map[string]any{
			"exact_count":              outcome.ExactCount,
			"fuzzy_count":              outcome.FuzzyCount,
			"unmatched_ledger_count":   outcome.UnmatchedLedgerCount,
			"unmatched_supplier_count": outcome.UnmatchedSupplierCount,
		},
	}); err != nil {
		return run, failRun(db, logger, auditLog, run, "audit", err)
	}

	// Discrepancy detection.
	detection := DetectionPolicyForSupplier(supplier)
	flagged := DetectDiscrepancies(outcome.Matches, detection)
	if _, err := auditLog.Append(models.AppendInput{
		RunId:      &run.ID,
		SupplierId: supplier.ID,
		EventType:  models.AuditEventDetectionCompleted,
		ActorType:  models.ActorTypeSystem,
		EntityType: "reconciliation_run",
		EntityId:   run.ID,
		Payload: map[string]any{
			"discrepancy_count":   len(flagged),
			"discrepancy_summary": tagCounts(flagged),
		},
	}); err != nil {
		return run, failRun(db, logger, auditLog, run, "audit", err)
	}

	// Self-healing resolution.
	resolution := ResolveDiscrepancies(flagged, ResolutionPolicyForSupplier(supplier), time.Now().UTC())
	for _, m := range flagged {
		err := db.Model(&models.TransactionMatch{}).
			Where("id = ? AND resolution_status = ?", m.ID, models.ResolutionStatusPending).
			Updates(map[string]interface{}{
				"has_discrepancy":     m.HasDiscrepancy,
				"discrepancy_types":   m.DiscrepancyTypes,
				"discrepancy_details": m.DiscrepancyDetails,
				"resolution_status":   m.ResolutionStatus,
				"resolution_method":   m.ResolutionMethod,
				"resolution_notes":    m.ResolutionNotes,
				"resolved_by":         m.ResolvedBy,
				"resolved_at":         m.ResolvedAt,
			}).Error
		if err != nil {
			return run, failRun(db, logger, auditLog, run, "resolution_persist", err)
		}
	}
	if _, err := auditLog.Append(models.AppendInput{
		RunId:      &run.ID,
		SupplierId: supplier.ID,
		EventType:  models.AuditEventResolutionCompleted,
		ActorType:  models.ActorTypeSystem,
		EntityType: "reconciliation_run",
		EntityId:   run.ID,
		Payload: map[string]any{
			"auto_resolved": resolution.AutoResolved,
			"manual_review": resolution.ManualReview,
			"escalated":     resolution.Escalated,
		},
	}); err != nil {
		return run, failRun(db, logger, auditLog, run, "audit", err)
	}

	// Commission reconciliation, independent of per-transaction flags.
	commission := ReconcileCommission(outcome.Matches, detection.CommissionTolerance)
	if _, err := auditLog.Append(models.AppendInput{
		RunId:      &run.ID,
		SupplierId: supplier.ID,
		EventType:  models.AuditEventCommissionReconciled,
		ActorType:  models.ActorTypeSystem,
		EntityType: "reconciliation_run",
		EntityId:   run.ID,
		Payload:    commission,
	}); err != nil {
		return run, failRun(db, logger, auditLog, run, "audit", err)
	}

	// Aggregates + verdict.
	run.TotalTransactions = len(outcome.Matches)
	run.ExactMatchCount = outcome.ExactCount
	run.FuzzyMatchCount = outcome.FuzzyCount
	run.UnmatchedLedgerCount = outcome.UnmatchedLedgerCount
	run.UnmatchedSupplierCount = outcome.UnmatchedSupplierCount
	run.TotalAmountLedger = outcome.TotalAmountLedger
	run.TotalAmountSupplier = outcome.TotalAmountSupplier
	run.AmountVariance = outcome.TotalAmountLedger.Sub(outcome.TotalAmountSupplier)
	run.TotalCommissionLedger = commission.TotalCommissionLedger
	run.TotalCommissionSupplier = commission.TotalCommissionSupplier
	run.CommissionVariance = commission.Variance
	run.CommissionVariancePercent = commission.VariancePercent
	run.DiscrepancyCount = len(flagged)
	run.AutoResolvedCount = resolution.AutoResolved
	run.ManualReviewCount = resolution.ManualReview
	run.EscalatedCount = resolution.Escalated
	if summary, err := utils.MarshalToJSON(tagCounts(flagged)); err == nil {
		run.DiscrepancySummary = summary
	}

	verdict, severity := ComputeVerdict(run, VerdictPolicyForSupplier(supplier))
	run.Verdict = verdict
	run.Severity = severity

	alertWorthy, err := DecideAlert(db, supplier, verdict, time.Now().UTC())
	if err != nil {
		return run, failRun(db, logger, auditLog, run, "alert_decision", err)
	}
	run.AlertWorthy = &alertWorthy
	if _, err := auditLog.Append(models.AppendInput{
		RunId:      &run.ID,
		SupplierId: supplier.ID,
		EventType:  models.AuditEventAlertDecision,
		ActorType:  models.ActorTypeSystem,
		EntityType: "reconciliation_run",
		EntityId:   run.ID,
		Payload: map[string]any{
			"verdict":      verdict,
			"severity":     severity,
			"alert_worthy": alertWorthy,
		},
	}); err != nil {
		return run, failRun(db, logger, auditLog, run, "audit", err)
	}

	now := time.Now().UTC()
	run.Status = models.RunStatusCompleted
	run.CompletedAt = &now
	run.ProcessingDurationMs = time.Since(started).Milliseconds()
	if err := db.Save(run).Error; err != nil {
		return run, failRun(db, logger, auditLog, run, "run_persist", err)
	}

	if _, err := auditLog.Append(models.AppendInput{
		RunId:      &run.ID,
		SupplierId: supplier.ID,
		EventType:  models.AuditEventRunCompleted,
		ActorType:  models.ActorTypeSystem,
		EntityType: "reconciliation_run",
		EntityId:   run.ID,
		Payload: map[string]any{
			"verdict":                verdict,
			"severity":               severity,
			"match_rate":             run.MatchRate(),
			"amount_variance":        run.AmountVariance,
			"processing_duration_ms": run.ProcessingDurationMs,
		},
	}); err != nil {
		return run, err
	}

	logger.WithFields(logrus.Fields{
		"module":      "ReconciliationWorkflow",
		"run_id":      run.ID,
		"supplier_id": supplier.ID,
		"verdict":     verdict,
		"severity":    severity,
		"duration_ms": run.ProcessingDurationMs,
	}).Info("reconciliation run completed")

	// Fire-and-forget: completion never depends on downstream delivery.
	config.PublishRunTrigger(ctx, config.RunTriggerMessage{
		RunId:         run.ID,
		SupplierId:    supplier.ID,
		SupplierName:  supplier.Name,
		RunStatus:     string(run.Status),
		Verdict:       string(verdict),
		Severity:      string(severity),
		AlertWorthy:   alertWorthy,
		CompletedAt:   now,
		CorrelationId: correlationId,
	})

	return run, nil
}

// reprocessResetColumns zeroes everything a prior pass persisted on the run
// row, so a forced re-run that fails mid-processing never reports stale
// aggregates next to its failed status.
func reprocessResetColumns(correlationId string, started time.Time) map[string]interface{} {
	return map[string]interface{}{
		"status":         models.RunStatusProcessing,
		"error_context":  "",
		"verdict":        "",
		"severity":       "",
		"alert_worthy":   nil,
		"completed_at":   nil,
		"received_at":    started.UTC(),
		"correlation_id": correlationId,

		"settlement_period_start":     nil,
		"settlement_period_end":       nil,
		"total_transactions":          0,
		"exact_match_count":           0,
		"fuzzy_match_count":           0,
		"unmatched_ledger_count":      0,
		"unmatched_supplier_count":    0,
		"total_amount_ledger":         decimal.Zero,
		"total_amount_supplier":       decimal.Zero,
		"amount_variance":             decimal.Zero,
		"total_commission_ledger":     decimal.Zero,
		"total_commission_supplier":   decimal.Zero,
		"commission_variance":         decimal.Zero,
		"commission_variance_percent": decimal.Zero,
		"discrepancy_count":           0,
		"auto_resolved_count":         0,
		"manual_review_count":         0,
		"escalated_count":             0,
		"discrepancy_summary":         "",
		"processing_duration_ms":      0,
	}
}

// resetRunForReprocess reuses the prior run row for a forced re-run: aggregates
// are cleared and child matches dropped, but the audit chain is preserved and
// extended so the history shows the reprocess happened.
func resetRunForReprocess(db *gorm.DB, auditLog *models.AuditLog, prior *models.ReconciliationRun, correlationId string, started time.Time) (*models.ReconciliationRun, error) {
	err := db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ?", prior.ID).Delete(&models.TransactionMatch{}).Error; err != nil {
			return err
		}
		return tx.Model(&models.ReconciliationRun{}).
			Where("id = ?", prior.ID).
			Updates(reprocessResetColumns(correlationId, started)).Error
	})
	if err != nil {
		return nil, err
	}

	if _, err := auditLog.Append(models.AppendInput{
		RunId:      &prior.ID,
		SupplierId: prior.SupplierId,
		EventType:  models.AuditEventRunReprocessed,
		ActorType:  models.ActorTypeOperator,
		EntityType: "reconciliation_run",
		EntityId:   prior.ID,
		Payload:    map[string]any{"correlation_id": correlationId},
	}); err != nil {
		return nil, err
	}

	fresh, err := models.GetReconciliationRun(db, prior.ID)
	if err != nil {
		return nil, err
	}
	return fresh, nil
}

// failRun transitions the run to failed, keeps whatever partial data was
// already persisted, writes the terminal audit event and hands the error back
// up so the caller (scheduler/API) sees it. No retries happen here.
func failRun(db *gorm.DB, logger *logrus.Logger, auditLog *models.AuditLog, run *models.ReconciliationRun, phase string, cause error) error {
	run.Status = models.RunStatusFailed
	run.ErrorContext = fmt.Sprintf("%s: %v", phase, cause)
	run.ProcessingDurationMs = time.Since(run.ReceivedAt).Milliseconds()

	if err := db.Save(run).Error; err != nil {
		config.LogError(logger, "ReconciliationWorkflow.go", "failRun", "persisting failed run", run.ID, err)
	}

	if _, err := auditLog.Append(models.AppendInput{
		RunId:      &run.ID,
		SupplierId: run.SupplierId,
		EventType:  models.AuditEventRunFailed,
		ActorType:  models.ActorTypeSystem,
		EntityType: "reconciliation_run",
		EntityId:   run.ID,
		Payload:    map[string]any{"phase": phase, "error": cause.Error()},
	}); err != nil {
		config.LogError(logger, "ReconciliationWorkflow.go", "failRun", "appending run_failed audit event", run.ID, err)
	}

	config.LogError(logger, "ReconciliationWorkflow.go", "ProcessSettlementFile", phase, run.ID, cause)
	return fmt.Errorf("reconciliation run %s failed during %s: %w", run.ID, phase, cause)
}

// settlementPeriod widens a date-only period end to the end of that day so
// ledger transactions stamped during the final day are included.
func settlementPeriod(file *adapters.SettlementFile) (time.Time, time.Time) {
	start := file.Header.PeriodStart
	end := file.Header.PeriodEnd
	if end.Hour() == 0 && end.Minute() == 0 && end.Second() == 0 {
		end = end.Add(24*time.Hour - time.Second)
	}
	return start, end
}

func tagCounts(flagged []*models.TransactionMatch) map[string]int {
	counts := make(map[string]int)
	for _, m := range flagged {
		for _, tag := range SplitDiscrepancyTags(m.DiscrepancyTypes) {
			counts[string(tag)]++
		}
	}
	return counts
}
