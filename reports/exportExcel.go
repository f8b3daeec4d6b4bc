// Package reports renders a completed run into a settlement summary workbook.
// It is one concrete reporting collaborator; the reconciliation core only
// hands it data and does not depend on it.
package reports

import (
	"fmt"
	"io"

	"bitbucket.org/mmtopup/recon_backend/models"
	"bitbucket.org/mmtopup/recon_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	summarySheet     = "Summary"
	discrepancySheet = "Discrepancies"
)

// WriteRunWorkbook streams an xlsx with a run-level summary sheet and one row
// per discrepancy.
func WriteRunWorkbook(w io.Writer, supplier *models.Supplier, run *models.ReconciliationRun, matches []models.TransactionMatch) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(discrepancySheet); err != nil {
		return err
	}

	summaryRows := [][]interface{}{
		{"Supplier", supplier.Name},
		{"Run ID", run.ID},
		{"File", run.FileName},
		{"File Hash", run.FileHash},
		{"Status", string(run.Status)},
		{"Verdict", string(run.Verdict)},
		{"Severity", string(run.Severity)},
		{"Total Transactions", run.TotalTransactions},
		{"Exact Matches", run.ExactMatchCount},
		{"Fuzzy Matches", run.FuzzyMatchCount},
		{"Unmatched (Ledger)", run.UnmatchedLedgerCount},
		{"Unmatched (Supplier)", run.UnmatchedSupplierCount},
		{"Match Rate", fmt.Sprintf("%.2f%%", run.MatchRate()*100)},
		{"Total Amount (Ledger)", run.TotalAmountLedger.StringFixed(2)},
		{"Total Amount (Supplier)", run.TotalAmountSupplier.StringFixed(2)},
		{"Amount Variance", run.AmountVariance.StringFixed(2)},
		{"Total Commission (Ledger)", run.TotalCommissionLedger.StringFixed(2)},
		{"Total Commission (Supplier)", run.TotalCommissionSupplier.StringFixed(2)},
		{"Commission Variance", run.CommissionVariance.StringFixed(2)},
		{"Discrepancies", run.DiscrepancyCount},
		{"Auto Resolved", run.AutoResolvedCount},
		{"Manual Review", run.ManualReviewCount},
		{"Escalated", run.EscalatedCount},
	}
	for i, row := range summaryRows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &row); err != nil {
			return err
		}
	}

	header := []interface{}{
		"Match ID", "Ledger Txn ID", "Supplier Txn ID", "Match Status",
		"Discrepancy Types", "Ledger Amount", "Supplier Amount",
		"Resolution Status", "Resolution Method", "Resolution Notes",
	}
	if err := f.SetSheetRow(discrepancySheet, "A1", &header); err != nil {
		return err
	}

	rowNo := 2
	for i := range matches {
		m := &matches[i]
		if !m.HasDiscrepancy {
			continue
		}
		row := []interface{}{
			m.ID,
			utils.DereferencePtr(m.LedgerTransactionId),
			utils.DereferencePtr(m.SupplierTransactionId),
			string(m.MatchStatus),
			m.DiscrepancyTypes,
			nullDecimalString(m.LedgerAmount),
			nullDecimalString(m.SupplierAmount),
			string(m.ResolutionStatus),
			string(m.ResolutionMethod),
			m.ResolutionNotes,
		}
		cell, err := excelize.CoordinatesToCellName(1, rowNo)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(discrepancySheet, cell, &row); err != nil {
			return err
		}
		rowNo++
	}

	return f.Write(w)
}

func nullDecimalString(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}
