// reprocess-file re-runs reconciliation for a settlement file that was already
// ingested. The prior run row for the same (supplier, file hash) is reused: its
// matches are rebuilt and its audit chain is extended, never rewritten.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... go run ./cmd/reprocess-file -code MMTEL -file settlements/mmtel_20260828.csv
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"bitbucket.org/mmtopup/recon_backend/config"
	"bitbucket.org/mmtopup/recon_backend/models"
	"bitbucket.org/mmtopup/recon_backend/utils"
	"bitbucket.org/mmtopup/recon_backend/workflow"
)

func main() {
	code := flag.String("code", "", "supplier code (required)")
	file := flag.String("file", "", "path to the settlement file (required)")
	flag.Parse()

	if *code == "" || *file == "" {
		flag.Usage()
		os.Exit(2)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	logger := config.GetLogger()

	supplier, err := models.GetSupplierByCode(db, utils.NormalizeKey(*code))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to lookup supplier %q: %v\n", *code, err)
		os.Exit(1)
	}

	raw, err := os.ReadFile(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", *file, err)
		os.Exit(1)
	}

	ctx := utils.SetForceReprocessInContext(context.Background(), true)
	ctx = utils.SetOperatorIdInContext(ctx, "reprocess-file")

	run, err := workflow.ProcessSettlementFile(ctx, db, logger, models.NewLedgerSource(db), supplier, filepath.Base(*file), raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "reprocess failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Run %s: status=%s verdict=%s severity=%s match_rate=%.4f\n",
		run.ID, run.Status, run.Verdict, run.Severity, run.MatchRate())
}
