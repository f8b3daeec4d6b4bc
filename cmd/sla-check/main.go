// sla-check flags active suppliers whose last completed reconciliation run is
// older than the allowed window. Intended to run from cron / Cloud Scheduler.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... go run ./cmd/sla-check -max-age 48h
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmtopup/recon_backend/config"
	"bitbucket.org/mmtopup/recon_backend/workflow"
)

func main() {
	maxAge := flag.Duration("max-age", 48*time.Hour, "maximum age of the newest completed run per supplier")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	breaches, err := workflow.CheckSettlementSLA(db, config.GetLogger(), *maxAge, time.Now().UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "sla check failed: %v\n", err)
		os.Exit(1)
	}
	if len(breaches) == 0 {
		fmt.Println("All active suppliers within SLA.")
		return
	}
	for _, b := range breaches {
		last := "never"
		if b.LastRunAt != nil {
			last = b.LastRunAt.Format(time.RFC3339)
		}
		fmt.Printf("BREACH supplier=%s last_completed_run=%s alert_worthy=%t\n", b.SupplierCode, last, b.AlertWorthy)
	}
	os.Exit(1)
}
