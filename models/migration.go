package models

import (
	"log"

	"bitbucket.org/mmtopup/recon_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Supplier{},
		&ReconciliationRun{},
		&TransactionMatch{},
		&AuditEvent{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
