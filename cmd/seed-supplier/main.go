// seed-supplier creates or updates a supplier row with default matching,
// self-healing and verdict policies.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... go run ./cmd/seed-supplier -code MMTEL -name "Myanmar Telecom"
//   ... -schema '{"delimiter":"|"}' overrides the adapter's default dialect.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmtopup/recon_backend/config"
	"bitbucket.org/mmtopup/recon_backend/models"
	"bitbucket.org/mmtopup/recon_backend/utils"
)

func main() {
	code := flag.String("code", "", "supplier code (required, stored uppercase)")
	name := flag.String("name", "", "supplier display name (required)")
	adapter := flag.String("adapter", "csv", "settlement file adapter name")
	email := flag.String("email", "", "contact email for settlement follow-ups")
	schema := flag.String("schema", "", "file dialect overrides as JSON (delimiter, layouts, markers)")
	inactive := flag.Bool("inactive", false, "seed the supplier as inactive (ingestion rejected)")
	flag.Parse()

	if *code == "" || *name == "" {
		flag.Usage()
		os.Exit(2)
	}
	if *email != "" && !utils.IsValidEmail(*email) {
		fmt.Fprintf(os.Stderr, "invalid email %q\n", *email)
		os.Exit(2)
	}
	if _, err := (&models.Supplier{Code: *code, SchemaJSON: *schema}).SchemaConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid schema overrides: %v\n", err)
		os.Exit(2)
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	isActive := utils.NewTrue()
	if *inactive {
		isActive = utils.NewFalse()
	}

	normalized := utils.NormalizeKey(*code)
	existing, err := models.GetSupplierByCode(db, normalized)
	if err != nil && !errors.Is(err, utils.ErrorRecordNotFound) {
		fmt.Fprintf(os.Stderr, "failed to lookup supplier: %v\n", err)
		os.Exit(1)
	}

	if existing != nil {
		if err := db.Model(&models.Supplier{}).Where("id = ?", existing.ID).Updates(map[string]any{
			"name":         *name,
			"adapter_name": *adapter,
			"email":        *email,
			"schema_json":  *schema,
			"is_active":    isActive,
		}).Error; err != nil {
			fmt.Fprintf(os.Stderr, "failed to update supplier: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Updated supplier: code=%q id=%d\n", normalized, existing.ID)
		return
	}

	s := models.Supplier{
		Code:        normalized,
		Name:        *name,
		Email:       *email,
		AdapterName: *adapter,
		SchemaJSON:  *schema,
		IsActive:    isActive,
	}
	if err := db.Create(&s).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to create supplier: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Created supplier: code=%q id=%d (policy defaults apply)\n", normalized, s.ID)
}
