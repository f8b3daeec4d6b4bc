package models

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LedgerTransaction is the platform's own record of a VAS transaction, the
// reconciliation baseline. The table belongs to the transaction ledger service;
// this module only ever reads it.
type LedgerTransaction struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	TransactionId       string          `gorm:"size:64;index" json:"transaction_id"`
	Reference           string          `gorm:"size:64;index" json:"reference"`
	SupplierName        string          `gorm:"size:100;index" json:"supplier_name"`
	Amount              decimal.Decimal `gorm:"type:decimal(20,4)" json:"amount"`
	Commission          decimal.Decimal `gorm:"type:decimal(20,4)" json:"commission"`
	Status              string          `gorm:"size:30" json:"status"`
	TransactionTime     time.Time       `gorm:"index" json:"transaction_time"`
	ProductId           int             `json:"product_id"`
	ProductName         string          `gorm:"size:100" json:"product_name"`
	SupplierProductCode string          `gorm:"size:50" json:"supplier_product_code"`
}

func (LedgerTransaction) TableName() string {
	return "vas_transactions"
}

// LedgerSource is the read-only query the reconciliation workflow depends on.
// The GORM implementation below reads the shared platform database; tests
// substitute in-memory fakes.
type LedgerSource interface {
	FetchTransactions(ctx context.Context, supplierName string, from, to time.Time) ([]LedgerTransaction, error)
}

type gormLedgerSource struct {
	db *gorm.DB
}

func NewLedgerSource(db *gorm.DB) LedgerSource {
	return &gormLedgerSource{db: db}
}

func (s *gormLedgerSource) FetchTransactions(ctx context.Context, supplierName string, from, to time.Time) ([]LedgerTransaction, error) {
	var txns []LedgerTransaction
	err := s.db.WithContext(ctx).
		Where("supplier_name = ? AND transaction_time >= ? AND transaction_time <= ?", supplierName, from, to).
		Order("transaction_time asc, id asc").
		Find(&txns).Error
	return txns, err
}
