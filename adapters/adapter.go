// Package adapters defines the pluggable settlement-file parser contract and
// the registry concrete per-supplier formats register into. The reconciliation
// core depends only on the parsed shape, never on a supplier's byte layout.
package adapters

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// SchemaConfig describes one supplier's file dialect. Concrete adapters read
// whatever subset applies to them; unknown fields are ignored.
type SchemaConfig struct {
	Delimiter       string `json:"delimiter"`
	TimestampLayout string `json:"timestamp_layout"`
	DateLayout      string `json:"date_layout"`
	// Record-type markers for row-tagged formats.
	HeaderMarker string `json:"header_marker"`
	DetailMarker string `json:"detail_marker"`
	FooterMarker string `json:"footer_marker"`
}

func DefaultSchemaConfig() SchemaConfig {
	return SchemaConfig{
		Delimiter:       ",",
		TimestampLayout: "2006-01-02 15:04:05",
		DateLayout:      "2006-01-02",
		HeaderMarker:    "H",
		DetailMarker:    "D",
		FooterMarker:    "F",
	}
}

// SettlementHeader carries run-level settlement metadata declared by the
// supplier, most importantly the period the file covers.
type SettlementHeader struct {
	SupplierName  string    `json:"supplier_name"`
	FileReference string    `json:"file_reference"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
}

// SettlementRecord is one transaction as reported in the supplier's file.
type SettlementRecord struct {
	TransactionId string          `json:"transaction_id"`
	Reference     string          `json:"reference"`
	Amount        decimal.Decimal `json:"amount"`
	Commission    decimal.Decimal `json:"commission"`
	Status        string          `json:"status"`
	Timestamp     time.Time       `json:"timestamp"`
	ProductCode   string          `json:"product_code"`
	ProductName   string          `json:"product_name"`
}

// SettlementFooter carries the supplier-declared totals used to cross-check
// the parsed body before any matching is attempted.
type SettlementFooter struct {
	TotalCount      int             `json:"total_count"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	TotalCommission decimal.Decimal `json:"total_commission"`
}

type SettlementFile struct {
	Header  SettlementHeader   `json:"header"`
	Records []SettlementRecord `json:"records"`
	Footer  SettlementFooter   `json:"footer"`
}

// footerTolerance allows declared totals to disagree with summed body values
// by at most one cent; the declared count must match exactly.
var footerTolerance = decimal.NewFromFloat(0.01)

// ValidateFooter rejects the file when declared totals diverge from the body.
// Ingestion errors are fatal to a run: a file whose own totals do not add up
// cannot be reconciled against anything.
func (f *SettlementFile) ValidateFooter() error {
	if f.Footer.TotalCount != len(f.Records) {
		return fmt.Errorf("footer declares %d records but body has %d", f.Footer.TotalCount, len(f.Records))
	}

	sumAmount := decimal.Zero
	sumCommission := decimal.Zero
	for _, r := range f.Records {
		sumAmount = sumAmount.Add(r.Amount)
		sumCommission = sumCommission.Add(r.Commission)
	}

	if f.Footer.TotalAmount.Sub(sumAmount).Abs().GreaterThan(footerTolerance) {
		return fmt.Errorf("footer total amount %s does not match body sum %s",
			f.Footer.TotalAmount.StringFixed(2), sumAmount.StringFixed(2))
	}
	if f.Footer.TotalCommission.Sub(sumCommission).Abs().GreaterThan(footerTolerance) {
		return fmt.Errorf("footer total commission %s does not match body sum %s",
			f.Footer.TotalCommission.StringFixed(2), sumCommission.StringFixed(2))
	}
	return nil
}

// FileAdapter parses one supplier file dialect into the settlement shape.
// Implementations must be stateless and safe for concurrent use.
type FileAdapter interface {
	Name() string
	Parse(raw []byte, schema SchemaConfig) (*SettlementFile, error)
}

var (
	registryMu sync.RWMutex
	registry   = map[string]FileAdapter{}
)

// Register makes an adapter selectable by supplier configuration. Called from
// adapter init() funcs; duplicate names panic early rather than shadowing.
func Register(a FileAdapter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[a.Name()]; exists {
		panic("adapters: duplicate adapter name " + a.Name())
	}
	registry[a.Name()] = a
}

func Get(name string) (FileAdapter, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	a, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("no file adapter registered for %q", name)
	}
	return a, nil
}

func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
