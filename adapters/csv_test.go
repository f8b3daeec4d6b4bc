package adapters

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const goodFile = `H,Myanmar Telecom,MMTEL-20260827,2026-08-27,2026-08-27
D,TXN-001,REF-001,1000.00,20.00,SUCCESS,2026-08-27 10:15:00,AIRTIME_1000,Airtime 1000
D,TXN-002,REF-002,5000.00,100.00,SUCCESS,2026-08-27 11:02:30,DATA_5GB,Data Pack 5GB
F,2,6000.00,120.00
`

func TestCsvAdapter_ParseGoodFile(t *testing.T) {
	adapter, err := Get("csv")
	if err != nil {
		t.Fatalf("csv adapter not registered: %v", err)
	}

	file, err := adapter.Parse([]byte(goodFile), SchemaConfig{})
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	if file.Header.SupplierName != "Myanmar Telecom" || file.Header.FileReference != "MMTEL-20260827" {
		t.Fatalf("header parsed wrong: %+v", file.Header)
	}
	if !file.Header.PeriodStart.Equal(time.Date(2026, 8, 27, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("period start %s", file.Header.PeriodStart)
	}
	if len(file.Records) != 2 {
		t.Fatalf("records %d, want 2", len(file.Records))
	}

	r := file.Records[0]
	if r.TransactionId != "TXN-001" || !r.Amount.Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("first record parsed wrong: %+v", r)
	}
	if !r.Timestamp.Equal(time.Date(2026, 8, 27, 10, 15, 0, 0, time.UTC)) {
		t.Fatalf("record timestamp %s", r.Timestamp)
	}
	if file.Footer.TotalCount != 2 || !file.Footer.TotalAmount.Equal(decimal.NewFromInt(6000)) {
		t.Fatalf("footer parsed wrong: %+v", file.Footer)
	}

	if err := file.ValidateFooter(); err != nil {
		t.Fatalf("good file footer rejected: %v", err)
	}
}

func TestCsvAdapter_ParseErrors(t *testing.T) {
	cases := []struct {
		name    string
		input   string
		wantMsg string
	}{
		{
			"missing header",
			"D,TXN-1,REF-1,10.00,0.20,SUCCESS,2026-08-27 10:00:00,P,Prod\nF,1,10.00,0.20\n",
			"no header row",
		},
		{
			"missing footer",
			"H,S,FR,2026-08-27,2026-08-27\nD,TXN-1,REF-1,10.00,0.20,SUCCESS,2026-08-27 10:00:00,P,Prod\n",
			"no footer row",
		},
		{
			"bad amount",
			"H,S,FR,2026-08-27,2026-08-27\nD,TXN-1,REF-1,TEN,0.20,SUCCESS,2026-08-27 10:00:00,P,Prod\nF,1,10.00,0.20\n",
			"detail amount",
		},
		{
			"bad timestamp",
			"H,S,FR,2026-08-27,2026-08-27\nD,TXN-1,REF-1,10.00,0.20,SUCCESS,tomorrow,P,Prod\nF,1,10.00,0.20\n",
			"detail timestamp",
		},
		{
			"missing both keys",
			"H,S,FR,2026-08-27,2026-08-27\nD,,,10.00,0.20,SUCCESS,2026-08-27 10:00:00,P,Prod\nF,1,10.00,0.20\n",
			"missing both transaction id and reference",
		},
		{
			"period end before start",
			"H,S,FR,2026-08-28,2026-08-27\nF,0,0.00,0.00\n",
			"before start",
		},
		{
			"unknown marker",
			"H,S,FR,2026-08-27,2026-08-27\nX,what\nF,0,0.00,0.00\n",
			"unknown record marker",
		},
		{
			"detail after footer",
			"H,S,FR,2026-08-27,2026-08-27\nF,0,0.00,0.00\nD,TXN-1,REF-1,10.00,0.20,SUCCESS,2026-08-27 10:00:00,P,Prod\n",
			"detail row after footer",
		},
	}

	adapter, _ := Get("csv")
	for _, tc := range cases {
		_, err := adapter.Parse([]byte(tc.input), SchemaConfig{})
		if err == nil {
			t.Fatalf("%s: expected parse error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.wantMsg) {
			t.Fatalf("%s: error %q does not mention %q", tc.name, err, tc.wantMsg)
		}
	}
}

func TestValidateFooter_Rejections(t *testing.T) {
	base := func() *SettlementFile {
		return &SettlementFile{
			Records: []SettlementRecord{
				{TransactionId: "T1", Amount: decimal.NewFromInt(100), Commission: decimal.NewFromInt(2)},
				{TransactionId: "T2", Amount: decimal.NewFromInt(200), Commission: decimal.NewFromInt(4)},
			},
			Footer: SettlementFooter{
				TotalCount:      2,
				TotalAmount:     decimal.NewFromInt(300),
				TotalCommission: decimal.NewFromInt(6),
			},
		}
	}

	if err := base().ValidateFooter(); err != nil {
		t.Fatalf("consistent footer rejected: %v", err)
	}

	f := base()
	f.Footer.TotalCount = 3
	if err := f.ValidateFooter(); err == nil || !strings.Contains(err.Error(), "declares 3 records") {
		t.Fatalf("count mismatch not rejected: %v", err)
	}

	f = base()
	f.Footer.TotalAmount = decimal.NewFromFloat(300.05)
	if err := f.ValidateFooter(); err == nil || !strings.Contains(err.Error(), "total amount") {
		t.Fatalf("amount drift beyond tolerance not rejected: %v", err)
	}

	// One cent of rounding drift in totals is tolerated.
	f = base()
	f.Footer.TotalAmount = decimal.NewFromFloat(300.01)
	if err := f.ValidateFooter(); err != nil {
		t.Fatalf("within-tolerance drift rejected: %v", err)
	}

	f = base()
	f.Footer.TotalCommission = decimal.NewFromFloat(6.50)
	if err := f.ValidateFooter(); err == nil || !strings.Contains(err.Error(), "total commission") {
		t.Fatalf("commission drift not rejected: %v", err)
	}
}

func TestAdapterRegistry(t *testing.T) {
	names := Names()
	found := false
	for _, n := range names {
		if n == "csv" {
			found = true
		}
	}
	if !found {
		t.Fatalf("csv missing from registry: %v", names)
	}
	if _, err := Get("does-not-exist"); err == nil {
		t.Fatalf("unknown adapter name must error")
	}
}

func TestCsvAdapter_CustomDelimiter(t *testing.T) {
	input := "H|S|FR|2026-08-27|2026-08-27\nD|TXN-1|REF-1|10.00|0.20|SUCCESS|2026-08-27 10:00:00|P|Prod\nF|1|10.00|0.20\n"
	adapter, _ := Get("csv")
	file, err := adapter.Parse([]byte(input), SchemaConfig{Delimiter: "|"})
	if err != nil {
		t.Fatalf("pipe-delimited parse failed: %v", err)
	}
	if len(file.Records) != 1 || file.Records[0].TransactionId != "TXN-1" {
		t.Fatalf("pipe-delimited records wrong: %+v", file.Records)
	}
}
