package adapters

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// csvAdapter parses the row-tagged delimited layout most aggregators deliver:
//
//	H,<supplier_name>,<file_reference>,<period_start>,<period_end>
//	D,<txn_id>,<reference>,<amount>,<commission>,<status>,<timestamp>,<product_code>,<product_name>
//	...
//	F,<total_count>,<total_amount>,<total_commission>
//
// Markers, delimiter and time layouts come from the supplier's SchemaConfig.
type csvAdapter struct{}

func init() {
	Register(csvAdapter{})
}

func (csvAdapter) Name() string { return "csv" }

func (csvAdapter) Parse(raw []byte, schema SchemaConfig) (*SettlementFile, error) {
	def := DefaultSchemaConfig()
	if schema.Delimiter == "" {
		schema.Delimiter = def.Delimiter
	}
	if schema.TimestampLayout == "" {
		schema.TimestampLayout = def.TimestampLayout
	}
	if schema.DateLayout == "" {
		schema.DateLayout = def.DateLayout
	}
	if schema.HeaderMarker == "" {
		schema.HeaderMarker = def.HeaderMarker
	}
	if schema.DetailMarker == "" {
		schema.DetailMarker = def.DetailMarker
	}
	if schema.FooterMarker == "" {
		schema.FooterMarker = def.FooterMarker
	}

	file := &SettlementFile{}
	var sawHeader, sawFooter bool
	lineNo := 0

	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, schema.Delimiter)
		marker := strings.TrimSpace(fields[0])

		switch marker {
		case schema.HeaderMarker:
			if sawHeader {
				return nil, fmt.Errorf("line %d: duplicate header row", lineNo)
			}
			header, err := parseHeaderRow(fields, schema)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			file.Header = *header
			sawHeader = true

		case schema.DetailMarker:
			if sawFooter {
				return nil, fmt.Errorf("line %d: detail row after footer", lineNo)
			}
			record, err := parseDetailRow(fields, schema)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			file.Records = append(file.Records, *record)

		case schema.FooterMarker:
			if sawFooter {
				return nil, fmt.Errorf("line %d: duplicate footer row", lineNo)
			}
			footer, err := parseFooterRow(fields)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			file.Footer = *footer
			sawFooter = true

		default:
			return nil, fmt.Errorf("line %d: unknown record marker %q", lineNo, marker)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if !sawHeader {
		return nil, fmt.Errorf("file has no header row")
	}
	if !sawFooter {
		return nil, fmt.Errorf("file has no footer row")
	}
	return file, nil
}

func parseHeaderRow(fields []string, schema SchemaConfig) (*SettlementHeader, error) {
	if len(fields) < 5 {
		return nil, fmt.Errorf("header row has %d fields, want 5", len(fields))
	}
	header := &SettlementHeader{
		SupplierName:  strings.TrimSpace(fields[1]),
		FileReference: strings.TrimSpace(fields[2]),
	}

	start, err := parseDateOrTimestamp(fields[3], schema)
	if err != nil {
		return nil, fmt.Errorf("header period start: %w", err)
	}
	end, err := parseDateOrTimestamp(fields[4], schema)
	if err != nil {
		return nil, fmt.Errorf("header period end: %w", err)
	}
	header.PeriodStart = start
	header.PeriodEnd = end

	if header.PeriodEnd.Before(header.PeriodStart) {
		return nil, fmt.Errorf("header period end %s before start %s", fields[4], fields[3])
	}
	return header, nil
}

func parseDetailRow(fields []string, schema SchemaConfig) (*SettlementRecord, error) {
	if len(fields) < 9 {
		return nil, fmt.Errorf("detail row has %d fields, want 9", len(fields))
	}

	record := &SettlementRecord{
		TransactionId: strings.TrimSpace(fields[1]),
		Reference:     strings.TrimSpace(fields[2]),
		Status:        strings.TrimSpace(fields[5]),
		ProductCode:   strings.TrimSpace(fields[7]),
		ProductName:   strings.TrimSpace(fields[8]),
	}
	if record.TransactionId == "" && record.Reference == "" {
		return nil, fmt.Errorf("detail row missing both transaction id and reference")
	}

	amount, err := decimal.NewFromString(strings.TrimSpace(fields[3]))
	if err != nil {
		return nil, fmt.Errorf("detail amount %q: %w", fields[3], err)
	}
	commission, err := decimal.NewFromString(strings.TrimSpace(fields[4]))
	if err != nil {
		return nil, fmt.Errorf("detail commission %q: %w", fields[4], err)
	}
	record.Amount = amount
	record.Commission = commission

	ts, err := parseDateOrTimestamp(fields[6], schema)
	if err != nil {
		return nil, fmt.Errorf("detail timestamp: %w", err)
	}
	record.Timestamp = ts

	return record, nil
}

func parseFooterRow(fields []string) (*SettlementFooter, error) {
	if len(fields) < 4 {
		return nil, fmt.Errorf("footer row has %d fields, want 4", len(fields))
	}
	count, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return nil, fmt.Errorf("footer count %q: %w", fields[1], err)
	}
	amount, err := decimal.NewFromString(strings.TrimSpace(fields[2]))
	if err != nil {
		return nil, fmt.Errorf("footer total amount %q: %w", fields[2], err)
	}
	commission, err := decimal.NewFromString(strings.TrimSpace(fields[3]))
	if err != nil {
		return nil, fmt.Errorf("footer total commission %q: %w", fields[3], err)
	}
	return &SettlementFooter{
		TotalCount:      count,
		TotalAmount:     amount,
		TotalCommission: commission,
	}, nil
}

func parseDateOrTimestamp(raw string, schema SchemaConfig) (t time.Time, err error) {
	v := strings.TrimSpace(raw)
	if t, err = time.Parse(schema.TimestampLayout, v); err == nil {
		return t, nil
	}
	if t, err = time.Parse(schema.DateLayout, v); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("cannot parse %q with layout %q or %q", v, schema.TimestampLayout, schema.DateLayout)
}
