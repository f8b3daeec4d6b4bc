package models

import (
	"errors"
	"fmt"
	"testing"

	"bitbucket.org/mmtopup/recon_backend/utils"
	"gorm.io/gorm"
)

func TestSupplierSchemaConfig_Defaults(t *testing.T) {
	s := &Supplier{Code: "MMTEL"}
	schema, err := s.SchemaConfig()
	if err != nil {
		t.Fatalf("empty overrides must not error: %v", err)
	}
	if schema.Delimiter != "," || schema.HeaderMarker != "H" || schema.DetailMarker != "D" || schema.FooterMarker != "F" {
		t.Fatalf("empty overrides must yield adapter defaults, got %+v", schema)
	}
}

func TestSupplierSchemaConfig_PartialOverride(t *testing.T) {
	s := &Supplier{Code: "MMTEL", SchemaJSON: `{"delimiter":"|","footer_marker":"T"}`}
	schema, err := s.SchemaConfig()
	if err != nil {
		t.Fatalf("valid overrides must not error: %v", err)
	}
	if schema.Delimiter != "|" {
		t.Fatalf("delimiter override lost: %q", schema.Delimiter)
	}
	if schema.FooterMarker != "T" {
		t.Fatalf("footer marker override lost: %q", schema.FooterMarker)
	}
	// Knobs the JSON does not name keep their defaults.
	if schema.HeaderMarker != "H" || schema.TimestampLayout != "2006-01-02 15:04:05" {
		t.Fatalf("unnamed knobs must keep defaults, got %+v", schema)
	}
}

func TestSupplierSchemaConfig_InvalidJSON(t *testing.T) {
	s := &Supplier{Code: "MMTEL", SchemaJSON: `{"delimiter":`}
	if _, err := s.SchemaConfig(); err == nil {
		t.Fatalf("malformed overrides must error")
	}
}

func TestTranslateNotFound(t *testing.T) {
	if got := translateNotFound(gorm.ErrRecordNotFound); !errors.Is(got, utils.ErrorRecordNotFound) {
		t.Fatalf("gorm sentinel not translated: %v", got)
	}
	wrapped := fmt.Errorf("lookup: %w", gorm.ErrRecordNotFound)
	if got := translateNotFound(wrapped); !errors.Is(got, utils.ErrorRecordNotFound) {
		t.Fatalf("wrapped gorm sentinel not translated: %v", got)
	}
	other := errors.New("connection refused")
	if got := translateNotFound(other); got != other {
		t.Fatalf("unrelated error must pass through unchanged: %v", got)
	}
	if translateNotFound(nil) != nil {
		t.Fatalf("nil must pass through as nil")
	}
}
