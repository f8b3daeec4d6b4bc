package models

import (
	"testing"
	"time"
)

// NOTE: These tests are intentionally DB-free. They exercise the pure chain
// arithmetic; Append's read-last-then-insert transaction needs a real MySQL.

func buildChain(payloads []string) []AuditEvent {
	events := make([]AuditEvent, 0, len(payloads))
	prev := ""
	base := time.Date(2026, 8, 28, 9, 0, 0, 123456789, time.UTC)
	for i, p := range payloads {
		hashedAt := base.Add(time.Duration(i) * time.Second).Format(time.RFC3339Nano)
		ev := AuditEvent{
			ID:                i + 1,
			EventType:         AuditEventRunCreated,
			ActorType:         ActorTypeSystem,
			Payload:           p,
			HashedAt:          hashedAt,
			PreviousEventHash: prev,
			EventHash:         ComputeEventHash(p, hashedAt, prev),
		}
		events = append(events, ev)
		prev = ev.EventHash
	}
	return events
}

func TestVerifyChain_IntactChain(t *testing.T) {
	events := buildChain([]string{`{"a":1}`, `{"b":2}`, `{"c":3}`, `{}`})
	result := VerifyChain(events)
	if !result.Valid || len(result.BrokenLinks) != 0 {
		t.Fatalf("intact chain reported broken: %+v", result)
	}
	if result.TotalEvents != 4 {
		t.Fatalf("total events %d, want 4", result.TotalEvents)
	}
}

func TestVerifyChain_EmptyChain(t *testing.T) {
	result := VerifyChain(nil)
	if !result.Valid || result.TotalEvents != 0 {
		t.Fatalf("empty chain must be trivially valid: %+v", result)
	}
}

func TestVerifyChain_MutatedPayloadBreaksAllLaterLinks(t *testing.T) {
	events := buildChain([]string{`{"a":1}`, `{"b":2}`, `{"c":3}`, `{"d":4}`, `{"e":5}`})
	events[1].Payload = `{"b":999}`

	result := VerifyChain(events)
	if result.Valid {
		t.Fatalf("mutated chain reported valid")
	}
	want := []int{1, 2, 3, 4}
	if len(result.BrokenLinks) != len(want) {
		t.Fatalf("broken links %v, want %v", result.BrokenLinks, want)
	}
	for i := range want {
		if result.BrokenLinks[i] != want[i] {
			t.Fatalf("broken links %v, want %v", result.BrokenLinks, want)
		}
	}
}

func TestVerifyChain_MutatedTimestampBreaks(t *testing.T) {
	events := buildChain([]string{`{"a":1}`, `{"b":2}`})
	events[0].HashedAt = time.Now().UTC().Format(time.RFC3339Nano)

	result := VerifyChain(events)
	if result.Valid || len(result.BrokenLinks) == 0 || result.BrokenLinks[0] != 0 {
		t.Fatalf("timestamp mutation not detected: %+v", result)
	}
}

func TestVerifyChain_SwappedHashCannotHide(t *testing.T) {
	// An attacker who rewrites a payload AND recomputes that event's own hash
	// still breaks the next event's previous-hash pointer.
	events := buildChain([]string{`{"a":1}`, `{"b":2}`, `{"c":3}`})
	events[1].Payload = `{"b":999}`
	events[1].EventHash = ComputeEventHash(events[1].Payload, events[1].HashedAt, events[1].PreviousEventHash)

	result := VerifyChain(events)
	if result.Valid {
		t.Fatalf("recomputed-hash tampering reported valid")
	}
	if len(result.BrokenLinks) != 1 || result.BrokenLinks[0] != 2 {
		t.Fatalf("expected successor link 2 broken, got %v", result.BrokenLinks)
	}
}

func TestComputeEventHash_Deterministic(t *testing.T) {
	a := ComputeEventHash(`{"x":1}`, "2026-08-28T09:00:00.123456789Z", "")
	b := ComputeEventHash(`{"x":1}`, "2026-08-28T09:00:00.123456789Z", "")
	if a != b {
		t.Fatalf("hash not deterministic: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if c := ComputeEventHash(`{"x":2}`, "2026-08-28T09:00:00.123456789Z", ""); c == a {
		t.Fatalf("different payloads must hash differently")
	}
}
