package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditEvent is one append-only log entry. Events belonging to a run form a
// singly-linked hash chain in creation order: each event's hash covers its own
// payload, its timestamp and the previous event's hash, so any mutation of a
// past event breaks the chain for every subsequent event.
//
// The auto-increment ID doubles as the chain order; rows are never updated or
// deleted (enforced by AuditLog exposing no such methods).
type AuditEvent struct {
	ID      int     `gorm:"primary_key" json:"id"`
	EventId string  `gorm:"size:36;not null;uniqueIndex" json:"event_id"`
	RunId   *string `gorm:"size:36;index" json:"run_id"`
	// SupplierId is set for supplier-wide events that are not tied to a run
	// (e.g. settlement SLA breaches).
	SupplierId int `gorm:"index" json:"supplier_id"`

	EventType  AuditEventType `gorm:"size:50;not null;index" json:"event_type"`
	ActorType  ActorType      `gorm:"size:20;not null" json:"actor_type"`
	ActorId    string         `gorm:"size:100" json:"actor_id"`
	EntityType string         `gorm:"size:50" json:"entity_type"`
	EntityId   string         `gorm:"size:64" json:"entity_id"`

	Payload string `gorm:"type:text" json:"payload"`

	// EventTime is the wall-clock timestamp; HashedAt is the exact RFC3339Nano
	// rendering of it that went into the hash. The string is stored verbatim
	// because DATETIME columns round sub-second precision, which would make
	// recomputed hashes drift from stored ones.
	EventTime time.Time `gorm:"not null;index" json:"event_time"`
	HashedAt  string    `gorm:"size:40;not null" json:"hashed_at"`

	EventHash         string `gorm:"size:64;not null" json:"event_hash"`
	PreviousEventHash string `gorm:"size:64" json:"previous_event_hash"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// ComputeEventHash derives the chain hash: SHA-256 over
// payload || timestamp || previous hash.
func ComputeEventHash(payload, hashedAt, previousHash string) string {
	h := sha256.New()
	h.Write([]byte(payload))
	h.Write([]byte(hashedAt))
	h.Write([]byte(previousHash))
	return hex.EncodeToString(h.Sum(nil))
}

// ChainVerification is the outcome of walking one run's audit chain.
type ChainVerification struct {
	Valid       bool  `json:"valid"`
	TotalEvents int   `json:"total_events"`
	BrokenLinks []int `json:"broken_links"`
}

// AuditLog is the write-only repository for audit events. It deliberately has
// no update or delete path; integrity checking is the only read beyond listing.
type AuditLog struct {
	db *gorm.DB
}

func NewAuditLog(db *gorm.DB) *AuditLog {
	return &AuditLog{db: db}
}

// AppendInput carries everything for one chain entry. Payload is marshalled to
// JSON; a nil payload hashes as an empty object.
type AppendInput struct {
	RunId      *string
	SupplierId int
	EventType  AuditEventType
	ActorType  ActorType
	ActorId    string
	EntityType string
	EntityId   string
	Payload    any
}

func (l *AuditLog) Append(in AppendInput) (*AuditEvent, error) {
	payload := "{}"
	if in.Payload != nil {
		data, err := json.Marshal(in.Payload)
		if err != nil {
			return nil, err
		}
		payload = string(data)
	}

	var event *AuditEvent
	err := l.db.Transaction(func(tx *gorm.DB) error {
		previousHash := ""
		if in.RunId != nil {
			var prev AuditEvent
			err := tx.Where("run_id = ?", *in.RunId).Order("id desc").First(&prev).Error
			if err == nil {
				previousHash = prev.EventHash
			} else if err != gorm.ErrRecordNotFound {
				return err
			}
		}

		now := time.Now().UTC()
		hashedAt := now.Format(time.RFC3339Nano)

		event = &AuditEvent{
			EventId:           uuid.NewString(),
			RunId:             in.RunId,
			SupplierId:        in.SupplierId,
			EventType:         in.EventType,
			ActorType:         in.ActorType,
			ActorId:           in.ActorId,
			EntityType:        in.EntityType,
			EntityId:          in.EntityId,
			Payload:           payload,
			EventTime:         now,
			HashedAt:          hashedAt,
			PreviousEventHash: previousHash,
			EventHash:         ComputeEventHash(payload, hashedAt, previousHash),
		}
		return tx.Create(event).Error
	})
	if err != nil {
		return nil, err
	}
	return event, nil
}

func (l *AuditLog) ListRunEvents(runId string) ([]AuditEvent, error) {
	var events []AuditEvent
	err := l.db.Where("run_id = ?", runId).Order("id asc").Find(&events).Error
	return events, err
}

// VerifyRunChain recomputes every hash in creation order. An event is broken
// when its stored hash does not match recomputation, or when its previous-hash
// pointer disagrees with the recomputed hash of its predecessor; a single
// mutated payload therefore marks that event and every later one as broken.
// Positions in BrokenLinks are zero-based chain indexes.
func (l *AuditLog) VerifyRunChain(runId string) (*ChainVerification, error) {
	events, err := l.ListRunEvents(runId)
	if err != nil {
		return nil, err
	}
	return VerifyChain(events), nil
}

// VerifyChain is the pure verification core, exported for testing against
// in-memory event slices.
func VerifyChain(events []AuditEvent) *ChainVerification {
	result := &ChainVerification{
		Valid:       true,
		TotalEvents: len(events),
		BrokenLinks: []int{},
	}

	recomputedPrev := ""
	for i, ev := range events {
		broken := false
		if ev.PreviousEventHash != recomputedPrev {
			broken = true
		}
		recomputed := ComputeEventHash(ev.Payload, ev.HashedAt, ev.PreviousEventHash)
		if recomputed != ev.EventHash {
			broken = true
		}
		if broken {
			result.Valid = false
			result.BrokenLinks = append(result.BrokenLinks, i)
		}
		// Carry the recomputed chain forward, not the stored hashes, so damage
		// propagates to all later links.
		recomputedPrev = ComputeEventHash(ev.Payload, ev.HashedAt, recomputedPrev)
	}
	return result
}
