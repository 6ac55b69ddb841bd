package entitlement

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const auditCapacity = 256

// AuditEntry records one access-decision change for later inspection.
type AuditEntry struct {
	ID        string    `json:"id"`
	Time      time.Time `json:"time"`
	Trigger   string    `json:"trigger"`
	Status    Status    `json:"status"`
	Source    Source    `json:"source"`
	HasAccess bool      `json:"has_access"`
	IsStale   bool      `json:"is_stale"`
}

// AuditLog is a fixed-size, in-process trail of reconciliation outcomes.
// Oldest entries are dropped once capacity is reached.
type AuditLog struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// NewAuditLog creates an empty audit log.
func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

// Record appends an entry for the given reconciliation outcome.
func (a *AuditLog) Record(trigger string, ent ReconciledEntitlement) {
	if a == nil {
		return
	}
	entry := AuditEntry{
		ID:        ulid.Make().String(),
		Time:      time.Now().UTC(),
		Trigger:   trigger,
		Status:    ent.Status,
		Source:    ent.Source,
		HasAccess: ent.HasAccess,
		IsStale:   ent.IsStale,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	if len(a.entries) > auditCapacity {
		a.entries = a.entries[len(a.entries)-auditCapacity:]
	}
}

// Entries returns a copy of the trail, newest last.
func (a *AuditLog) Entries() []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AuditEntry(nil), a.entries...)
}
