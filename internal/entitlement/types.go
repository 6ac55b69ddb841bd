// Package entitlement is the reconciliation engine: it fuses the local trial
// clock, verified store transactions, and the authoritative backend record
// into one cached access decision and keeps that decision correct across
// restarts, outages, and asynchronous store events.
package entitlement

import (
	"time"

	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/backend"
	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/storekit"
	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/trial"
)

// Status is the reconciled entitlement lifecycle state.
type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusFree      Status = "free"
	StatusTrial     Status = "trial"
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// Source names which fact won the reconciliation pass.
type Source string

const (
	SourceLocalTrial Source = "local_trial"
	SourceStore      Source = "store"
	SourceBackend    Source = "backend"
	SourceCache      Source = "cache"
)

// ReconciledEntitlement is the engine's single output. It is replaced
// atomically by every successful pass, never patched in place.
type ReconciledEntitlement struct {
	HasAccess bool      `json:"has_access"`
	Status    Status    `json:"status"`
	Source    Source    `json:"source"`
	AsOf      time.Time `json:"as_of"`
	IsStale   bool      `json:"is_stale"`

	Plan               string     `json:"plan,omitempty"`
	TrialDaysRemaining *int       `json:"trial_days_remaining,omitempty"`
	ExpiresAt          *time.Time `json:"expires_at,omitempty"`
}

// Snapshot is the consistent set of facts one reconciliation pass consumes.
// A pass must never mix facts from different generations, so the snapshot is
// taken in one critical section and the pass computes from it alone.
type Snapshot struct {
	// Trial is the persisted trial state; nil means never started.
	Trial *trial.State

	// TrialKnown is false when trial storage was unreadable. Unknown trial
	// state must not be read as "trial inactive".
	TrialKnown bool

	TrialDuration time.Duration

	// Transaction is the most recent verified store transaction, if any.
	Transaction *storekit.VerifiedTransaction

	// Backend is the last successfully observed authoritative record;
	// BackendObservedAt is when it was observed (zero = never).
	Backend           *backend.Record
	BackendObservedAt time.Time

	Now time.Time
}

// BackendObserved reports whether the backend has ever answered successfully.
func (s Snapshot) BackendObserved() bool {
	return !s.BackendObservedAt.IsZero()
}
