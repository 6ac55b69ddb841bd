package entitlement

import (
	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/backend"
	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/trial"
)

// Reconcile computes the entitlement from a snapshot of facts. It is a pure
// function: the same snapshot always yields the same output, so a pass is
// safe to re-run after any failure.
//
// Precedence, first match wins:
//  1. backend active/trial — the backend is authoritative whenever it has
//     an opinion
//  2. backend cancelled — access retained through the paid-for endDate
//  3. verified store transaction newer than the last backend observation —
//     optimistic access until the backend confirms or disagrees
//  4. local trial clock active
//  5. trial never started and backend never answered — new-user fail-open
//  6. expired
func Reconcile(s Snapshot) ReconciledEntitlement {
	ent := ReconciledEntitlement{
		Status: StatusExpired,
		AsOf:   s.Now,
	}

	// Rules 1 and 2: the backend record.
	if rec := s.Backend; rec != nil {
		switch rec.Status {
		case backend.StatusActive:
			ent.HasAccess = true
			ent.Status = StatusActive
			ent.Source = SourceBackend
			ent.Plan = rec.Plan
			ent.ExpiresAt = rec.EndDate
			return ent

		case backend.StatusTrial:
			ent.HasAccess = true
			ent.Status = StatusTrial
			ent.Source = SourceBackend
			ent.Plan = rec.Plan
			ent.ExpiresAt = rec.TrialEndDate
			if rec.IsInTrial {
				ent.TrialDaysRemaining = rec.TrialDaysRemaining
			}
			return ent

		case backend.StatusCancelled:
			// Grace: a cancelled subscription keeps access through the
			// period already paid for.
			if rec.EndDate != nil && s.Now.Before(*rec.EndDate) {
				ent.HasAccess = true
				ent.Status = StatusCancelled
				ent.Source = SourceBackend
				ent.Plan = rec.Plan
				ent.ExpiresAt = rec.EndDate
				return ent
			}
			ent.HasAccess = false
			ent.Status = StatusExpired
			ent.Source = SourceBackend
			return ent
		}
	}

	// Rule 3: a verified store transaction the backend has not processed
	// yet. Advisory only — it reports active to avoid UI flicker, and a
	// later backend pass overrides it.
	if txn := s.Transaction; txn != nil && !txn.IsExpired(s.Now) {
		if !s.BackendObserved() || txn.PurchaseDate.After(s.BackendObservedAt) {
			ent.HasAccess = true
			ent.Status = StatusActive
			ent.Source = SourceStore
			ent.ExpiresAt = txn.ExpirationDate
			return ent
		}
	}

	// Rule 4: the local trial clock, the fallback before the backend has
	// ever been consulted (and for first-run offline use).
	if s.TrialKnown && trial.Active(s.Trial, s.Now, s.TrialDuration) {
		ent.HasAccess = true
		ent.Status = StatusTrial
		ent.Source = SourceLocalTrial
		days := trial.Remaining(s.Trial, s.Now, s.TrialDuration)
		ent.TrialDaysRemaining = &days
		ends := s.Trial.StartedAt.Add(s.TrialDuration)
		ent.ExpiresAt = &ends
		return ent
	}

	// Rule 5: brand-new account fail-open. Covers both "trial never
	// started" and "trial state unreadable" — unknown is not inactive.
	neverStarted := !s.TrialKnown || s.Trial == nil || s.Trial.StartedAt == nil
	if neverStarted && !s.BackendObserved() {
		ent.HasAccess = true
		ent.Status = StatusUnknown
		ent.Source = SourceLocalTrial
		return ent
	}

	// Rule 6: nothing grants access.
	ent.HasAccess = false
	ent.Source = SourceBackend
	if !s.BackendObserved() {
		ent.Source = SourceLocalTrial
	}
	if s.Backend != nil && s.Backend.Status == backend.StatusFree {
		ent.Status = StatusFree
	} else {
		ent.Status = StatusExpired
	}
	return ent
}
