package entitlement

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/backend"
	engerrors "github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/errors"
	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/storekit"
	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/trial"
)

// BackendAPI is the subset of the backend client the service consumes.
type BackendAPI interface {
	Verify(ctx context.Context, txn storekit.VerifiedTransaction) (*backend.Record, error)
	Status(ctx context.Context) (*backend.Record, error)
	Sync(ctx context.Context) (*backend.Record, bool, error)
}

// facts is the mutable input state reconciliation passes snapshot from.
type facts struct {
	txn               *storekit.VerifiedTransaction
	backendRec        *backend.Record
	backendObservedAt time.Time

	// backendSticky is set once an expired/cancelled record is observed.
	// Sticky verdicts are authoritative: cache staleness never fails open
	// past them.
	backendSticky bool
}

// Service owns the reconciled entitlement and the fact set it is computed
// from. All mutation goes through one mutex; a pass snapshots its inputs,
// computes, and commits atomically, so last-write-wins is defined by pass
// completion order.
type Service struct {
	mu            sync.Mutex
	trialClock    *trial.Clock
	trialDuration time.Duration
	backend       BackendAPI
	provider      storekit.Provider
	cache         *StatusCache
	audit         *AuditLog
	metrics       *EngineMetrics
	sf            singleflight.Group
	now           func() time.Time

	userID         string
	onboardingDone bool
	facts          facts
	current        ReconciledEntitlement
	subscribers    map[chan ReconciledEntitlement]struct{}
}

// ServiceOptions configures a Service.
type ServiceOptions struct {
	TrialClock    *trial.Clock
	TrialDuration time.Duration
	Backend       BackendAPI
	Provider      storekit.Provider
	CacheTTL      time.Duration
	Audit         *AuditLog
	Metrics       *EngineMetrics
}

// NewService creates the entitlement service.
func NewService(opts ServiceOptions) *Service {
	if opts.TrialDuration <= 0 {
		opts.TrialDuration = trial.DefaultDuration
	}
	return &Service{
		trialClock:    opts.TrialClock,
		trialDuration: opts.TrialDuration,
		backend:       opts.Backend,
		provider:      opts.Provider,
		cache:         NewStatusCache(opts.CacheTTL),
		audit:         opts.Audit,
		metrics:       opts.Metrics,
		now:           time.Now,
		subscribers:   make(map[chan ReconciledEntitlement]struct{}),
		current:       ReconciledEntitlement{Status: StatusUnknown},
	}
}

// SetNowFunc overrides the wall clock. Intended for tests.
func (s *Service) SetNowFunc(now func() time.Time) {
	s.now = now
	if s.trialClock != nil {
		s.trialClock.SetNowFunc(now)
	}
}

// SetUser switches the authenticated user. Facts from the previous account
// are discarded so entitlement never leaks across an account switch.
func (s *Service) SetUser(userID string) {
	s.mu.Lock()
	if s.userID == userID {
		s.mu.Unlock()
		return
	}
	s.userID = userID
	s.facts = facts{}
	s.current = ReconciledEntitlement{Status: StatusUnknown}
	s.cache.Invalidate()
	s.mu.Unlock()

	log.Info().Str("user_id", userID).Msg("Active user changed, entitlement facts reset")
	if userID != "" {
		s.ReconcileLocal("user_change")
	}
}

// UserID returns the current authenticated user, empty when anonymous.
func (s *Service) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// CompleteOnboarding marks the signup flow finished, lifting the paywall
// suppression.
func (s *Service) CompleteOnboarding() {
	s.mu.Lock()
	s.onboardingDone = true
	s.mu.Unlock()
}

// Current returns the latest reconciled entitlement.
func (s *Service) Current() ReconciledEntitlement {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Decision evaluates the access gate against the current entitlement.
func (s *Service) Decision() Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Evaluate(s.current, s.onboardingDone)
}

// Subscribe registers an observer of entitlement replacements. The returned
// cancel function must be called to release the channel.
func (s *Service) Subscribe() (<-chan ReconciledEntitlement, func()) {
	ch := make(chan ReconciledEntitlement, 8)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subscribers, ch)
		s.mu.Unlock()
	}
	return ch, cancel
}

// RecordStoreTransaction ingests a verified store transaction as a new fact
// and reruns reconciliation. Older transactions never supersede newer ones.
func (s *Service) RecordStoreTransaction(txn storekit.VerifiedTransaction) {
	s.mu.Lock()
	if s.facts.txn == nil || txn.PurchaseDate.After(s.facts.txn.PurchaseDate) {
		s.facts.txn = &txn
	}
	s.mu.Unlock()

	log.Info().
		Str("transaction_id", txn.TransactionID).
		Str("product_id", txn.ProductID).
		Msg("Verified store transaction recorded")
	s.ReconcileLocal("store_transaction")
}

// VerifyWithBackend forwards a verified transaction to the backend and, on
// success, applies the returned authoritative record. Safe to retry.
func (s *Service) VerifyWithBackend(ctx context.Context, txn storekit.VerifiedTransaction) error {
	rec, err := s.backend.Verify(ctx, txn)
	if err != nil {
		s.recordBackendError(err)
		return err
	}
	s.applyBackendRecord(rec, "verify")
	return nil
}

// ReconcileLocal runs a pass over the currently known facts without touching
// the network.
func (s *Service) ReconcileLocal(trigger string) ReconciledEntitlement {
	snap := s.snapshot()
	result := Reconcile(snap)
	return s.commit(result, trigger)
}

// RefreshStatus consults the backend status endpoint, short-circuiting
// through the cache unless force is set. Concurrent refreshes coalesce into
// one backend call.
func (s *Service) RefreshStatus(ctx context.Context, force bool, trigger string) (ReconciledEntitlement, error) {
	if !force {
		if ent, ok := s.cache.Fresh(s.now()); ok {
			s.metrics.RecordCacheResult(true)
			return ent, nil
		}
		s.metrics.RecordCacheResult(false)
	}

	v, err, _ := s.sf.Do("status", func() (any, error) {
		rec, err := s.backend.Status(ctx)
		if err != nil {
			return nil, err
		}
		return s.applyBackendRecord(rec, trigger), nil
	})
	if err != nil {
		s.recordBackendError(err)
		return s.failOpen(err, trigger)
	}
	return v.(ReconciledEntitlement), nil
}

// SyncCycle is one scheduler cycle: backend sync, then status, then
// recompute. Returns ErrRateLimited when the cycle should be skipped.
func (s *Service) SyncCycle(ctx context.Context) error {
	if s.UserID() == "" {
		return nil
	}

	rec, _, err := s.backend.Sync(ctx)
	if err != nil {
		s.recordBackendError(err)
		if engerrors.IsRateLimited(err) {
			return err
		}
		// Sync is advisory; fall through to the status poll.
		log.Warn().Err(err).Msg("Backend sync failed, continuing with status poll")
	} else if rec != nil {
		s.applyBackendRecord(rec, "sync")
	}

	// The cycle always polls status uncached: applying the sync record has
	// just refreshed the cache, and status-only fields (isInTrial, the trial
	// countdown, flag-derived states) are observed nowhere else.
	_, err = s.RefreshStatus(ctx, true, "periodic")
	return err
}

// Purchase initiates a store purchase. User-facing outcomes (cancelled,
// pending) surface synchronously; a successful transaction becomes a fact
// immediately and is verified with the backend before the call returns,
// falling back to the optimistic store fact when the backend is unreachable.
func (s *Service) Purchase(ctx context.Context, productID string) (storekit.PurchaseResult, error) {
	if s.UserID() == "" {
		return storekit.PurchaseResult{}, engerrors.ErrNoUser
	}

	result, err := s.provider.Purchase(ctx, productID)
	if err != nil {
		return storekit.PurchaseResult{}, err
	}
	if result.Outcome != storekit.PurchaseSuccess || result.Transaction == nil {
		return result, nil
	}

	s.RecordStoreTransaction(*result.Transaction)

	if err := s.VerifyWithBackend(ctx, *result.Transaction); err != nil {
		// Scenario: offline purchase. The store fact already granted
		// optimistic access; reconciliation corrects it once the backend
		// is reachable again.
		log.Warn().Err(err).Str("product_id", productID).Msg("Purchase recorded locally, backend verify pending")
	}
	return result, nil
}

// Restore replays the store's current entitlements through the same path as
// live transaction updates, then forces a status refresh.
func (s *Service) Restore(ctx context.Context) error {
	if s.UserID() == "" {
		return engerrors.ErrNoUser
	}

	txns, err := s.provider.CurrentEntitlements(ctx)
	if err != nil {
		return err
	}

	for _, txn := range txns {
		s.RecordStoreTransaction(txn)
		if err := s.VerifyWithBackend(ctx, txn); err != nil {
			log.Warn().Err(err).Str("transaction_id", txn.TransactionID).Msg("Restore verify failed, will reconcile later")
		}
	}

	_, err = s.RefreshStatus(ctx, true, "restore")
	return err
}

// StartTrial starts the local free trial for the current user. Idempotent.
func (s *Service) StartTrial() error {
	userID := s.UserID()
	if err := s.trialClock.Start(userID); err != nil {
		return err
	}
	s.ReconcileLocal("trial_start")
	return nil
}

// snapshot collects a consistent set of facts for one pass. Trial storage is
// read outside the lock; the in-memory facts are copied inside it.
func (s *Service) snapshot() Snapshot {
	userID := s.UserID()

	var trialState *trial.State
	trialKnown := true
	if userID != "" && s.trialClock != nil {
		state, err := s.trialClock.State(userID)
		if err != nil {
			if errors.Is(err, engerrors.ErrStorageUnavailable) {
				log.Error().Err(err).Msg("Trial storage unavailable, treating trial state as unknown")
			}
			trialKnown = false
		} else {
			trialState = state
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Trial:             trialState,
		TrialKnown:        trialKnown,
		TrialDuration:     s.trialDuration,
		Transaction:       s.facts.txn,
		Backend:           s.facts.backendRec,
		BackendObservedAt: s.facts.backendObservedAt,
		Now:               s.now(),
	}
}

// applyBackendRecord installs a freshly observed backend record and reruns
// reconciliation.
func (s *Service) applyBackendRecord(rec *backend.Record, trigger string) ReconciledEntitlement {
	now := s.now()
	s.mu.Lock()
	s.facts.backendRec = rec
	s.facts.backendObservedAt = now
	if rec.Status == backend.StatusExpired || rec.Status == backend.StatusCancelled {
		s.facts.backendSticky = true
	} else {
		s.facts.backendSticky = false
	}
	s.mu.Unlock()

	log.Debug().
		Str("status", string(rec.Status)).
		Str("trigger", trigger).
		Msg("Backend record observed")
	return s.ReconcileLocal(trigger)
}

// commit atomically replaces the current entitlement and notifies observers.
func (s *Service) commit(ent ReconciledEntitlement, trigger string) ReconciledEntitlement {
	s.mu.Lock()
	s.current = ent
	s.cache.Put(ent, ent.AsOf)
	for ch := range s.subscribers {
		select {
		case ch <- ent:
		default:
			// Slow observers miss intermediate states, never block a pass.
		}
	}
	s.mu.Unlock()

	s.metrics.RecordPass(ent)
	s.audit.Record(trigger, ent)
	log.Debug().
		Bool("has_access", ent.HasAccess).
		Str("status", string(ent.Status)).
		Str("source", string(ent.Source)).
		Str("trigger", trigger).
		Msg("Entitlement reconciled")
	return ent
}

// failOpen serves the last known entitlement on a recoverable backend
// failure, marking it stale. A sticky expired/cancelled verdict stays
// authoritative and is never overridden by staleness.
func (s *Service) failOpen(err error, trigger string) (ReconciledEntitlement, error) {
	// A 429 skips the rest of the cycle without touching staleness; the
	// error surfaces so the scheduler can log the skip and back off.
	if engerrors.IsRateLimited(err) {
		return s.Current(), err
	}
	if !engerrors.IsFailOpen(err) && !errors.Is(err, engerrors.ErrBackendRejected) {
		return s.Current(), err
	}

	s.mu.Lock()
	ent := s.current
	if !s.facts.backendSticky {
		ent.IsStale = true
		s.current = ent
	}
	s.mu.Unlock()

	log.Warn().
		Err(err).
		Str("trigger", trigger).
		Bool("has_access", ent.HasAccess).
		Msg("Backend unreachable, serving last known entitlement")
	s.audit.Record(trigger+"_stale", ent)
	return ent, nil
}

func (s *Service) recordBackendError(err error) {
	var engErr *engerrors.EngineError
	if errors.As(err, &engErr) {
		s.metrics.RecordBackendError(string(engErr.Type))
		return
	}
	s.metrics.RecordBackendError("unknown")
}
