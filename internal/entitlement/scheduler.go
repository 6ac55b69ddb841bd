package entitlement

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	engerrors "github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/errors"
)

// DefaultSyncInterval is the periodic reconciliation cadence.
const DefaultSyncInterval = 5 * time.Minute

// TriggerReason names an out-of-band reconciliation trigger.
type TriggerReason string

const (
	TriggerPurchase   TriggerReason = "purchase_completed"
	TriggerRestore    TriggerReason = "restore_requested"
	TriggerForeground TriggerReason = "app_foregrounded"
)

// Scheduler drives periodic reconciliation and reacts to triggering events.
// Cycles run one at a time on the scheduler goroutine; a trigger arriving
// while a cycle is in flight is queued once and overlapping backend calls
// are coalesced inside the service.
type Scheduler struct {
	svc      *Service
	interval time.Duration
	triggers chan TriggerReason
}

// NewScheduler creates a scheduler for the given service.
func NewScheduler(svc *Service, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultSyncInterval
	}
	return &Scheduler{
		svc:      svc,
		interval: interval,
		triggers: make(chan TriggerReason, 1),
	}
}

// Trigger requests an immediate out-of-band reconciliation. Triggers
// coalesce: if one is already pending, the new one is dropped.
func (s *Scheduler) Trigger(reason TriggerReason) {
	select {
	case s.triggers <- reason:
	default:
		log.Debug().Str("reason", string(reason)).Msg("Reconciliation already pending, coalescing trigger")
	}
}

// Run drives the periodic loop until ctx is cancelled. Every cycle is
// wrapped: a single failure logs and continues rather than killing the loop.
func (s *Scheduler) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Msg("Reconciliation scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reconciliation scheduler stopped")
			return
		case <-ticker.C:
			s.runCycle(ctx, "periodic")
		case reason := <-s.triggers:
			s.runCycle(ctx, string(reason))
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context, reason string) {
	if s.svc.UserID() == "" {
		log.Debug().Str("reason", reason).Msg("No authenticated user, skipping reconciliation cycle")
		return
	}

	err := s.svc.SyncCycle(ctx)
	switch {
	case err == nil:
	case engerrors.IsRateLimited(err):
		// 429: skip the remainder of this cycle and resume on the next
		// scheduled tick. The cache is not marked stale-invalid.
		log.Warn().Str("reason", reason).Msg("Backend rate limited, skipping reconciliation cycle")
	default:
		log.Warn().Err(err).Str("reason", reason).Msg("Reconciliation cycle failed")
	}
}
