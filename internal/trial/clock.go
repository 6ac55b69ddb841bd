package trial

import (
	"math"
	"time"

	"github.com/rs/zerolog/log"

	engerrors "github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/errors"
)

// DefaultDuration is the free-trial window granted on first login.
const DefaultDuration = 3 * 24 * time.Hour

// Clock derives trial-active and days-remaining from a persisted start
// timestamp and the wall clock. Start is idempotent: the timestamp is set
// once per user and never overwritten.
type Clock struct {
	store    Store
	duration time.Duration
	now      func() time.Time
}

// NewClock creates a trial clock backed by the given store.
func NewClock(store Store, duration time.Duration) *Clock {
	if duration <= 0 {
		duration = DefaultDuration
	}
	return &Clock{
		store:    store,
		duration: duration,
		now:      time.Now,
	}
}

// SetNowFunc overrides the wall clock. Intended for tests.
func (c *Clock) SetNowFunc(now func() time.Time) {
	c.now = now
}

// Start records the trial start timestamp if it is not already set.
// A second call is a no-op and does not error. An empty userID means no
// authenticated user is known and the trial must not start.
func (c *Clock) Start(userID string) error {
	if userID == "" {
		return engerrors.ErrNoUser
	}

	state, err := c.store.Load(userID)
	if err != nil {
		return err
	}
	if state != nil && state.StartedAt != nil {
		log.Debug().Str("user_id", userID).Time("started_at", *state.StartedAt).Msg("Trial already started, ignoring")
		return nil
	}

	startedAt := c.now().UTC()
	if err := c.store.Save(userID, &State{StartedAt: &startedAt}); err != nil {
		return err
	}

	log.Info().Str("user_id", userID).Time("started_at", startedAt).Msg("Trial started")
	return nil
}

// State returns the persisted trial state for a user. A nil state means the
// trial was never started. Storage failures surface as StorageUnavailable so
// callers treat trial state as unknown, not inactive.
func (c *Clock) State(userID string) (*State, error) {
	if userID == "" {
		return nil, engerrors.ErrNoUser
	}
	return c.store.Load(userID)
}

// IsActive reports whether the trial window is still open.
func (c *Clock) IsActive(userID string) (bool, error) {
	state, err := c.State(userID)
	if err != nil {
		return false, err
	}
	return Active(state, c.now(), c.duration), nil
}

// DaysRemaining returns whole days left in the trial, clamped at zero.
func (c *Clock) DaysRemaining(userID string) (int, error) {
	state, err := c.State(userID)
	if err != nil {
		return 0, err
	}
	return Remaining(state, c.now(), c.duration), nil
}

// Active is the pure derivation of trial-active from state and wall clock.
func Active(state *State, now time.Time, duration time.Duration) bool {
	if state == nil || state.StartedAt == nil {
		return false
	}
	return now.Before(state.StartedAt.Add(duration))
}

// Remaining is the pure derivation of days remaining, clamped at zero.
func Remaining(state *State, now time.Time, duration time.Duration) int {
	if state == nil || state.StartedAt == nil {
		return 0
	}
	left := state.StartedAt.Add(duration).Sub(now)
	if left <= 0 {
		return 0
	}
	return int(math.Ceil(left.Hours() / 24))
}
