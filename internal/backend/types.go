// Package backend is the HTTP client for the authoritative subscription
// record. Responses are decoded into strongly typed schemas at the boundary;
// malformed bodies become a typed decode error instead of silently absent
// fields.
package backend

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// SubscriptionStatus is the server-side subscription lifecycle state.
type SubscriptionStatus string

const (
	StatusFree      SubscriptionStatus = "free"
	StatusTrial     SubscriptionStatus = "trial"
	StatusActive    SubscriptionStatus = "active"
	StatusExpired   SubscriptionStatus = "expired"
	StatusCancelled SubscriptionStatus = "cancelled"
)

// ParseStatus normalizes a wire status string. Unknown values map to free so
// junk from the server never becomes a sticky expired/cancelled verdict.
func ParseStatus(s string) SubscriptionStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trial", "trialing":
		return StatusTrial
	case "active":
		return StatusActive
	case "expired":
		return StatusExpired
	case "cancelled", "canceled":
		return StatusCancelled
	case "free", "":
		return StatusFree
	default:
		return StatusFree
	}
}

// Record is the engine's view of the authoritative subscription record.
// Mutated only by the backend; the client treats it as read-only.
type Record struct {
	Status       SubscriptionStatus
	Plan         string
	StartDate    *time.Time
	EndDate      *time.Time
	TrialEndDate *time.Time

	// IsInTrial gates TrialDaysRemaining: a paid subscriber's zero must not
	// be read as "trial with 0 days left".
	IsInTrial          bool
	TrialDaysRemaining *int

	SubscriptionDaysRemaining *int
}

// apiTime decodes ISO-8601 timestamps with optional fractional seconds.
type apiTime struct {
	time.Time
}

func (t *apiTime) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := strings.Trim(string(data), `"`)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

func (t *apiTime) timePtr() *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	c := t.Time
	return &c
}

// subscriptionPayload is the nested subscription object on status/sync.
type subscriptionPayload struct {
	Status       string   `json:"status"`
	Plan         string   `json:"plan"`
	StartDate    *apiTime `json:"startDate"`
	EndDate      *apiTime `json:"endDate"`
	TrialEndDate *apiTime `json:"trialEndDate"`
}

type verifyRequest struct {
	TransactionData string `json:"transactionData"`
	ProductID       string `json:"productId"`
	TransactionID   string `json:"transactionId"`
}

type verifyResponse struct {
	Success                   bool     `json:"success"`
	SubscriptionStatus        string   `json:"subscriptionStatus"`
	Plan                      string   `json:"plan"`
	ExpiresDate               *apiTime `json:"expiresDate"`
	EndDate                   *apiTime `json:"endDate"`
	SubscriptionDaysRemaining *int     `json:"subscriptionDaysRemaining"`
}

type statusResponse struct {
	HasActiveSubscription     bool                 `json:"hasActiveSubscription"`
	IsPremiumActive           bool                 `json:"isPremiumActive"`
	IsInTrial                 bool                 `json:"isInTrial"`
	IsCancelled               bool                 `json:"isCancelled"`
	IsExpired                 bool                 `json:"isExpired"`
	Subscription              *subscriptionPayload `json:"subscription"`
	TrialDaysRemaining        *int                 `json:"trialDaysRemaining"`
	SubscriptionDaysRemaining *int                 `json:"subscriptionDaysRemaining"`
}

type syncResponse struct {
	Success       bool                 `json:"success"`
	Subscription  *subscriptionPayload `json:"subscription"`
	StatusChanged bool                 `json:"statusChanged"`
}

func (r *verifyResponse) toRecord() *Record {
	rec := &Record{
		Status:                    ParseStatus(r.SubscriptionStatus),
		Plan:                      r.Plan,
		SubscriptionDaysRemaining: cloneIntPtr(r.SubscriptionDaysRemaining),
	}
	// The backend-calculated endDate reflects real calendar renewal;
	// store-reported expiresDate can be accelerated in sandbox environments.
	if end := r.EndDate.timePtr(); end != nil {
		rec.EndDate = end
	} else {
		rec.EndDate = r.ExpiresDate.timePtr()
	}
	rec.IsInTrial = rec.Status == StatusTrial
	return rec
}

func (r *statusResponse) toRecord() *Record {
	rec := &Record{
		IsInTrial:                 r.IsInTrial,
		SubscriptionDaysRemaining: cloneIntPtr(r.SubscriptionDaysRemaining),
	}
	if r.IsInTrial {
		rec.TrialDaysRemaining = cloneIntPtr(r.TrialDaysRemaining)
	}

	if sub := r.Subscription; sub != nil {
		rec.Status = ParseStatus(sub.Status)
		rec.Plan = sub.Plan
		rec.StartDate = sub.StartDate.timePtr()
		rec.EndDate = sub.EndDate.timePtr()
		rec.TrialEndDate = sub.TrialEndDate.timePtr()
		return rec
	}

	// No subscription object: derive the state from the flags.
	switch {
	case r.IsExpired:
		rec.Status = StatusExpired
	case r.IsCancelled:
		rec.Status = StatusCancelled
	case r.IsInTrial:
		rec.Status = StatusTrial
	case r.HasActiveSubscription || r.IsPremiumActive:
		rec.Status = StatusActive
	default:
		rec.Status = StatusFree
	}
	return rec
}

func (r *syncResponse) toRecord() *Record {
	if r.Subscription == nil {
		return nil
	}
	sub := r.Subscription
	rec := &Record{
		Status:       ParseStatus(sub.Status),
		Plan:         sub.Plan,
		StartDate:    sub.StartDate.timePtr(),
		EndDate:      sub.EndDate.timePtr(),
		TrialEndDate: sub.TrialEndDate.timePtr(),
	}
	rec.IsInTrial = rec.Status == StatusTrial
	return rec
}

func cloneIntPtr(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
