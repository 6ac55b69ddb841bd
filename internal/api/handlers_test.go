package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/backend"
	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/entitlement"
	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/storekit"
	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/trial"
)

// stubBackend answers every call with a fixed record.
type stubBackend struct {
	rec *backend.Record
	err error
}

func (s *stubBackend) Verify(ctx context.Context, txn storekit.VerifiedTransaction) (*backend.Record, error) {
	return s.rec, s.err
}

func (s *stubBackend) Status(ctx context.Context) (*backend.Record, error) {
	return s.rec, s.err
}

func (s *stubBackend) Sync(ctx context.Context) (*backend.Record, bool, error) {
	return s.rec, false, s.err
}

type fixture struct {
	handlers *Handlers
	svc      *entitlement.Service
	stub     *stubBackend
	router   http.Handler
}

func newFixture(t *testing.T, userID string) *fixture {
	t.Helper()

	audit := entitlement.NewAuditLog()
	stub := &stubBackend{rec: &backend.Record{Status: backend.StatusFree}}
	svc := entitlement.NewService(entitlement.ServiceOptions{
		TrialClock: trial.NewClock(trial.NewFileStore(t.TempDir()), trial.DefaultDuration),
		Backend:    stub,
		Provider:   storekit.NewSimulatedProvider(),
		CacheTTL:   time.Minute,
		Audit:      audit,
	})
	if userID != "" {
		svc.SetUser(userID)
	}

	scheduler := entitlement.NewScheduler(svc, time.Minute)
	handlers := NewHandlers(svc, scheduler, audit)
	return &fixture{handlers: handlers, svc: svc, stub: stub, router: handlers.Router()}
}

func (f *fixture) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func TestGetEntitlement(t *testing.T) {
	f := newFixture(t, "user-1")
	require.NoError(t, f.svc.StartTrial())

	rr := f.request(t, http.MethodGet, "/api/entitlement", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var payload EntitlementPayload
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	assert.True(t, payload.HasAccess)
	assert.Equal(t, entitlement.StatusTrial, payload.Status)
	assert.True(t, payload.Decision.Allow)
	assert.True(t, payload.Decision.OnboardingDue)
}

func TestGetEntitlementMethodNotAllowed(t *testing.T) {
	f := newFixture(t, "user-1")
	rr := f.request(t, http.MethodPost, "/api/entitlement", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestTrialStart(t *testing.T) {
	f := newFixture(t, "user-1")

	rr := f.request(t, http.MethodPost, "/api/trial/start", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var ent entitlement.ReconciledEntitlement
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &ent))
	assert.Equal(t, entitlement.StatusTrial, ent.Status)

	// Second start is idempotent and still succeeds.
	rr = f.request(t, http.MethodPost, "/api/trial/start", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestTrialStartWithoutUser(t *testing.T) {
	f := newFixture(t, "")
	rr := f.request(t, http.MethodPost, "/api/trial/start", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "no_user", body["error"])
}

func TestPurchase(t *testing.T) {
	f := newFixture(t, "user-1")
	f.stub.rec = &backend.Record{Status: backend.StatusActive, Plan: "monthly"}

	rr := f.request(t, http.MethodPost, "/api/purchase", `{"product_id": "gofit.premium.monthly"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp struct {
		Outcome     string                            `json:"outcome"`
		Entitlement entitlement.ReconciledEntitlement `json:"entitlement"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, string(storekit.PurchaseSuccess), resp.Outcome)
	assert.True(t, resp.Entitlement.HasAccess)
}

func TestPurchaseValidation(t *testing.T) {
	f := newFixture(t, "user-1")

	rr := f.request(t, http.MethodPost, "/api/purchase", `{}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = f.request(t, http.MethodPost, "/api/purchase", `{"product_id": "gofit.premium.lifetime"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestPurchaseWithoutUser(t *testing.T) {
	f := newFixture(t, "")
	rr := f.request(t, http.MethodPost, "/api/purchase", `{"product_id": "gofit.premium.monthly"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRestore(t *testing.T) {
	f := newFixture(t, "user-1")
	rr := f.request(t, http.MethodPost, "/api/restore", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestOnboardingComplete(t *testing.T) {
	f := newFixture(t, "user-1")

	rr := f.request(t, http.MethodPost, "/api/onboarding/complete", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var d entitlement.Decision
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &d))
	assert.False(t, d.OnboardingDue)
}

func TestForeground(t *testing.T) {
	f := newFixture(t, "user-1")
	rr := f.request(t, http.MethodPost, "/api/foreground", "")
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestAuditTrail(t *testing.T) {
	f := newFixture(t, "user-1")
	require.NoError(t, f.svc.StartTrial())

	rr := f.request(t, http.MethodGet, "/api/audit", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var entries []entitlement.AuditEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, "trial_start", last.Trigger)
	assert.True(t, last.HasAccess)
}
