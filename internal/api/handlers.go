// Package api exposes the entitlement engine to UI consumers: a JSON status
// surface, trial/purchase/restore actions, the audit trail, and a websocket
// stream of entitlement changes.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/entitlement"
	engerrors "github.com/RAKSHIT1998/GoFit.Ai---live-Healthy-sub001/internal/errors"
)

// Handlers wires the entitlement service to the HTTP surface.
type Handlers struct {
	svc       *entitlement.Service
	scheduler *entitlement.Scheduler
	audit     *entitlement.AuditLog
	hub       *Hub
}

// NewHandlers creates the API handlers.
func NewHandlers(svc *entitlement.Service, scheduler *entitlement.Scheduler, audit *entitlement.AuditLog) *Handlers {
	return &Handlers{
		svc:       svc,
		scheduler: scheduler,
		audit:     audit,
		hub:       NewHub(svc),
	}
}

// Hub returns the websocket hub so the caller can run it.
func (h *Handlers) Hub() *Hub {
	return h.hub
}

// Router builds the HTTP mux for the engine.
func (h *Handlers) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/entitlement", h.handleEntitlement)
	mux.HandleFunc("/api/trial/start", h.handleTrialStart)
	mux.HandleFunc("/api/purchase", h.handlePurchase)
	mux.HandleFunc("/api/restore", h.handleRestore)
	mux.HandleFunc("/api/onboarding/complete", h.handleOnboardingComplete)
	mux.HandleFunc("/api/foreground", h.handleForeground)
	mux.HandleFunc("/api/audit", h.handleAudit)
	mux.HandleFunc("/ws", h.hub.handleWS)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// EntitlementPayload is the normalized response for frontend consumption.
type EntitlementPayload struct {
	entitlement.ReconciledEntitlement
	Decision entitlement.Decision `json:"decision"`
}

func (h *Handlers) handleEntitlement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload := EntitlementPayload{
		ReconciledEntitlement: h.svc.Current(),
		Decision:              h.svc.Decision(),
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handlers) handleTrialStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.svc.StartTrial(); err != nil {
		switch {
		case errors.Is(err, engerrors.ErrNoUser):
			writeError(w, http.StatusUnauthorized, "no_user", "Trial cannot start without an authenticated user")
		case errors.Is(err, engerrors.ErrStorageUnavailable):
			writeError(w, http.StatusServiceUnavailable, "storage_unavailable", "Trial state could not be persisted")
		default:
			log.Error().Err(err).Msg("Trial start failed")
			writeError(w, http.StatusInternalServerError, "internal_error", "Trial start failed")
		}
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Current())
}

type purchaseRequest struct {
	ProductID string `json:"product_id"`
}

func (h *Handlers) handlePurchase(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ProductID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "product_id is required")
		return
	}

	result, err := h.svc.Purchase(r.Context(), req.ProductID)
	if err != nil {
		switch {
		case errors.Is(err, engerrors.ErrNoUser):
			writeError(w, http.StatusUnauthorized, "no_user", "Purchase requires an authenticated user")
		case errors.Is(err, engerrors.ErrProductNotFound):
			writeError(w, http.StatusNotFound, "product_not_found", "Unknown product")
		default:
			log.Error().Err(err).Str("product_id", req.ProductID).Msg("Purchase failed")
			writeError(w, http.StatusBadGateway, "purchase_failed", "Purchase could not be completed")
		}
		return
	}

	h.scheduler.Trigger(entitlement.TriggerPurchase)
	writeJSON(w, http.StatusOK, map[string]any{
		"outcome":     result.Outcome,
		"entitlement": h.svc.Current(),
	})
}

func (h *Handlers) handleRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := h.svc.Restore(r.Context()); err != nil {
		if errors.Is(err, engerrors.ErrNoUser) {
			writeError(w, http.StatusUnauthorized, "no_user", "Restore requires an authenticated user")
			return
		}
		// Restore is best-effort: local facts may already have been
		// recorded even when the backend refresh failed.
		log.Warn().Err(err).Msg("Restore completed with errors")
	}

	h.scheduler.Trigger(entitlement.TriggerRestore)
	writeJSON(w, http.StatusOK, h.svc.Current())
}

func (h *Handlers) handleOnboardingComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.svc.CompleteOnboarding()
	writeJSON(w, http.StatusOK, h.svc.Decision())
}

func (h *Handlers) handleForeground(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	h.scheduler.Trigger(entitlement.TriggerForeground)
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handlers) handleAudit(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, h.audit.Entries())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": message,
	})
}
