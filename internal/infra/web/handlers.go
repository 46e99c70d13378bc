package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"vendor-billing-engine/internal/domain"
	"vendor-billing-engine/internal/domain/model"
	"vendor-billing-engine/internal/domain/ports/adapter"
	"vendor-billing-engine/internal/usecase"
)

// A struct to define the expected JSON request body for enrollment.
type enrollRequest struct {
	VendorID        string `json:"vendor_id"`
	PlanID          string `json:"plan_id"`
	Interval        string `json:"interval"`
	StartTrial      bool   `json:"start_trial"`
	PaymentMethodID string `json:"payment_method_id"`
	CustomerName    string `json:"customer_name"`
	CustomerEmail   string `json:"customer_email"`
	CustomerPhone   string `json:"customer_phone"`
}

type changePlanRequest struct {
	NewPlanID      string `json:"new_plan_id"`
	AlreadyPaidRef string `json:"already_paid_ref,omitempty"`
}

type cancelRequest struct {
	Immediate bool   `json:"immediate"`
	Reason    string `json:"reason"`
}

type extendRequest struct {
	Days int `json:"days"`
}

type forceCancelRequest struct {
	Reason string `json:"reason"`
}

type subscriptionResponse struct {
	Subscription *model.Subscription  `json:"subscription"`
	Ledger       []*model.Transaction `json:"ledger,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeDomainError maps domain sentinels onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, domain.ErrUnknownPlan),
		errors.Is(err, domain.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrNotEligible),
		errors.Is(err, domain.ErrMissingPaymentMethod):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, domain.ErrGatewayDeclined):
		http.Error(w, "payment declined", http.StatusPaymentRequired)
	case errors.Is(err, domain.ErrGatewayTimeout):
		http.Error(w, "payment provider unavailable", http.StatusBadGateway)
	case errors.Is(err, domain.ErrConflict):
		http.Error(w, "conflicting concurrent update, retry", http.StatusConflict)
	case errors.Is(err, domain.ErrUnauthorized):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	default:
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func enrollHandler(subUC usecase.SubscriptionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req enrollRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		sub, err := subUC.Enroll(r.Context(), usecase.EnrollInput{
			VendorID:        req.VendorID,
			PlanID:          req.PlanID,
			Interval:        model.BillingInterval(req.Interval),
			StartTrial:      req.StartTrial,
			PaymentMethodID: req.PaymentMethodID,
			Customer: adapter.CustomerDetails{
				Name:  req.CustomerName,
				Email: req.CustomerEmail,
				Phone: req.CustomerPhone,
			},
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, subscriptionResponse{Subscription: sub})
	}
}

func changePlanHandler(subUC usecase.SubscriptionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req changePlanRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		sub, err := subUC.ChangePlan(r.Context(), chi.URLParam(r, "id"), req.NewPlanID, req.AlreadyPaidRef)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, subscriptionResponse{Subscription: sub})
	}
}

func cancelHandler(subUC usecase.SubscriptionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		sub, err := subUC.Cancel(r.Context(), chi.URLParam(r, "id"), req.Immediate, req.Reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, subscriptionResponse{Subscription: sub})
	}
}

func reactivateHandler(subUC usecase.SubscriptionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := subUC.Reactivate(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, subscriptionResponse{Subscription: sub})
	}
}

func getSubscriptionHandler(subUC usecase.SubscriptionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, ledger, err := subUC.Get(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, subscriptionResponse{Subscription: sub, Ledger: ledger})
	}
}

func adminExtendHandler(subUC usecase.SubscriptionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req extendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		sub, err := subUC.AdminExtend(r.Context(), chi.URLParam(r, "id"), req.Days)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, subscriptionResponse{Subscription: sub})
	}
}

func adminForceCancelHandler(subUC usecase.SubscriptionUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req forceCancelRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		sub, err := subUC.AdminForceCancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, subscriptionResponse{Subscription: sub})
	}
}

// runSweepHandler triggers a billing sweep on demand. The shared secret rides
// in the X-Billing-Secret header; the use case re-checks it.
func runSweepHandler(billingUC usecase.BillingUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := billingUC.RunSweep(r.Context(), r.Header.Get("X-Billing-Secret"))
		if err != nil {
			if errors.Is(err, domain.ErrSweepAlreadyRuns) {
				http.Error(w, "sweep already running", http.StatusConflict)
				return
			}
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// webhookHandler acknowledges every parseable payload with 200 so the
// provider stops retrying; reconciliation outcomes are logged, not returned.
func webhookHandler(webhookUC usecase.WebhookUseCase) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		if err := webhookUC.HandleEvent(r.Context(), raw); err != nil {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

type sessionRequest struct {
	APIKey string `json:"api_key"`
}

// adminSessionHandler exchanges the static admin API key for a short-lived
// JWT session.
func (s *Server) adminSessionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req sessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
		if s.apiKey == "" || subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(s.apiKey)) != 1 {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		token, err := s.auth.Mint(w)
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"token":      token,
			"expires_in": int(s.auth.cfg.TTL / time.Second),
		})
	}
}
