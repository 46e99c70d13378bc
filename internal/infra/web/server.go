package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"vendor-billing-engine/internal/config"
	"vendor-billing-engine/internal/usecase"
)

// Server is the HTTP surface: vendor lifecycle routes, admin routes behind a
// JWT session, the sweep trigger, and the provider webhook.
type Server struct {
	subUC     usecase.SubscriptionUseCase
	billingUC usecase.BillingUseCase
	webhookUC usecase.WebhookUseCase
	auth      *AuthManager
	apiKey    string
	log       *zerolog.Logger
	server    *http.Server
}

func NewServer(
	cfg *config.Config,
	subUC usecase.SubscriptionUseCase,
	billingUC usecase.BillingUseCase,
	webhookUC usecase.WebhookUseCase,
	logger *zerolog.Logger,
) *Server {
	webLog := logger.With().Str("component", "WebServer").Logger()
	s := &Server{
		subUC:     subUC,
		billingUC: billingUC,
		webhookUC: webhookUC,
		auth:      NewAuthManager(cfg.Admin.JWTSecret, cfg.HTTP.SecureCookies, cfg.Admin.SessionTTL),
		apiKey:    cfg.Admin.APIKey,
		log:       &webLog,
	}
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Routes builds the chi router. Exposed separately so tests can drive the
// full routing table with httptest.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(traceID)
	r.Use(requestLog(s.log))
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/subscriptions", func(r chi.Router) {
			r.Post("/", enrollHandler(s.subUC))
			r.Get("/{id}", getSubscriptionHandler(s.subUC))
			r.Post("/{id}/change-plan", changePlanHandler(s.subUC))
			r.Post("/{id}/cancel", cancelHandler(s.subUC))
			r.Post("/{id}/reactivate", reactivateHandler(s.subUC))
		})

		r.Post("/admin/session", s.adminSessionHandler())
		r.Route("/admin/subscriptions", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Post("/{id}/extend", adminExtendHandler(s.subUC))
			r.Post("/{id}/force-cancel", adminForceCancelHandler(s.subUC))
		})

		r.Post("/billing/run", runSweepHandler(s.billingUC))
		r.Post("/payments/webhook", webhookHandler(s.webhookUC))
	})

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP server listening")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
