package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/websocket"

	"github.com/ignite/outreach-scheduler/internal/pkg/logger"
	"github.com/ignite/outreach-scheduler/internal/registry"
	"github.com/ignite/outreach-scheduler/internal/scheduler"
	"github.com/ignite/outreach-scheduler/internal/service/campaign"
	"github.com/ignite/outreach-scheduler/internal/service/reconcile"
)

// Authenticator resolves an agent credential to a (senderID, accountID)
// pair. Tenant provisioning lives outside this service.
type Authenticator interface {
	Authenticate(ctx context.Context, credential string) (senderID, accountID string, err error)
}

// Server hosts the agent WebSocket endpoint and the campaign control API.
type Server struct {
	addr      string
	auth      Authenticator
	registry  *registry.Registry
	reconcile *reconcile.Service
	campaigns *campaign.Service
	sched     *scheduler.Scheduler

	allowedOrigins []string
	upgrader       websocket.Upgrader
	httpServer     *http.Server
}

// NewServer wires the gateway. allowedOrigins empty means all origins are
// accepted (dev mode).
func NewServer(addr string, auth Authenticator, reg *registry.Registry, rec *reconcile.Service, camp *campaign.Service, sched *scheduler.Scheduler, allowedOrigins []string) *Server {
	s := &Server{
		addr:           addr,
		auth:           auth,
		registry:       reg,
		reconcile:      rec,
		campaigns:      camp,
		sched:          sched,
		allowedOrigins: allowedOrigins,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.allowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		// Non-browser agents send no Origin header.
		return true
	}
	for _, a := range s.allowedOrigins {
		if origin == a || a == "*" {
			return true
		}
	}
	logger.Warn("websocket origin rejected", "origin", origin)
	return false
}

// Handler builds the chi router with all routes registered.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.corsOrigins(),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Account-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Get("/ws/agent", s.handleAgentWS)

	// Control API. Tenant identity arrives pre-resolved in X-Account-ID;
	// upstream auth is out of scope here.
	r.Route("/api", func(r chi.Router) {
		r.Use(requireAccount)
		r.Route("/campaigns/{id}", func(r chi.Router) {
			r.Post("/activate", s.handleActivate)
			r.Post("/pause", s.handlePause)
			r.Post("/leads", s.handleAttachLeads)
			r.Post("/leads/retry", s.handleRetryLeads)
			r.Get("/stats", s.handleStats)
			r.Get("/next-send", s.handleNextSend)
		})
		r.Post("/tasks/reset", s.handleResetTasks)
	})

	return r
}

func (s *Server) corsOrigins() []string {
	if len(s.allowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.allowedOrigins
}

// Start blocks serving HTTP until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	logger.Info("gateway listening", "addr", s.addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAgentWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", "error", err.Error())
		return
	}

	c := newClient(conn, s)
	defer func() {
		if c.authed {
			// Forget marks the sender offline and notifies the account.
			if err := s.registry.Forget(context.Background(), c); err != nil {
				logger.Warn("forget sender failed", "sender_id", c.senderID, "error", err.Error())
			}
		}
		c.close()
	}()

	c.run(r.Context())
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	accountID := accountFrom(r)
	id := chi.URLParam(r, "id")
	if err := s.campaigns.Activate(r.Context(), accountID, id); err != nil {
		writeCampaignError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	accountID := accountFrom(r)
	id := chi.URLParam(r, "id")
	if err := s.campaigns.Pause(r.Context(), accountID, id); err != nil {
		writeCampaignError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "paused"})
}

func (s *Server) handleAttachLeads(w http.ResponseWriter, r *http.Request) {
	accountID := accountFrom(r)
	id := chi.URLParam(r, "id")

	var req struct {
		OutboundLeadIDs []string `json:"outbound_lead_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.OutboundLeadIDs) == 0 {
		writeJSONError(w, "outbound_lead_ids is required", http.StatusBadRequest)
		return
	}

	attached, err := s.campaigns.AttachLeads(r.Context(), accountID, id, req.OutboundLeadIDs)
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"attached": attached})
}

func (s *Server) handleRetryLeads(w http.ResponseWriter, r *http.Request) {
	accountID := accountFrom(r)
	id := chi.URLParam(r, "id")

	var req struct {
		LeadIDs []string `json:"lead_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	retried, err := s.campaigns.RetryLeads(r.Context(), accountID, id, req.LeadIDs)
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"retried": retried})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	accountID := accountFrom(r)
	id := chi.URLParam(r, "id")

	stats, leadCount, err := s.campaigns.Stats(r.Context(), accountID, id)
	if err != nil {
		writeCampaignError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":      stats,
		"lead_count": leadCount,
	})
}

func (s *Server) handleNextSend(w http.ResponseWriter, r *http.Request) {
	accountID := accountFrom(r)
	id := chi.URLParam(r, "id")

	// Scope check before the estimator, which is account-agnostic.
	if _, err := s.campaigns.Get(r.Context(), accountID, id); err != nil {
		writeCampaignError(w, err)
		return
	}

	at, delay, err := s.sched.NextSendETA(r.Context(), id)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"next_send_at":    at.UTC().Format(time.RFC3339),
		"next_in_seconds": delay,
	})
}

func (s *Server) handleResetTasks(w http.ResponseWriter, r *http.Request) {
	accountID := accountFrom(r)

	reset, err := s.reconcile.ResetStuckTasks(r.Context(), accountID)
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"reset": reset})
}
