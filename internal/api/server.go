// ABOUTME: Read-only HTTP API for operational visibility
// ABOUTME: Health, tenant listing, and conversation listing endpoints

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/relaydesk/relaydesk/internal/store"
)

// Store is the read-only slice of the store the API serves.
type Store interface {
	ListActiveTenants(ctx context.Context) ([]*store.Tenant, error)
	GetTenant(ctx context.Context, id string) (*store.Tenant, error)
	ListConversations(ctx context.Context, tenantID string, limit int) ([]*store.Conversation, error)
}

// Server exposes the HTTP API.
type Server struct {
	store  Store
	logger *slog.Logger
	http   *http.Server
}

// tenantView is the wire shape of a tenant, with the credential omitted.
type tenantView struct {
	ID          string    `json:"id"`
	BotUsername string    `json:"bot_username"`
	BotID       int64     `json:"bot_id"`
	GroupID     int64     `json:"group_id"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
}

// NewServer creates a Server listening on addr.
func NewServer(addr string, st Store) *Server {
	s := &Server{
		store:  st,
		logger: slog.Default().With("component", "api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/api/tenants", s.handleTenants)
	r.Get("/api/conversations", s.handleConversations)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("API listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler returns the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("encoding response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := s.store.ListActiveTenants(r.Context())
	if err != nil {
		s.logger.Error("listing tenants", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	views := make([]tenantView, 0, len(tenants))
	for _, t := range tenants {
		views = append(views, tenantView{
			ID:          t.ID,
			BotUsername: t.BotUsername,
			BotID:       t.BotID,
			GroupID:     t.GroupID,
			Active:      t.Active,
			CreatedAt:   t.CreatedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleConversations(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		s.writeError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	if _, err := s.store.GetTenant(r.Context(), tenantID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "tenant not found")
			return
		}
		s.logger.Error("loading tenant", "tenant_id", tenantID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	convs, err := s.store.ListConversations(r.Context(), tenantID, limit)
	if err != nil {
		s.logger.Error("listing conversations", "tenant_id", tenantID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if convs == nil {
		convs = []*store.Conversation{}
	}
	s.writeJSON(w, http.StatusOK, convs)
}
