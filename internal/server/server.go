// Package server exposes the read-only integration API: recent plans,
// pending work, and full plan details, authenticated by the workspace's
// integration key. It never mutates the tree.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"planloom/internal/planstore"
	"planloom/internal/secrets"
)

// maxRecentPlans caps the list-recent-plans response.
const maxRecentPlans = 5

// Server is the read-only HTTP surface for third-party integrations.
type Server struct {
	Store   *planstore.Store
	Secrets *secrets.Store
	Logger  *zap.Logger
}

// New returns a server with a no-op logger unless one is supplied.
func New(store *planstore.Store, sec *secrets.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Store: store, Secrets: sec, Logger: logger}
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/plans", s.withAuth(s.handleListPlans))
	mux.HandleFunc("GET /v1/plans/{id}", s.withAuth(s.handlePlanDetails))
	mux.HandleFunc("GET /v1/plans/{id}/pending", s.withAuth(s.handlePendingWork))
	return mux
}

// ListenAndServe runs the server until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	s.Logger.Info("integration api listening", zap.String("addr", addr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

type authedHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (s *Server) withAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer credential")
			return
		}
		userID, err := s.Secrets.VerifyIntegrationKey(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid bearer credential")
			return
		}
		next(w, r, userID)
	}
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request, userID string) {
	plans, err := s.Store.ListRecentPlans(r.Context(), userID, maxRecentPlans)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	out := make([]planJSON, 0, len(plans))
	for _, p := range plans {
		out = append(out, toPlanJSON(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"plans": out})
}

func (s *Server) handlePlanDetails(w http.ResponseWriter, r *http.Request, userID string) {
	planID, ok := planIDFrom(w, r)
	if !ok {
		return
	}
	detail, err := s.Store.ResolvePlanDetails(r.Context(), planID, userID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDetailJSON(detail))
}

func (s *Server) handlePendingWork(w http.ResponseWriter, r *http.Request, userID string) {
	planID, ok := planIDFrom(w, r)
	if !ok {
		return
	}
	pending, err := s.Store.ResolvePendingWork(r.Context(), planID, userID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPendingJSON(pending))
}

func planIDFrom(w http.ResponseWriter, r *http.Request) (string, bool) {
	raw := r.PathValue("id")
	if _, err := uuid.Parse(raw); err != nil {
		writeError(w, http.StatusBadRequest, "malformed plan id")
		return "", false
	}
	return raw, true
}

// writeStoreError maps store failures to integration-facing statuses. A
// foreign-owned plan reads as not-found so the surface leaks no existence
// information.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case planstore.IsNotFound(err), errors.Is(err, planstore.ErrAccessDenied):
		writeError(w, http.StatusNotFound, "plan not found")
	case errors.Is(err, planstore.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "missing identity")
	default:
		s.Logger.Error("integration api read failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
