package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lockrelay/lockd/internal/auth"
	"github.com/lockrelay/lockd/internal/relay"
	"github.com/lockrelay/lockd/pkg/log"
)

// Server wires the relay core to its HTTP boundary. Every handler here
// is a thin adapter: credential/JSON handling only, no device logic.
type Server struct {
	cfg    relay.Config
	reg    *relay.Registry
	auth   *auth.Authenticator
	logger log.Logger
}

// NewServer builds a Server for the given fleet config and registry.
func NewServer(cfg relay.Config, reg *relay.Registry, authenticator *auth.Authenticator, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NoopLogger{}
	}
	return &Server{cfg: cfg, reg: reg, auth: authenticator, logger: logger}
}

// Routes returns the HTTP handler for the whole API.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/token", s.handleToken)
	mux.HandleFunc("POST /api/v1/pulse", s.requireAuth(s.handlePulse))
	mux.HandleFunc("GET /api/v1/status", s.requireAuth(s.handleStatus))
	mux.HandleFunc("GET /api/v1/users/me", s.requireAuth(s.handleMe))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	return mux
}

type tokenRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, err := s.auth.IssueToken(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

type pulseRequest struct {
	ID     string `json:"id"`
	TimeMs *int   `json:"time_ms,omitempty"`
}

type pulseResponse struct {
	Message string `json:"message"`
}

func (s *Server) handlePulse(w http.ResponseWriter, r *http.Request) {
	var req pulseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TimeMs != nil && *req.TimeMs <= 0 {
		writeError(w, http.StatusBadRequest, "time_ms must be > 0")
		return
	}

	if err := relay.Pulse(s.reg, req.ID); err != nil {
		writeError(w, http.StatusNotFound, "unknown lock id")
		return
	}

	writeJSON(w, http.StatusOK, pulseResponse{Message: fmt.Sprintf("Locker # %s opened", req.ID)})
}

type lockStatus struct {
	Status any `json:"status"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	status, duration := relay.RelayStatus(ctx, s.cfg, s.reg)
	s.logger.Log(log.Event{
		Timestamp: time.Now(),
		Layer:     log.LayerFleet,
		Category:  log.CategoryState,
		StateChange: &log.StateChangeEvent{
			NewState: "status_poll_complete",
			Reason:   fmt.Sprintf("%d locks in %s", len(status), duration),
		},
	})

	out := make(map[string]lockStatus, len(status))
	for id, v := range status {
		out[id] = lockStatus{Status: v}
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": out})
}

type meResponse struct {
	Username string `json:"username"`
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	writeJSON(w, http.StatusOK, meResponse{Username: claims.Username})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "OK"})
}

type contextKey string

const claimsContextKey contextKey = "claims"

func claimsFromContext(ctx context.Context) *auth.Claims {
	claims, _ := ctx.Value(claimsContextKey).(*auth.Claims)
	if claims == nil {
		return &auth.Claims{}
	}
	return claims
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		claims, err := s.auth.Validate(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next(w, r.WithContext(ctx))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"detail": message})
}
