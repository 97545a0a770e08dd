// Package api provides the local HTTP API for the time bank daemon.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timebank/internal/domain"
)

// Clearer is the subset of the reset policy exposed over HTTP.
type Clearer interface {
	TimeUntilNextClear(ctx context.Context) (time.Duration, error)
	Clear(ctx context.Context) error
	Markers(ctx context.Context) (domain.ResetMarkers, error)
}

// StatusSource returns the latest status line.
type StatusSource func() string

// Server is the time bank HTTP API server.
type Server struct {
	ledger  domain.Ledger
	reset   Clearer
	status  StatusSource
	logger  *zap.Logger
	started time.Time
}

// NewServer creates a new API server. status may be nil.
func NewServer(ledger domain.Ledger, reset Clearer, status StatusSource, logger *zap.Logger) *Server {
	return &Server{
		ledger:  ledger,
		reset:   reset,
		status:  status,
		logger:  logger,
		started: time.Now(),
	}
}

type amountRequest struct {
	Seconds int64 `json:"seconds"`
}

type balanceResponse struct {
	Balance int64 `json:"balance_seconds"`
}

type debitResponse struct {
	Debited bool  `json:"debited"`
	Balance int64 `json:"balance_seconds"`
}

type clearResponse struct {
	Allowed           bool  `json:"allowed"`
	WaitSeconds       int64 `json:"wait_seconds"`
	LastManualClearAt int64 `json:"last_manual_clear_at,omitempty"`
	LastDailyResetAt  int64 `json:"last_daily_reset_at,omitempty"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"uptime_seconds": int64(time.Since(s.started).Seconds()),
		})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/balance", s.handleBalance)
		r.Post("/balance/credit", s.handleCredit)
		r.Post("/balance/debit", s.handleDebit)
		r.Get("/clear", s.handleClearStatus)
		r.Post("/clear", s.handleClear)
	})

	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	text := ""
	if s.status != nil {
		text = s.status()
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": text})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.ledger.Read(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, balanceResponse{Balance: balance})
}

func (s *Server) handleCredit(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	if err := s.ledger.Credit(r.Context(), req.Seconds); err != nil {
		s.handleDomainError(w, err)
		return
	}
	s.handleBalance(w, r)
}

func (s *Server) handleDebit(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeAmount(w, r)
	if !ok {
		return
	}
	debited, err := s.ledger.Debit(r.Context(), req.Seconds)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	balance, err := s.ledger.Read(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, debitResponse{Debited: debited, Balance: balance})
}

func (s *Server) handleClearStatus(w http.ResponseWriter, r *http.Request) {
	resp, err := s.clearStatus(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.reset.Clear(r.Context()); err != nil {
		if errors.Is(err, domain.ErrClearThrottled) {
			resp, serr := s.clearStatus(r.Context())
			if serr != nil {
				s.handleDomainError(w, serr)
				return
			}
			writeJSON(w, http.StatusTooManyRequests, resp)
			return
		}
		s.handleDomainError(w, err)
		return
	}
	s.logger.Info("manual clear via api")
	s.handleBalance(w, r)
}

func (s *Server) clearStatus(ctx context.Context) (clearResponse, error) {
	wait, err := s.reset.TimeUntilNextClear(ctx)
	if err != nil {
		return clearResponse{}, err
	}
	markers, err := s.reset.Markers(ctx)
	if err != nil {
		return clearResponse{}, err
	}
	return clearResponse{
		Allowed:           wait == 0,
		WaitSeconds:       int64(wait.Seconds()),
		LastManualClearAt: markers.LastManualClearAt,
		LastDailyResetAt:  markers.LastDailyResetAt,
	}, nil
}

func decodeAmount(w http.ResponseWriter, r *http.Request) (amountRequest, bool) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return req, false
	}
	if req.Seconds < 0 {
		writeError(w, http.StatusBadRequest, "validation_failed", domain.ErrNegativeAmount.Error())
		return req, false
	}
	return req, true
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNegativeAmount):
		writeError(w, http.StatusBadRequest, "validation_failed", domain.ErrNegativeAmount.Error())
	case errors.Is(err, domain.ErrStoreUnavailable):
		s.logger.Warn("store unavailable", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", domain.ErrStoreUnavailable.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
