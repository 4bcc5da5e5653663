package control

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/tuanvle/txscope/internal/core/domain"
	"github.com/tuanvle/txscope/internal/indexing/recovery"
	redisclient "github.com/tuanvle/txscope/internal/infra/redis"
	"github.com/tuanvle/txscope/internal/infra/storage"
)

// apiHandler serves the public control API. Session operations are handed to
// launch, which runs them in the background; request handlers only validate
// preconditions and report the accepted action.
type apiHandler struct {
	sessions  SessionController
	stats     StatsReader
	cache     StatsReader // optional, checked before stats
	transfers storage.TransferRepository
	launch    func(op func(ctx context.Context) *domain.AccountStats)
	log       *slog.Logger

	// invalidate drops cached stats for a query, nil when caching is off.
	invalidate func(ctx context.Context, q domain.Query) error
}

func (s *Service) routes() http.Handler {
	h := &apiHandler{
		sessions:  s.controller,
		stats:     s.statsRepo,
		transfers: s.transferRepo,
		launch:    s.runSession,
		log:       s.log,
	}
	if s.cache != nil {
		h.cache = cacheReader{s.cache}
		h.invalidate = s.cache.InvalidateStats
	}
	return h.mux()
}

func (h *apiHandler) mux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/index", h.handleIndex)
	mux.HandleFunc("GET /v1/sessions/current", h.handleCurrentSession)
	mux.HandleFunc("POST /v1/sessions/current/retry", h.handleRetry)
	mux.HandleFunc("POST /v1/sessions/current/resume", h.handleResume)
	mux.HandleFunc("POST /v1/sessions/current/restart", h.handleRestart)
	mux.HandleFunc("POST /v1/sessions/current/accept-partial", h.handleAcceptPartial)
	mux.HandleFunc("GET /v1/stats", h.handleStats)
	mux.HandleFunc("GET /v1/transfers", h.handleTransfers)
	mux.HandleFunc("DELETE /v1/transfers", h.handleDeleteTransfers)
	return mux
}

type indexRequest struct {
	Account string `json:"account"`
	Network string `json:"network"`
	Period  string `json:"period"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// handleIndex starts a new indexing session for the requested account.
func (h *apiHandler) handleIndex(w http.ResponseWriter, r *http.Request) {
	var req indexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	q := domain.Query{
		Account: req.Account,
		Network: domain.Network(req.Network),
		Period:  domain.Period(req.Period),
	}
	if err := q.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.sessions.Snapshot().Run == domain.RunStateRunning {
		writeError(w, http.StatusConflict, "a session is already running")
		return
	}

	h.launch(func(ctx context.Context) *domain.AccountStats {
		return h.sessions.Start(ctx, q)
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

// handleCurrentSession reports the recovery state of the current session.
func (h *apiHandler) handleCurrentSession(w http.ResponseWriter, r *http.Request) {
	snap := h.sessions.Snapshot()
	if snap.SessionID == "" {
		writeError(w, http.StatusNotFound, "no session")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *apiHandler) handleRetry(w http.ResponseWriter, r *http.Request) {
	h.recoveryAction(w, "retry", func(ctx context.Context) (*domain.AccountStats, error) {
		return h.sessions.RetryFailedStep(ctx)
	})
}

func (h *apiHandler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.recoveryAction(w, "resume", func(ctx context.Context) (*domain.AccountStats, error) {
		return h.sessions.Resume(ctx)
	})
}

func (h *apiHandler) handleRestart(w http.ResponseWriter, r *http.Request) {
	h.recoveryAction(w, "restart", func(ctx context.Context) (*domain.AccountStats, error) {
		return h.sessions.Restart(ctx)
	})
}

// recoveryAction validates preconditions synchronously, then launches the
// actual recovery run in the background.
func (h *apiHandler) recoveryAction(w http.ResponseWriter, action string, op func(ctx context.Context) (*domain.AccountStats, error)) {
	snap := h.sessions.Snapshot()
	if snap.SessionID == "" {
		writeError(w, http.StatusConflict, recovery.ErrNotStarted.Error())
		return
	}
	if action != "restart" && !snap.Halted() {
		writeError(w, http.StatusConflict, recovery.ErrNoFailedStep.Error())
		return
	}
	if action == "resume" && !snap.CanResume() {
		writeError(w, http.StatusConflict, recovery.ErrNothingCompleted.Error())
		return
	}

	h.launch(func(ctx context.Context) *domain.AccountStats {
		result, err := op(ctx)
		if err != nil {
			// Preconditions raced with another request; nothing to run.
			h.log.Warn("Recovery action rejected", "action", action, "error", err)
			return nil
		}
		return result
	})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": action})
}

// handleAcceptPartial returns whatever usable data the halted session
// produced. Unlike the other recovery actions this is synchronous.
func (h *apiHandler) handleAcceptPartial(w http.ResponseWriter, r *http.Request) {
	stats := h.sessions.AcceptPartialResults()
	if stats == nil {
		writeError(w, http.StatusConflict, "no usable partial results")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleStats serves computed stats, cache first then storage.
func (h *apiHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	q := domain.Query{
		Account: r.URL.Query().Get("account"),
		Network: domain.Network(r.URL.Query().Get("network")),
		Period:  domain.Period(r.URL.Query().Get("period")),
	}
	if err := q.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if h.cache != nil {
		stats, err := h.cache.Get(ctx, q)
		if err != nil {
			h.log.Warn("Cache lookup failed", "error", err)
		} else if stats != nil {
			writeJSON(w, http.StatusOK, stats)
			return
		}
	}

	if h.stats == nil {
		writeError(w, http.StatusNotFound, "no stats for query")
		return
	}
	stats, err := h.stats.Get(ctx, q)
	if err != nil {
		h.log.Error("Stats lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	if stats == nil {
		writeError(w, http.StatusNotFound, "no stats for query")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type transfersResponse struct {
	Account     string                  `json:"account"`
	Network     domain.Network          `json:"network"`
	Period      domain.Period           `json:"period"`
	TotalStored int                     `json:"total_stored"`
	Records     []domain.TransferRecord `json:"records"`
}

// handleTransfers lists the stored transfer records inside the query window,
// alongside the account's total stored count across all windows.
func (h *apiHandler) handleTransfers(w http.ResponseWriter, r *http.Request) {
	q := domain.Query{
		Account: r.URL.Query().Get("account"),
		Network: domain.Network(r.URL.Query().Get("network")),
		Period:  domain.Period(r.URL.Query().Get("period")),
	}
	if err := q.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	records, err := h.transfers.GetByAccount(ctx, q)
	if err != nil {
		h.log.Error("Transfer lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	total, err := h.transfers.Count(ctx, q.Account, q.Network)
	if err != nil {
		h.log.Error("Transfer count failed", "error", err)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	if records == nil {
		records = []domain.TransferRecord{}
	}

	writeJSON(w, http.StatusOK, transfersResponse{
		Account:     q.Account,
		Network:     q.Network,
		Period:      q.Period,
		TotalStored: total,
		Records:     records,
	})
}

// handleDeleteTransfers removes an account's stored transfers and drops any
// cached stats derived from them.
func (h *apiHandler) handleDeleteTransfers(w http.ResponseWriter, r *http.Request) {
	account := r.URL.Query().Get("account")
	network := domain.Network(r.URL.Query().Get("network"))

	// Deletion covers every period; the placeholder only satisfies the
	// account/network validation.
	if err := (domain.Query{Account: account, Network: network, Period: domain.PeriodWeekly}).Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.transfers.DeleteByAccount(ctx, account, network); err != nil {
		h.log.Error("Transfer delete failed", "error", err)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}

	if h.invalidate != nil {
		for _, p := range []domain.Period{domain.PeriodWeekly, domain.PeriodMonthly, domain.PeriodYearly} {
			q := domain.Query{Account: account, Network: network, Period: p}
			if err := h.invalidate(ctx, q); err != nil {
				h.log.Warn("Failed to invalidate cached stats", "period", p, "error", err)
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// cacheReader adapts the redis cache to the StatsReader interface.
type cacheReader struct {
	cache *redisclient.Cache
}

func (c cacheReader) Get(ctx context.Context, q domain.Query) (*domain.AccountStats, error) {
	return c.cache.GetStats(ctx, q)
}
