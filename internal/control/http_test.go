package control

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/tuanvle/txscope/internal/core/domain"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeController struct {
	mu       sync.Mutex
	snap     domain.RecoveryState
	result   *domain.AccountStats
	partial  *domain.AccountStats
	err      error
	started  []domain.Query
	actions  []string
}

func (f *fakeController) Start(ctx context.Context, q domain.Query) *domain.AccountStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, q)
	return f.result
}

func (f *fakeController) Snapshot() domain.RecoveryState { return f.snap }
func (f *fakeController) CanResume() bool                { return f.snap.CanResume() }

func (f *fakeController) RetryFailedStep(ctx context.Context) (*domain.AccountStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, "retry")
	return f.result, f.err
}

func (f *fakeController) Resume(ctx context.Context) (*domain.AccountStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, "resume")
	return f.result, f.err
}

func (f *fakeController) Restart(ctx context.Context) (*domain.AccountStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, "restart")
	return f.result, f.err
}

func (f *fakeController) AcceptPartialResults() *domain.AccountStats { return f.partial }

type fakeStatsReader struct {
	stats *domain.AccountStats
	err   error
}

func (f *fakeStatsReader) Get(ctx context.Context, q domain.Query) (*domain.AccountStats, error) {
	return f.stats, f.err
}

type fakeTransferRepo struct {
	records []domain.TransferRecord
	deleted []string
}

func (f *fakeTransferRepo) SaveBatch(ctx context.Context, account string, network domain.Network, records []domain.TransferRecord) error {
	return nil
}

func (f *fakeTransferRepo) GetByAccount(ctx context.Context, q domain.Query) ([]domain.TransferRecord, error) {
	return f.records, nil
}

func (f *fakeTransferRepo) Count(ctx context.Context, account string, network domain.Network) (int, error) {
	return len(f.records), nil
}

func (f *fakeTransferRepo) DeleteByAccount(ctx context.Context, account string, network domain.Network) error {
	f.deleted = append(f.deleted, account)
	f.records = nil
	return nil
}

// newTestHandler runs launched operations synchronously so assertions can
// follow the request directly.
func newTestHandler(ctrl *fakeController, stats StatsReader) http.Handler {
	h := &apiHandler{
		sessions: ctrl,
		stats:    stats,
		launch: func(op func(ctx context.Context) *domain.AccountStats) {
			op(context.Background())
		},
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return h.mux()
}

// newTransfersHandler wires only the pieces the transfer endpoints touch.
func newTransfersHandler(repo *fakeTransferRepo, invalidate func(ctx context.Context, q domain.Query) error) http.Handler {
	h := &apiHandler{
		sessions:   &fakeController{},
		transfers:  repo,
		invalidate: invalidate,
		launch:     func(op func(ctx context.Context) *domain.AccountStats) { op(context.Background()) },
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	return h.mux()
}

func haltedSnap() domain.RecoveryState {
	return domain.RecoveryState{
		SessionID:      "sess-1",
		Run:            domain.RunStateHalted,
		Query:          domain.Query{Account: "0xabc", Network: domain.NetworkMainnet, Period: domain.PeriodWeekly},
		FailedStep:     domain.StepAggregatingVolume,
		CompletedSteps: []domain.Step{domain.StepInitializing, domain.StepFetchingRecords},
		IsPartial:      true,
	}
}

// =============================================================================
// Tests
// =============================================================================

func TestHandleIndex_Starts(t *testing.T) {
	ctrl := &fakeController{}
	handler := newTestHandler(ctrl, nil)

	body := `{"account":"0xabc","network":"mainnet","period":"weekly"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/index", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(ctrl.started) != 1 {
		t.Fatalf("expected 1 session start, got %d", len(ctrl.started))
	}
	if ctrl.started[0].Account != "0xabc" {
		t.Errorf("wrong account started: %s", ctrl.started[0].Account)
	}
}

func TestHandleIndex_RejectsInvalidQuery(t *testing.T) {
	ctrl := &fakeController{}
	handler := newTestHandler(ctrl, nil)

	body := `{"account":"0xabc","network":"devnet","period":"weekly"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/index", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown network, got %d", rr.Code)
	}
	if len(ctrl.started) != 0 {
		t.Error("invalid query must not start a session")
	}
}

func TestHandleIndex_ConflictWhileRunning(t *testing.T) {
	ctrl := &fakeController{snap: domain.RecoveryState{SessionID: "sess-1", Run: domain.RunStateRunning}}
	handler := newTestHandler(ctrl, nil)

	body := `{"account":"0xabc","network":"mainnet","period":"weekly"}`
	req := httptest.NewRequest(http.MethodPost, "/v1/index", strings.NewReader(body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Errorf("expected 409 while a session runs, got %d", rr.Code)
	}
}

func TestHandleCurrentSession(t *testing.T) {
	ctrl := &fakeController{}
	handler := newTestHandler(ctrl, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/sessions/current", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 with no session, got %d", rr.Code)
	}

	ctrl.snap = haltedSnap()
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions/current", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	var snap domain.RecoveryState
	if err := json.Unmarshal(rr.Body.Bytes(), &snap); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if snap.SessionID != "sess-1" || snap.FailedStep != domain.StepAggregatingVolume {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestRecoveryActions_RequireHaltedSession(t *testing.T) {
	for _, path := range []string{
		"/v1/sessions/current/retry",
		"/v1/sessions/current/resume",
		"/v1/sessions/current/restart",
	} {
		ctrl := &fakeController{}
		handler := newTestHandler(ctrl, nil)

		req := httptest.NewRequest(http.MethodPost, path, nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusConflict {
			t.Errorf("%s: expected 409 with no session, got %d", path, rr.Code)
		}
		if len(ctrl.actions) != 0 {
			t.Errorf("%s: no action must run without a session", path)
		}
	}
}

func TestRecoveryActions_Dispatch(t *testing.T) {
	for _, tc := range []struct {
		path   string
		action string
	}{
		{"/v1/sessions/current/retry", "retry"},
		{"/v1/sessions/current/resume", "resume"},
		{"/v1/sessions/current/restart", "restart"},
	} {
		ctrl := &fakeController{snap: haltedSnap()}
		handler := newTestHandler(ctrl, nil)

		req := httptest.NewRequest(http.MethodPost, tc.path, nil)
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)

		if rr.Code != http.StatusAccepted {
			t.Errorf("%s: expected 202, got %d: %s", tc.path, rr.Code, rr.Body.String())
		}
		if len(ctrl.actions) != 1 || ctrl.actions[0] != tc.action {
			t.Errorf("%s: expected action %q, got %v", tc.path, tc.action, ctrl.actions)
		}
	}
}

func TestHandleResume_NothingCompleted(t *testing.T) {
	snap := haltedSnap()
	snap.CompletedSteps = nil
	snap.IsPartial = false
	ctrl := &fakeController{snap: snap}
	handler := newTestHandler(ctrl, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/current/resume", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusConflict {
		t.Errorf("expected 409 when nothing completed, got %d", rr.Code)
	}
}

func TestHandleAcceptPartial(t *testing.T) {
	ctrl := &fakeController{snap: haltedSnap(), partial: &domain.AccountStats{TransferCount: 5}}
	handler := newTestHandler(ctrl, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/sessions/current/accept-partial", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var stats domain.AccountStats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if stats.TransferCount != 5 {
		t.Errorf("unexpected stats: %+v", stats)
	}

	// No usable artifacts: conflict.
	ctrl.partial = nil
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/sessions/current/accept-partial", nil))
	if rr.Code != http.StatusConflict {
		t.Errorf("expected 409 without partial results, got %d", rr.Code)
	}
}

func TestHandleStats(t *testing.T) {
	reader := &fakeStatsReader{stats: &domain.AccountStats{Account: "0xabc", TotalVolume: 7.5}}
	handler := newTestHandler(&fakeController{}, reader)

	req := httptest.NewRequest(http.MethodGet, "/v1/stats?account=0xabc&network=mainnet&period=weekly", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var stats domain.AccountStats
	if err := json.Unmarshal(rr.Body.Bytes(), &stats); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if stats.TotalVolume != 7.5 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestHandleStats_NotFound(t *testing.T) {
	handler := newTestHandler(&fakeController{}, &fakeStatsReader{})

	req := httptest.NewRequest(http.MethodGet, "/v1/stats?account=0xabc&network=mainnet&period=weekly", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rr.Code)
	}
}

func TestHandleTransfers_ReturnsStoredRecords(t *testing.T) {
	repo := &fakeTransferRepo{records: []domain.TransferRecord{
		{TxHash: "0x1", From: "0xabc", Value: "1.0"},
		{TxHash: "0x2", To: "0xabc", Value: "2.5"},
	}}
	handler := newTransfersHandler(repo, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/transfers?account=0xabc&network=mainnet&period=weekly", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp transfersResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if len(resp.Records) != 2 || resp.TotalStored != 2 {
		t.Errorf("unexpected response: %+v", resp)
	}
	if resp.Records[0].TxHash != "0x1" {
		t.Errorf("wrong first record: %+v", resp.Records[0])
	}
}

func TestHandleTransfers_RejectsInvalidQuery(t *testing.T) {
	handler := newTransfersHandler(&fakeTransferRepo{}, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/transfers?account=0xabc&network=devnet&period=weekly", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for unknown network, got %d", rr.Code)
	}
}

func TestHandleDeleteTransfers(t *testing.T) {
	repo := &fakeTransferRepo{records: []domain.TransferRecord{{TxHash: "0x1"}}}
	var invalidated []domain.Query
	handler := newTransfersHandler(repo, func(ctx context.Context, q domain.Query) error {
		invalidated = append(invalidated, q)
		return nil
	})

	req := httptest.NewRequest(http.MethodDelete, "/v1/transfers?account=0xabc&network=mainnet", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != "0xabc" {
		t.Errorf("expected one delete for 0xabc, got %v", repo.deleted)
	}
	// Cached stats for every period of the account are dropped.
	if len(invalidated) != 3 {
		t.Errorf("expected 3 cache invalidations, got %d", len(invalidated))
	}
}

func TestHandleDeleteTransfers_RejectsMissingAccount(t *testing.T) {
	repo := &fakeTransferRepo{}
	handler := newTransfersHandler(repo, nil)

	req := httptest.NewRequest(http.MethodDelete, "/v1/transfers?account=&network=mainnet", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for missing account, got %d", rr.Code)
	}
	if len(repo.deleted) != 0 {
		t.Error("invalid request must not delete anything")
	}
}

func TestHandleStats_RejectsInvalidQuery(t *testing.T) {
	handler := newTestHandler(&fakeController{}, &fakeStatsReader{})

	req := httptest.NewRequest(http.MethodGet, "/v1/stats?account=&network=mainnet&period=weekly", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}
