package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timebank/internal/domain"
	"github.com/eliteGoblin/focusd/timebank/internal/ledger"
	"github.com/eliteGoblin/focusd/timebank/internal/policy"
	"github.com/eliteGoblin/focusd/timebank/test/fixtures"
)

type apiEnv struct {
	store  *fixtures.MemoryStore
	clock  *fixtures.FakeClock
	ledger *ledger.LedgerImpl
	srv    http.Handler
}

func newAPIEnv(t *testing.T) *apiEnv {
	t.Helper()
	store := fixtures.NewMemoryStore()
	clock := fixtures.NewFakeClock(time.Date(2024, 3, 10, 9, 0, 0, 0, time.Local))
	l := ledger.NewLedger(store, zap.NewNop())
	reset := policy.NewResetPolicy(policy.DefaultResetConfig(), l, store, clock, zap.NewNop())
	status := func() string { return "Using code, earned 3s" }
	return &apiEnv{
		store:  store,
		clock:  clock,
		ledger: l,
		srv:    NewServer(l, reset, status, zap.NewNop()).Handler(),
	}
}

func (e *apiEnv) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	e.srv.ServeHTTP(w, req)

	var resp map[string]any
	if w.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func TestServer_Health(t *testing.T) {
	e := newAPIEnv(t)
	w, resp := e.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", resp["status"])
}

func TestServer_Metrics(t *testing.T) {
	e := newAPIEnv(t)
	w, _ := e.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "timebank_")
}

func TestServer_Status(t *testing.T) {
	e := newAPIEnv(t)
	w, resp := e.do(t, http.MethodGet, "/v1/status", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Using code, earned 3s", resp["status"])
}

func TestServer_BalanceCreditDebit(t *testing.T) {
	e := newAPIEnv(t)

	w, resp := e.do(t, http.MethodGet, "/v1/balance", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(0), resp["balance_seconds"])

	w, resp = e.do(t, http.MethodPost, "/v1/balance/credit", `{"seconds": 30}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(30), resp["balance_seconds"])

	w, resp = e.do(t, http.MethodPost, "/v1/balance/debit", `{"seconds": 20}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["debited"])
	assert.Equal(t, float64(10), resp["balance_seconds"])

	w, resp = e.do(t, http.MethodPost, "/v1/balance/debit", `{"seconds": 11}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, resp["debited"])
	assert.Equal(t, float64(10), resp["balance_seconds"])
}

func TestServer_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		path string
		body string
		code string
	}{
		{"invalid json", "/v1/balance/credit", `{`, "bad_request"},
		{"negative credit", "/v1/balance/credit", `{"seconds": -5}`, "validation_failed"},
		{"negative debit", "/v1/balance/debit", `{"seconds": -1}`, "validation_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newAPIEnv(t)
			w, resp := e.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, resp["code"])
		})
	}
}

func TestServer_StoreUnavailable(t *testing.T) {
	e := newAPIEnv(t)
	e.store.FailReads(true)

	w, resp := e.do(t, http.MethodGet, "/v1/balance", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "store_unavailable", resp["code"])
}

func TestServer_ClearThrottle(t *testing.T) {
	e := newAPIEnv(t)

	w, resp := e.do(t, http.MethodGet, "/v1/clear", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["allowed"])

	w, resp = e.do(t, http.MethodPost, "/v1/clear", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(300), resp["balance_seconds"])

	e.clock.Advance(24 * time.Hour)
	w, resp = e.do(t, http.MethodPost, "/v1/clear", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, false, resp["allowed"])
	assert.Equal(t, float64(6*24*3600), resp["wait_seconds"])

	balance, err := e.ledger.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(300), balance)
}

func TestServer_ClearKeepsClassifications(t *testing.T) {
	e := newAPIEnv(t)
	e.store.Classify("steam", domain.CategoryNegative)

	w, _ := e.do(t, http.MethodPost, "/v1/clear", "")
	require.Equal(t, http.StatusOK, w.Code)

	c, err := e.store.Get(context.Background(), "steam")
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryNegative, c.Category)
}
