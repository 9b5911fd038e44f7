package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scip/internal/anchor"
	"scip/internal/handler"
	"scip/internal/metrics"
	"scip/internal/models"
	"scip/internal/repository"
	"scip/internal/revocation"
	"scip/internal/risk"
	"scip/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type testEnv struct {
	handler http.Handler
}

func newTestEnv(t *testing.T, anchorer anchor.Anchorer) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	db, err := repository.NewSQLiteDB(filepath.Join(t.TempDir(), "scip.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, repository.MigrateDB(db, logger))

	policy := risk.DefaultPolicy()
	estimator, err := risk.NewKeywordEstimator(policy)
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	evaluationRepo := repository.NewEvaluationRepository(db, logger)
	auth := service.NewAuthService(service.AuthConfig{Secret: []byte("0123456789abcdef"), Issuer: "scip"},
		repository.NewAuthRepository(db, logger), revocation.NewMemory(), logger)

	var anchorState handler.AnchorState
	if g, ok := anchorer.(*anchor.Guarded); ok {
		anchorState = func() string { return g.State().String() }
	}

	srv := NewServer(Options{
		Auth:        auth,
		AnchorState: anchorState,
		Evaluations: service.NewEvaluationService(service.EvaluationConfig{Threshold: policy.Threshold},
			estimator, anchorer, evaluationRepo, metrics.New(reg), logger),
		Audit:   service.NewAuditService(evaluationRepo, logger),
		Ping:    func(ctx context.Context) error { return repository.Ping(ctx, db) },
		Metrics: reg,
	}, logger)
	return &testEnv{handler: srv.Handler()}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func (e *testEnv) login(t *testing.T, email string) string {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/register", "", gin.H{"email": email, "username": strings.Split(email, "@")[0], "password": "password123"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = e.do(t, http.MethodPost, "/api/login", "", gin.H{"email": email, "password": "password123"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	return resp.AccessToken
}

type recordResponse struct {
	models.EvaluationRecord
	CommitHash string   `json:"commit_hash"`
	Indicators []string `json:"indicators"`
}

func TestServer_EndToEnd(t *testing.T) {
	env := newTestEnv(t, anchor.NewLocal())
	alice := env.login(t, "alice@example.com")
	bob := env.login(t, "bob@example.com")

	w := env.do(t, http.MethodPost, "/api/analyze_commit", alice, gin.H{"code_content": "hello world"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var first recordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	assert.Equal(t, 10.0, first.RiskScore)
	assert.Equal(t, models.DecisionAccepted, first.Decision)
	assert.True(t, strings.HasPrefix(first.AnchorToken, "0x"))
	assert.Len(t, first.CommitHash, 12)
	assert.Empty(t, first.Indicators)

	w = env.do(t, http.MethodPost, "/api/analyze_commit", alice, gin.H{"content": "os.system('rm -rf /'); eval(x); exec(y); subprocess; import os"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var second recordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	assert.Equal(t, models.DecisionRejected, second.Decision)

	w = env.do(t, http.MethodPost, "/api/analyze_commit", bob, gin.H{"code_content": "bob's code"})
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/logs", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs struct {
		Logs []models.EvaluationRecord `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	require.Len(t, logs.Logs, 2)
	assert.Equal(t, second.ID, logs.Logs[0].ID)
	assert.Equal(t, first.ID, logs.Logs[1].ID)

	w = env.do(t, http.MethodGet, "/api/logs?limit=1", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	assert.Len(t, logs.Logs, 1)

	w = env.do(t, http.MethodGet, "/api/logs/verify", alice, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var report struct {
		Valid   bool `json:"valid"`
		Records int  `json:"records"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.True(t, report.Valid)
	assert.Equal(t, 2, report.Records)

	w = env.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `scip_evaluations_total{decision="ACCEPTED"} 2`)
}

func TestServer_RejectsEmptyContent(t *testing.T) {
	env := newTestEnv(t, anchor.NewLocal())
	token := env.login(t, "alice@example.com")

	w := env.do(t, http.MethodPost, "/api/analyze_commit", token, gin.H{"code_content": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/api/logs", token, nil)
	assert.JSONEq(t, `{"logs":[]}`, w.Body.String())
}

func TestServer_RequiresAuth(t *testing.T) {
	env := newTestEnv(t, anchor.NewLocal())

	for _, path := range []string{"/api/analyze_commit", "/api/logout"} {
		w := env.do(t, http.MethodPost, path, "", gin.H{"code_content": "x"})
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
	w := env.do(t, http.MethodGet, "/api/logs", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_LogoutRevokesToken(t *testing.T) {
	env := newTestEnv(t, anchor.NewLocal())
	token := env.login(t, "alice@example.com")

	w := env.do(t, http.MethodPost, "/api/logout", token, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/logs", token, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestServer_DuplicateRegistration(t *testing.T) {
	env := newTestEnv(t, anchor.NewLocal())
	env.login(t, "alice@example.com")

	w := env.do(t, http.MethodPost, "/api/register", "", gin.H{"email": "alice@example.com", "username": "x", "password": "password123"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestServer_AnchorOutageStillRecords(t *testing.T) {
	ledger := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ledger.Close()

	guarded, err := anchor.New(anchor.Config{Backend: anchor.BackendHTTP, URL: ledger.URL, Timeout: anchor.DefaultTimeout}, zap.NewNop())
	require.NoError(t, err)
	env := newTestEnv(t, guarded)
	token := env.login(t, "alice@example.com")

	w := env.do(t, http.MethodPost, "/api/analyze_commit", token, gin.H{"code_content": "hello"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var rec recordResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, models.AnchorFailed, rec.AnchorToken)
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t, anchor.NewLocal())
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/ping", "", nil).Code)
	assert.Equal(t, http.StatusOK, env.do(t, http.MethodGet, "/api/health", "", nil).Code)
}

func TestServer_HealthReportsOpenBreaker(t *testing.T) {
	ledger := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ledger.Close()

	guarded, err := anchor.New(anchor.Config{
		Backend:         anchor.BackendHTTP,
		URL:             ledger.URL,
		Timeout:         anchor.DefaultTimeout,
		BreakerFailures: 1,
		BreakerCooldown: time.Minute,
	}, zap.NewNop())
	require.NoError(t, err)
	env := newTestEnv(t, guarded)

	w := env.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","database":"up","anchor":"closed"}`, w.Body.String())

	token := env.login(t, "alice@example.com")
	w = env.do(t, http.MethodPost, "/api/analyze_commit", token, gin.H{"code_content": "hello"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"degraded","database":"up","anchor":"open"}`, w.Body.String())
}
