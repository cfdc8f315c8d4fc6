package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Viewly/token-contracts/internal/chain"
	"github.com/Viewly/token-contracts/internal/config"
	"github.com/Viewly/token-contracts/internal/model"
	"github.com/Viewly/token-contracts/internal/repository"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const txHash = "0x00000000000000000000000000000000000000000000000000000000000000ab"

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	return newRouter(t, nil)
}

func newRouter(t *testing.T, health HealthFunc) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	repo, err := repository.Initialize(config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "payouts.db"),
	}, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	alice, err := model.NewPayoutRecord("Alice", "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", decimal.RequireFromString("1000"), model.BucketTeam)
	require.NoError(t, err)
	bob, err := model.NewPayoutRecord("Bob", "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", decimal.RequireFromString("50.5"), model.BucketBounties)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, repo.BulkInsert(ctx, []model.PayoutRecord{alice, bob}))
	require.NoError(t, repo.MarkSubmitted(ctx, 1, txHash))

	network, err := chain.LookupNetwork("mainnet")
	require.NoError(t, err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "distributor_test_total", Help: "test"}))
	return Setup(repo, network, registry, health)
}

func get(t *testing.T, r *gin.Engine, path string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)

	var body envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w, body
}

func TestHealth(t *testing.T) {
	r := setupRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"chain":"mainnet"`)
}

func TestHealthIncludesNodeStatus(t *testing.T) {
	status := "connected"
	r := newRouter(t, func(context.Context) map[string]interface{} {
		return map[string]interface{}{"client_status": status, "latest_block": 42}
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"latest_block":42`)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)

	status = "disconnected"
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)
	assert.Contains(t, w.Body.String(), `"client_status":"disconnected"`)
}

func TestListPayouts(t *testing.T) {
	r := setupRouter(t)

	w, body := get(t, r, "/api/v1/payouts")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, body.Success)

	var list struct {
		Payouts []struct {
			Id     int64  `json:"id"`
			Amount string `json:"amount"`
			Status string `json:"status"`
			TxLink string `json:"txLink"`
		} `json:"payouts"`
		Pagination struct {
			Total     int64 `json:"total"`
			TotalPage int64 `json:"totalPage"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &list))
	require.Len(t, list.Payouts, 2)
	assert.Equal(t, "submitted", list.Payouts[0].Status)
	assert.Equal(t, "https://etherscan.io/tx/"+txHash, list.Payouts[0].TxLink)
	assert.Equal(t, "50.5", list.Payouts[1].Amount)
	assert.Equal(t, int64(2), list.Pagination.Total)
	assert.Equal(t, int64(1), list.Pagination.TotalPage)

	_, body = get(t, r, "/api/v1/payouts?status=pending&bucket=bounties")
	require.NoError(t, json.Unmarshal(body.Data, &list))
	require.Len(t, list.Payouts, 1)
	assert.Equal(t, int64(2), list.Payouts[0].Id)
}

func TestListPayoutsBadFilter(t *testing.T) {
	r := setupRouter(t)

	w, body := get(t, r, "/api/v1/payouts?status=lost")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.False(t, body.Success)

	w, _ = get(t, r, "/api/v1/payouts?page_size=0")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetPayout(t *testing.T) {
	r := setupRouter(t)

	w, body := get(t, r, "/api/v1/payouts/1")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(body.Data), `"name":"Alice"`)

	w, _ = get(t, r, "/api/v1/payouts/99")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = get(t, r, "/api/v1/payouts/abc")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPayoutStats(t *testing.T) {
	r := setupRouter(t)

	w, body := get(t, r, "/api/v1/payouts/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var stats struct {
		Total struct {
			Count  int64  `json:"count"`
			Amount string `json:"amount"`
		} `json:"total"`
		ByStatus map[string]struct {
			Count int64 `json:"count"`
		} `json:"by_status"`
		BucketSetVersion int `json:"bucket_set_version"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &stats))
	assert.Equal(t, int64(2), stats.Total.Count)
	assert.Equal(t, "1050.5", stats.Total.Amount)
	assert.Equal(t, int64(1), stats.ByStatus["submitted"].Count)
	assert.Equal(t, int64(0), stats.ByStatus["confirmed"].Count)
	assert.Equal(t, model.BucketSetVersion, stats.BucketSetVersion)
}

func TestMetrics(t *testing.T) {
	r := setupRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "distributor_test_total")
}
