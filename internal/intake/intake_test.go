package intake

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zanowatcher.com/internal/config"
	"zanowatcher.com/internal/jobstore"
	"zanowatcher.com/internal/kv"
	"zanowatcher.com/internal/walletrpc"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestHandler(t *testing.T, cfg *config.Config, rpcFor RPCResolver) (*Handler, *jobstore.Repo) {
	t.Helper()
	store := kv.NewMemoryStore()
	repo := jobstore.NewRepo(store, cfg.KeyPrefix, 24*time.Hour, 7*24*time.Hour, 4*time.Hour)
	if rpcFor == nil {
		rpcFor = func(string) (*walletrpc.Client, bool) { return nil, false }
	}
	return NewHandler(config.NewStoreForTest(cfg), repo, rpcFor), repo
}

func baseConfig() *config.Config {
	return &config.Config{
		KeyPrefix: "zano",
		TickerConfigs: map[string]config.TickerConfig{
			"zano": {Enabled: true, Decimals: 12, WatchAddress: "ZxWatch", MinConfirmations: 3},
			"fusd": {Enabled: true, Decimals: 4, AssetID: "AID", WatchAddress: "ZxFusd", MinConfirmations: 3},
			"off":  {Enabled: false},
		},
		Intake: config.IntakeConfig{APIKey: "k3y", CallbackSecret: "s3cret", StatusCacheMs: 1},
	}
}

func doJSON(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreate_ExplicitPaymentIdUsesWatchAddress(t *testing.T) {
	cfg := baseConfig()
	h, repo := newTestHandler(t, cfg, nil)
	r := gin.New()
	r.POST("/create", h.Create)

	rec := doJSON(r, http.MethodPost, "/create", CreateRequest{Ticker: "fusd", ClientReference: "ref1", PaymentId: "pid1"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CreateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Ok)
	assert.Equal(t, "ZxFusd", resp.Address)
	assert.Equal(t, "pid1", resp.PaymentId)

	job, ok, err := repo.LoadJob(t.Context(), "fusd", "pid1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "ref1", job.ClientReference)

	status, ok, err := repo.LoadStatus(t.Context(), "fusd", "pid1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, jobstore.StatusPending, status.Status)
}

func TestCreate_AssetModeWithoutPaymentIdRejected(t *testing.T) {
	cfg := baseConfig()
	h, _ := newTestHandler(t, cfg, nil)
	r := gin.New()
	r.POST("/create", h.Create)

	rec := doJSON(r, http.MethodPost, "/create", CreateRequest{Ticker: "fusd", ClientReference: "ref1"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreate_DisabledTickerRejected(t *testing.T) {
	cfg := baseConfig()
	h, _ := newTestHandler(t, cfg, nil)
	r := gin.New()
	r.POST("/create", h.Create)

	rec := doJSON(r, http.MethodPost, "/create", CreateRequest{Ticker: "off", ClientReference: "ref1", PaymentId: "p"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreate_MissingClientReferenceRejected(t *testing.T) {
	cfg := baseConfig()
	h, _ := newTestHandler(t, cfg, nil)
	r := gin.New()
	r.POST("/create", h.Create)

	rec := doJSON(r, http.MethodPost, "/create", CreateRequest{Ticker: "zano", PaymentId: "p"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatus_NotFoundThenFound(t *testing.T) {
	cfg := baseConfig()
	h, repo := newTestHandler(t, cfg, nil)
	r := gin.New()
	r.GET("/status/:ticker/:paymentId", h.Status)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/status/zano/p9", nil)
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NoError(t, repo.SaveStatus(t.Context(), &jobstore.Status{Status: jobstore.StatusPending, Ticker: "zano", PaymentId: "p9"}))
	time.Sleep(2 * time.Millisecond) // outlast the 1ms cache TTL from the negative lookup above

	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodGet, "/status/zano/p9", nil)
	r.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusOK, rec2.Code)

	var status jobstore.Status
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &status))
	assert.Equal(t, jobstore.StatusPending, status.Status)
}

func TestCallback_WrongSecretRejected(t *testing.T) {
	cfg := baseConfig()
	h, _ := newTestHandler(t, cfg, nil)
	r := gin.New()
	r.POST("/callback/:ticker", h.Callback)

	rec := doJSON(r, http.MethodPost, "/callback/zano", CallbackRequest{PaymentId: "p1", AmountAtomic: "100", Hash: "H"}, map[string]string{CallbackSecretHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCallback_ValidSecretWritesCompletedStatus(t *testing.T) {
	cfg := baseConfig()
	h, repo := newTestHandler(t, cfg, nil)
	r := gin.New()
	r.POST("/callback/:ticker", h.Callback)

	require.NoError(t, repo.CreateJob(t.Context(), &jobstore.Job{Ticker: "zano", Address: "A", PaymentId: "p1", MinConf: 3, CreatedAt: time.Now()}))

	rec := doJSON(r, http.MethodPost, "/callback/zano", CallbackRequest{
		PaymentId: "p1", Address: "A", AmountAtomic: "60000000000000", Confirmations: 3, Hash: "H",
	}, map[string]string{CallbackSecretHeader: "s3cret"})
	require.Equal(t, http.StatusOK, rec.Code)

	status, ok, err := repo.LoadStatus(t.Context(), "zano", "p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, jobstore.StatusCompleted, status.Status)
	assert.Equal(t, "60", status.PaidAmount)

	_, ok, err = repo.LoadJob(t.Context(), "zano", "p1")
	require.NoError(t, err)
	assert.False(t, ok, "callback must delete any in-flight Job for the pair")

	seen, err := repo.IsSeen(t.Context(), "H")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestHealth(t *testing.T) {
	cfg := baseConfig()
	h, _ := newTestHandler(t, cfg, nil)
	r := gin.New()
	r.GET("/health", h.Health)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
}
