package webhook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatch_2xxIsOk(t *testing.T) {
	var gotSecret string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get(SecretHeader)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := New()
	res := d.Dispatch(context.Background(), Payload{PaymentId: "pid1"}, srv.URL, "s3cr3t", 5*time.Second)
	assert.True(t, res.Ok)
	require.NotNil(t, res.StatusCode)
	assert.Equal(t, http.StatusOK, *res.StatusCode)
	assert.Equal(t, "s3cr3t", gotSecret)
}

func TestDispatch_500IsNotOk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	d := New()
	res := d.Dispatch(context.Background(), Payload{}, srv.URL, "s", 5*time.Second)
	assert.False(t, res.Ok)
	require.NotNil(t, res.StatusCode)
	assert.Equal(t, http.StatusInternalServerError, *res.StatusCode)
}

func TestDispatch_NetworkFailureHasNilStatus(t *testing.T) {
	d := New()
	res := d.Dispatch(context.Background(), Payload{}, "http://127.0.0.1:1", "s", 200*time.Millisecond)
	assert.False(t, res.Ok)
	assert.Nil(t, res.StatusCode)
	assert.NotEmpty(t, res.Error)
}

// (Scenario 3) baseMs=1000, factor=2, jitter=false: attempt 1 -> 1s,
// attempt 2 -> 2s (cumulative 3s).
func TestDelay_MatchesWorkedScenario(t *testing.T) {
	cfg := BackoffConfig{BaseMs: 1000, Factor: 2, MaxMs: 20 * 60 * 1000, Jitter: false}
	assert.Equal(t, time.Second, Delay(cfg, 1))
	assert.Equal(t, 2*time.Second, Delay(cfg, 2))
	assert.Equal(t, 4*time.Second, Delay(cfg, 3))
}

func TestDelay_CapsAtMaxMs(t *testing.T) {
	cfg := BackoffConfig{BaseMs: 1000, Factor: 2, MaxMs: 3000, Jitter: false}
	assert.Equal(t, 3*time.Second, Delay(cfg, 10))
}

func TestDelay_JitterStaysWithinBounds(t *testing.T) {
	cfg := BackoffConfig{BaseMs: 1000, Factor: 2, MaxMs: 20 * 60 * 1000, Jitter: true}
	for i := 0; i < 50; i++ {
		d := Delay(cfg, 3)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 4*time.Second)
	}
}
