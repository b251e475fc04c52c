package walletrpc

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonRPCServer(t *testing.T, result interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		body := map[string]interface{}{"jsonrpc": "2.0", "id": "1", "result": result}
		require.NoError(t, json.NewEncoder(w).Encode(body))
	}))
}

func TestGetPayments_AliasedFields(t *testing.T) {
	srv := jsonRPCServer(t, map[string]interface{}{
		"result": map[string]interface{}{
			"transactions": []map[string]interface{}{
				{"tx_hash": "H1", "amount": "60000000000000", "block_height": 100},
			},
		},
	})
	defer srv.Close()

	c := New(srv.URL, "", "", 8*time.Second)
	payments, err := c.GetPayments(t.Context(), "pid1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "H1", payments[0].TxHash)
	assert.Equal(t, "60000000000000", payments[0].AmountAtomic.String())
	assert.Equal(t, int64(100), payments[0].BlockHeight)
}

func TestGetRecentTxsAndInfo2_FiltersBySubtransfer(t *testing.T) {
	srv := jsonRPCServer(t, map[string]interface{}{
		"transfers": []map[string]interface{}{
			{
				"payment_id": "pid1",
				"tx_hash":    "H2",
				"height":     200,
				"subtransfers": []map[string]interface{}{
					{"is_income": true, "amount": "200000000000000", "asset_id": "AID"},
					{"is_income": true, "amount": "5000000000000", "asset_id": ""},
				},
			},
		},
	})
	defer srv.Close()

	c := New(srv.URL, "", "", 8*time.Second)
	transfers, err := c.GetRecentTxsAndInfo2(t.Context(), RecentTxsParams{Count: 50})
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	require.Len(t, transfers[0].Subtransfers, 2)
	assert.Equal(t, "AID", transfers[0].Subtransfers[0].AssetID)
	assert.Equal(t, "200000000000000", transfers[0].Subtransfers[0].AmountAtomic.String())
}

func TestCall_HTTPErrorBecomesRpcError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := New(srv.URL, "", "", 8*time.Second)
	_, err := c.GetWalletInfo(t.Context())
	require.Error(t, err)
	var rpcErr *RpcError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, http.StatusInternalServerError, rpcErr.HTTPStatus)
}

func TestCall_OpenBreakerBecomesRpcError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("daemon down"))
	}))
	defer srv.Close()

	c := New(srv.URL, "", "", 8*time.Second)
	for i := 0; i < 5; i++ {
		_, err := c.GetWalletInfo(t.Context())
		require.Error(t, err)
	}

	_, err := c.GetWalletInfo(t.Context())
	require.Error(t, err)
	var rpcErr *RpcError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "get_wallet_info", rpcErr.Method)
}

func TestCall_JSONRPCErrorObjectBecomesRpcError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0", "id": "1",
			"error": map[string]interface{}{"code": -32000, "message": "wallet locked"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "", "", 8*time.Second)
	_, err := c.GetWalletInfo(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet locked")
}
