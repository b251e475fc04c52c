package matcher

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zanowatcher.com/internal/walletrpc"
)

type fakeRPC struct {
	payments  []walletrpc.Payment
	transfers []walletrpc.RecentTransfer
}

func (f *fakeRPC) GetPayments(ctx context.Context, paymentId string) ([]walletrpc.Payment, error) {
	return f.payments, nil
}

func (f *fakeRPC) GetRecentTxsAndInfo2(ctx context.Context, p walletrpc.RecentTxsParams) ([]walletrpc.RecentTransfer, error) {
	return f.transfers, nil
}

func TestMatch_BaseCoinUsesGetPayments(t *testing.T) {
	rpc := &fakeRPC{
		payments: []walletrpc.Payment{
			{TxHash: "H", AmountAtomic: big.NewInt(60_000_000_000_000), BlockHeight: 100},
		},
	}
	m := New(rpc)
	obs, err := m.Match(context.Background(), Request{Address: "A", Ticker: "zano", PaymentId: "pid1"}, 102)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, int64(3), obs[0].Confirmations)
}

func TestMatch_AssetModeSkipsGetPaymentsAndFiltersSubtransfers(t *testing.T) {
	rpc := &fakeRPC{
		payments: []walletrpc.Payment{
			{TxHash: "SHOULD_NOT_APPEAR", AmountAtomic: big.NewInt(1), BlockHeight: 1},
		},
		transfers: []walletrpc.RecentTransfer{
			{
				PaymentId: "pid1",
				TxHash:    "H2",
				Height:    200,
				Subtransfers: []walletrpc.Subtransfer{
					{IsIncome: true, AmountAtomic: big.NewInt(200_000_000_000_000), AssetID: "AID"},
					{IsIncome: true, AmountAtomic: big.NewInt(5_000_000_000_000), AssetID: ""},
				},
			},
		},
	}
	m := New(rpc)
	obs, err := m.Match(context.Background(), Request{Address: "A", Ticker: "fusd", PaymentId: "pid1", ExpectedAssetID: "AID"}, 202)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "H2", obs[0].Hash)
	assert.Equal(t, "200000000000000", obs[0].AmountAtomic.String())
}

func TestMatch_FallsBackToRecentTxsWhenPaymentsEmpty(t *testing.T) {
	rpc := &fakeRPC{
		transfers: []walletrpc.RecentTransfer{
			{
				PaymentId: "pid1",
				TxHash:    "H3",
				Height:    50,
				Subtransfers: []walletrpc.Subtransfer{
					{IsIncome: true, AmountAtomic: big.NewInt(1000), AssetID: ""},
				},
			},
		},
	}
	m := New(rpc)
	obs, err := m.Match(context.Background(), Request{Address: "A", Ticker: "zano", PaymentId: "pid1"}, 60)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, "H3", obs[0].Hash)
}

func TestMatch_DedupKeepsMaxConfirmations(t *testing.T) {
	rpc := &fakeRPC{
		payments: []walletrpc.Payment{
			{TxHash: "H", AmountAtomic: big.NewInt(10), BlockHeight: 100},
			{TxHash: "H", AmountAtomic: big.NewInt(10), BlockHeight: 90},
		},
	}
	m := New(rpc)
	obs, err := m.Match(context.Background(), Request{Address: "A", Ticker: "zano", PaymentId: "pid1"}, 102)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, int64(13), obs[0].Confirmations)
}

func TestBest_PicksHighestConfirmations(t *testing.T) {
	obs := []DepositObservation{
		{Hash: "a", Confirmations: 1},
		{Hash: "b", Confirmations: 5},
	}
	best, ok := Best(obs)
	require.True(t, ok)
	assert.Equal(t, "b", best.Hash)
}
