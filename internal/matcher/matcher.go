// Package matcher implements the Deposit Matcher: given a Job's address,
// ticker and asset context, it asks the Wallet RPC Client for the
// relevant on-chain activity and reduces it to at most one observation
// per transaction hash.
package matcher

import (
	"context"
	"math/big"

	"zanowatcher.com/internal/walletrpc"
)

// DepositObservation is one deduplicated on-chain deposit sighting.
type DepositObservation struct {
	Hash          string
	AmountAtomic  *big.Int
	Confirmations int64
	Address       string
	Ticker        string
}

// Request describes what to look for; ExpectedAssetID empty means
// base-coin mode.
type Request struct {
	Address         string
	Ticker          string
	PaymentId       string
	ExpectedAssetID string
}

type RPC interface {
	GetPayments(ctx context.Context, paymentId string) ([]walletrpc.Payment, error)
	GetRecentTxsAndInfo2(ctx context.Context, p walletrpc.RecentTxsParams) ([]walletrpc.RecentTransfer, error)
}

type Matcher struct {
	rpc RPC
}

func New(rpc RPC) *Matcher {
	return &Matcher{rpc: rpc}
}

// confirmationsFor converts a block height into a confirmation count
// using the wallet's current height, inclusive of the mined block, per
// §4.3. If currentHeight is unknown (<=0) or the height is unknown, it
// falls back to the provided confirmations, if any.
func confirmationsFor(currentHeight, blockHeight int64, provided *int64) int64 {
	if currentHeight > 0 && blockHeight > 0 {
		c := currentHeight - blockHeight + 1
		if c < 0 {
			c = 0
		}
		return c
	}
	if provided != nil {
		return *provided
	}
	return 0
}

// Match runs the §4.4 algorithm: get_payments for base-coin tickers,
// falling back to get_recent_txs_and_info2 when that yields nothing or
// the ticker is a non-base asset, then dedups by hash keeping the
// highest confirmation count.
func (m *Matcher) Match(ctx context.Context, req Request, currentHeight int64) ([]DepositObservation, error) {
	byHash := map[string]DepositObservation{}

	if req.ExpectedAssetID == "" {
		payments, err := m.rpc.GetPayments(ctx, req.PaymentId)
		if err != nil {
			return nil, err
		}
		for _, p := range payments {
			if p.TxHash == "" || p.AmountAtomic == nil {
				continue
			}
			obs := DepositObservation{
				Hash:          p.TxHash,
				AmountAtomic:  p.AmountAtomic,
				Confirmations: confirmationsFor(currentHeight, p.BlockHeight, p.Confirmations),
				Address:       req.Address,
				Ticker:        req.Ticker,
			}
			keepMax(byHash, obs)
		}
	}

	if len(byHash) == 0 {
		transfers, err := m.rpc.GetRecentTxsAndInfo2(ctx, walletrpc.RecentTxsParams{
			Offset:              0,
			Count:               100,
			ExcludeMining:       true,
			ExcludeUnconfirmed:  false,
			Order:               "DESC",
			UpdateProvisionInfo: false,
		})
		if err != nil {
			return nil, err
		}
		for _, tr := range transfers {
			if tr.PaymentId != req.PaymentId {
				continue
			}
			amount := selectSubtransferAmount(tr.Subtransfers, req.ExpectedAssetID)
			if amount == nil {
				continue
			}
			obs := DepositObservation{
				Hash:          tr.TxHash,
				AmountAtomic:  amount,
				Confirmations: confirmationsFor(currentHeight, tr.Height, tr.Confirmations),
				Address:       req.Address,
				Ticker:        req.Ticker,
			}
			keepMax(byHash, obs)
		}
	}

	out := make([]DepositObservation, 0, len(byHash))
	for _, obs := range byHash {
		out = append(out, obs)
	}
	return out, nil
}

// selectSubtransferAmount picks the income leg matching expectedAssetID
// (asset mode) or the income leg with an empty asset_id (base-coin
// fallback), per §4.3.
func selectSubtransferAmount(subs []walletrpc.Subtransfer, expectedAssetID string) *big.Int {
	for _, s := range subs {
		if !s.IsIncome || s.AmountAtomic == nil {
			continue
		}
		if expectedAssetID == "" && s.AssetID == "" {
			return s.AmountAtomic
		}
		if expectedAssetID != "" && s.AssetID == expectedAssetID {
			return s.AmountAtomic
		}
	}
	return nil
}

func keepMax(byHash map[string]DepositObservation, obs DepositObservation) {
	existing, ok := byHash[obs.Hash]
	if !ok || obs.Confirmations > existing.Confirmations {
		byHash[obs.Hash] = obs
	}
}

// Best returns the observation with the highest confirmation count, or
// (zero, false) if observations is empty.
func Best(observations []DepositObservation) (DepositObservation, bool) {
	var best DepositObservation
	found := false
	for _, o := range observations {
		if !found || o.Confirmations > best.Confirmations {
			best = o
			found = true
		}
	}
	return best, found
}
