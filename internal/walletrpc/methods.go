package walletrpc

import (
	"context"
	"math/big"
)

// WalletInfo is the get_wallet_info result used once per polling cycle to
// convert a block height into a confirmation count.
type WalletInfo struct {
	CurrentHeight   int64
	DaemonHeight    int64
	IsSynchronized  bool
}

func (c *Client) GetWalletInfo(ctx context.Context) (*WalletInfo, error) {
	raw, err := c.call(ctx, "get_wallet_info", struct{}{})
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := decodeGeneric(raw, &m); err != nil {
		return nil, &RpcError{Method: "get_wallet_info", Message: "malformed result: " + err.Error()}
	}
	info := &WalletInfo{
		IsSynchronized: getBool(m, "is_synchronized"),
	}
	if h := getInt64Ptr(m, "current_height"); h != nil {
		info.CurrentHeight = *h
	}
	if h := getInt64Ptr(m, "daemon_height"); h != nil {
		info.DaemonHeight = *h
	}
	return info, nil
}

// Payment is one get_payments entry, used only in base-coin mode.
type Payment struct {
	TxHash        string
	AmountAtomic  *big.Int
	BlockHeight   int64
	Confirmations *int64 // present only when the daemon supplies it directly
}

func (c *Client) GetPayments(ctx context.Context, paymentId string) ([]Payment, error) {
	raw, err := c.call(ctx, "get_payments", map[string]interface{}{"payment_id": paymentId})
	if err != nil {
		return nil, err
	}
	entries := toArray(raw,
		[]string{"deposits", "transactions", "items", "payments"},
		[]string{"deposits", "transactions", "entries", "in", "transfers", "payments"},
	)

	out := make([]Payment, 0, len(entries))
	for _, e := range entries {
		p := Payment{
			TxHash:        getString(e, hashAliases...),
			AmountAtomic:  getBigInt(e, amountAliases...),
			Confirmations: getInt64Ptr(e, confirmationsAliases...),
		}
		if h := getInt64Ptr(e, "block_height", "height"); h != nil {
			p.BlockHeight = *h
		}
		if p.TxHash == "" {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Subtransfer is one leg of a get_recent_txs_and_info2 transfer.
type Subtransfer struct {
	IsIncome     bool
	AmountAtomic *big.Int
	AssetID      string
}

// RecentTransfer is one get_recent_txs_and_info2 entry, used in asset
// mode (and as the base-coin fallback when get_payments is empty).
type RecentTransfer struct {
	PaymentId     string
	TxHash        string
	Height        int64
	Confirmations *int64
	Subtransfers  []Subtransfer
}

type RecentTxsParams struct {
	Offset               int64
	Count                int64
	ExcludeMining        bool
	ExcludeUnconfirmed   bool
	Order                string
	UpdateProvisionInfo  bool
}

func (c *Client) GetRecentTxsAndInfo2(ctx context.Context, p RecentTxsParams) ([]RecentTransfer, error) {
	raw, err := c.call(ctx, "get_recent_txs_and_info2", map[string]interface{}{
		"offset":                 p.Offset,
		"count":                  p.Count,
		"exclude_mining":         p.ExcludeMining,
		"exclude_unconfirmed":    p.ExcludeUnconfirmed,
		"order":                  p.Order,
		"update_provision_info":  p.UpdateProvisionInfo,
	})
	if err != nil {
		return nil, err
	}
	entries := toArray(raw,
		[]string{"transfers"},
		[]string{"transfers", "entries", "in"},
	)

	out := make([]RecentTransfer, 0, len(entries))
	for _, e := range entries {
		t := RecentTransfer{
			PaymentId:     getString(e, "payment_id", "paymentId"),
			TxHash:        getString(e, hashAliases...),
			Confirmations: getInt64Ptr(e, confirmationsAliases...),
		}
		if h := getInt64Ptr(e, "height", "block_height"); h != nil {
			t.Height = *h
		}
		if subsRaw, ok := e["subtransfers"].([]interface{}); ok {
			for _, sr := range subsRaw {
				sm, ok := sr.(map[string]interface{})
				if !ok {
					continue
				}
				t.Subtransfers = append(t.Subtransfers, Subtransfer{
					IsIncome:     getBool(sm, "is_income"),
					AmountAtomic: getBigInt(sm, amountAliases...),
					AssetID:      getString(sm, "asset_id", "assetId"),
				})
			}
		}
		out = append(out, t)
	}
	return out, nil
}

type TransferDestination struct {
	Address string
	Amount  *big.Int
}

type TransferParams struct {
	Destinations []TransferDestination
	Fee          *big.Int
	Mixin        int
	UnlockTime   int64
	DoNotRelay   bool
	Priority     int
}

type TransferResult struct {
	TxHash string
}

func (c *Client) Transfer(ctx context.Context, p TransferParams) (*TransferResult, error) {
	dests := make([]map[string]interface{}, 0, len(p.Destinations))
	for _, d := range p.Destinations {
		dests = append(dests, map[string]interface{}{
			"address": d.Address,
			"amount":  d.Amount.String(),
		})
	}
	raw, err := c.call(ctx, "transfer", map[string]interface{}{
		"destinations": dests,
		"fee":          p.Fee.String(),
		"mixin":        p.Mixin,
		"unlock_time":  p.UnlockTime,
		"do_not_relay": p.DoNotRelay,
		"priority":     p.Priority,
	})
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := decodeGeneric(raw, &m); err != nil {
		return nil, &RpcError{Method: "transfer", Message: "malformed result: " + err.Error()}
	}
	return &TransferResult{TxHash: getString(m, hashAliases...)}, nil
}

type IntegratedAddress struct {
	Address   string
	PaymentId string
}

func (c *Client) MakeIntegratedAddress(ctx context.Context, paymentId string) (*IntegratedAddress, error) {
	raw, err := c.call(ctx, "make_integrated_address", map[string]interface{}{"payment_id": paymentId})
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := decodeGeneric(raw, &m); err != nil {
		return nil, &RpcError{Method: "make_integrated_address", Message: "malformed result: " + err.Error()}
	}
	return &IntegratedAddress{
		Address:   getString(m, "integrated_address", "address"),
		PaymentId: getString(m, "payment_id", "paymentId"),
	}, nil
}
