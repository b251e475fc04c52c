package ledger

import (
	"context"
	"strconv"
	"time"

	"zanowatcher.com/internal/jobstore"
	"zanowatcher.com/internal/kv"
)

// KVLedger stores one hash per (ticker, hash) at jobstore.LedgerKey,
// merging first-seen/last-seen the way the Job hash merges partial
// writes: only the changed fields are sent, and firstSeenAt is written
// once.
type KVLedger struct {
	store  kv.Store
	prefix string
	ttl    time.Duration
}

func NewKVLedger(store kv.Store, prefix string, ttl time.Duration) *KVLedger {
	return &KVLedger{store: store, prefix: prefix, ttl: ttl}
}

const (
	ledgerFieldAddress       = "address"
	ledgerFieldPaymentId     = "paymentId"
	ledgerFieldAmountAtomic  = "amountAtomic"
	ledgerFieldConfirmations = "confirmations"
	ledgerFieldFirstSeenAt   = "firstSeenAt"
	ledgerFieldLastSeenAt    = "lastSeenAt"
)

func (l *KVLedger) Upsert(ctx context.Context, e Entry) error {
	key := jobstore.LedgerKey(l.prefix, e.Ticker, e.Hash)

	existing, err := l.store.HGetAll(ctx, key)
	if err != nil {
		return err
	}

	fields := map[string]string{
		ledgerFieldAddress:       e.Address,
		ledgerFieldPaymentId:     e.PaymentId,
		ledgerFieldAmountAtomic:  e.AmountAtomic,
		ledgerFieldConfirmations: strconv.FormatInt(e.Confirmations, 10),
		ledgerFieldLastSeenAt:    strconv.FormatInt(e.LastSeenAt.UnixMilli(), 10),
	}
	if _, ok := existing[ledgerFieldFirstSeenAt]; !ok {
		fields[ledgerFieldFirstSeenAt] = strconv.FormatInt(e.FirstSeenAt.UnixMilli(), 10)
	}

	if err := l.store.HSet(ctx, key, fields); err != nil {
		return err
	}
	if l.ttl > 0 {
		return l.store.Expire(ctx, key, l.ttl)
	}
	return nil
}

func (l *KVLedger) Close() error { return nil }
