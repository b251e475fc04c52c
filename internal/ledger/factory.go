package ledger

import (
	"fmt"
	"time"

	"zanowatcher.com/internal/kv"
)

// New builds the Ledger implementation selected by depositLedgerMode.
func New(mode, prefix, dir string, ttl time.Duration, store kv.Store) (Ledger, error) {
	switch mode {
	case "", ModeOff:
		return NoopLedger{}, nil
	case ModeKV:
		return NewKVLedger(store, prefix, ttl), nil
	case ModeDisk:
		if dir == "" {
			return nil, fmt.Errorf("ledger: disk mode requires depositLedgerDir")
		}
		return NewDiskLedger(dir), nil
	default:
		return nil, fmt.Errorf("ledger: unknown mode %q", mode)
	}
}
