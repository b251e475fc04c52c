package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"zanowatcher.com/pkg/wal"
)

// diskRecord is the JSON payload appended to a ticker's WAL file. Unlike
// KVLedger, disk mode keeps every observation as its own record rather
// than merging in place: the WAL primitive is append-only by design, so
// disk mode reads as a full audit history instead of a point-in-time
// snapshot.
type diskRecord struct {
	Entry
}

// DiskLedger backs depositLedgerMode=disk, one checksummed append-only
// log file per ticker under dir, adapted from the teacher's generic
// pkg/wal writer.
type DiskLedger struct {
	dir string

	mu      sync.Mutex
	writers map[string]*wal.Writer
}

func NewDiskLedger(dir string) *DiskLedger {
	return &DiskLedger{dir: dir, writers: map[string]*wal.Writer{}}
}

func (l *DiskLedger) writerFor(ticker string) (*wal.Writer, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w, ok := l.writers[ticker]; ok {
		return w, nil
	}
	path := filepath.Join(l.dir, ticker+".wal")
	w, err := wal.OpenWrite(path, 0)
	if err != nil {
		return nil, fmt.Errorf("ledger: open wal for %s: %w", ticker, err)
	}
	l.writers[ticker] = w
	return w, nil
}

func (l *DiskLedger) Upsert(_ context.Context, e Entry) error {
	w, err := l.writerFor(e.Ticker)
	if err != nil {
		return err
	}

	body, err := json.Marshal(diskRecord{Entry: e})
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := w.Append(body); err != nil {
		return err
	}
	return w.Flush()
}

func (l *DiskLedger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for _, w := range l.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Replay reconstructs a ticker's full observation history, used by
// operator tooling rather than the hot path.
func Replay(dir, ticker string) ([]Entry, error) {
	path := filepath.Join(dir, ticker+".wal")
	var entries []Entry
	_, err := wal.Replay(path, wal.ReplayOptions{AllowTruncatedTail: true}, func(payload []byte) error {
		var rec diskRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return err
		}
		entries = append(entries, rec.Entry)
		return nil
	})
	return entries, err
}

// ReplayFrom streams a ticker's WAL forward from a prior byte offset,
// returning the new entries and the offset to resume from next time. It
// backs an incremental ledger export/audit tool the same way the
// teacher's outbox publisher streams a WAL from its last acknowledged
// offset instead of reloading the whole file on every poll.
func ReplayFrom(dir, ticker string, offset int64) ([]Entry, int64, error) {
	path := filepath.Join(dir, ticker+".wal")
	r, err := wal.OpenReader(path, offset, wal.ReaderOptions{AllowTruncatedTail: true})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, offset, nil
		}
		return nil, offset, err
	}
	defer r.Close()

	var entries []Entry
	for {
		payload, next, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return entries, next, nil
			}
			return entries, r.LastGoodOffset(), err
		}
		var rec diskRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			return entries, r.LastGoodOffset(), err
		}
		entries = append(entries, rec.Entry)
	}
}
