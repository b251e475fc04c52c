// Package scheduler implements the Scheduler / Watcher Loop: a
// single-threaded, cooperative round-robin over enabled tickers, per
// §4.8, driving the Job State Machine over every Job key found by a
// cursored KV scan.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"zanowatcher.com/internal/config"
	"zanowatcher.com/internal/jobstore"
	"zanowatcher.com/internal/statemachine"
	"zanowatcher.com/internal/walletrpc"
	"zanowatcher.com/pkg/logger"
	"zanowatcher.com/pkg/metrics"
	"zanowatcher.com/pkg/safe"
)

// WalletInfoFunc fetches the current chain height once per tick, per
// ticker (different tickers may share one wallet daemon or not).
type WalletInfoFunc func(ctx context.Context) (*walletrpc.WalletInfo, error)

// PolicyResolver turns the live Config into the TickerPolicy the state
// machine needs for one ticker, so the Scheduler never reaches into
// Config's per-ticker maps directly.
type PolicyResolver func(cfg *config.Config, ticker string) (statemachine.TickerPolicy, bool)

type Scheduler struct {
	cfg          *config.Store
	repo         *jobstore.Repo
	machine      *statemachine.Machine
	walletInfo   map[string]WalletInfoFunc // per-ticker; falls back to "" entry as shared default
	resolvePolicy PolicyResolver

	mu       sync.Mutex
	backoff  map[string]time.Time // ticker -> deadline
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func New(cfg *config.Store, repo *jobstore.Repo, machine *statemachine.Machine, walletInfo map[string]WalletInfoFunc, resolvePolicy PolicyResolver) *Scheduler {
	return &Scheduler{
		cfg:           cfg,
		repo:          repo,
		machine:       machine,
		walletInfo:    walletInfo,
		resolvePolicy: resolvePolicy,
		backoff:       map[string]time.Time{},
		stopCh:        make(chan struct{}),
		doneCh:        make(chan struct{}),
	}
}

// Start launches the tick loop in a panic-safe background goroutine. It is
// safe to call again after a prior Stop(): each transition from stopped to
// running allocates a fresh stopCh/doneCh pair, since Stop() closes and
// drains the previous ones and a closed channel can't be reused.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	doneCh := s.doneCh
	s.mu.Unlock()

	safe.GoCtx(ctx, func(ctx context.Context) {
		defer close(doneCh)
		s.loop(ctx)
	})
}

// Stop flips running=false; the in-flight Job completes before the loop
// exits, per §4.8/§5.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()
	close(stopCh)
	<-doneCh
}

func (s *Scheduler) isRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) loop(ctx context.Context) {
	for s.isRunning() {
		start := time.Now()
		cfg := s.cfg.Get()

		for _, ticker := range cfg.Tickers {
			if !s.isRunning() {
				break
			}
			s.tick(ctx, cfg, ticker)
		}

		elapsed := time.Since(start)
		sleepFor := time.Duration(cfg.IntervalMs)*time.Millisecond - elapsed
		if sleepFor < time.Second {
			sleepFor = time.Second
		}

		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-time.After(sleepFor):
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, cfg *config.Config, ticker string) {
	if deadline, ok := s.backoffDeadline(ticker); ok && time.Now().Before(deadline) {
		return
	}

	tc, enabled := cfg.Ticker(ticker)
	if !enabled || !tc.Enabled {
		return
	}
	policy, ok := s.resolvePolicy(cfg, ticker)
	if !ok {
		return
	}

	s.mu.Lock()
	stopCh := s.stopCh
	s.mu.Unlock()

	currentHeight := int64(0)
	if fn := s.walletInfoFor(ticker); fn != nil {
		info, err := fn(ctx)
		if err != nil {
			s.handleTickerError(ctx, cfg, ticker, err)
			return
		}
		currentHeight = info.CurrentHeight
	}

	cursor := "0"
	for {
		next, keys, err := s.repo.ScanJobs(ctx, ticker, cfg.ScanCount, cursor)
		if err != nil {
			s.handleTickerError(ctx, cfg, ticker, err)
			return
		}

		for _, key := range keys {
			select {
			case <-stopCh:
				return
			default:
			}
			paymentId := jobstore.PaymentIDFromJobKey(cfg.KeyPrefix, ticker, key)
			if paymentId == "" {
				continue
			}
			metrics.JobsScannedTotal.WithLabelValues(ticker).Inc()
			if err := s.machine.Process(ctx, ticker, paymentId, policy, currentHeight); err != nil {
				var rpcErr *walletrpc.RpcError
				if errors.As(err, &rpcErr) {
					s.handleTickerError(ctx, cfg, ticker, err)
					return
				}
				logger.Warn(ctx, "job processing error", zap.String("ticker", ticker), zap.String("paymentId", paymentId), zap.Error(err))
			}
		}

		cursor = next
		if cursor == "0" {
			break
		}
	}
}

func (s *Scheduler) walletInfoFor(ticker string) WalletInfoFunc {
	if fn, ok := s.walletInfo[ticker]; ok {
		return fn
	}
	return s.walletInfo[""]
}

func (s *Scheduler) handleTickerError(ctx context.Context, cfg *config.Config, ticker string, err error) {
	logger.Warn(ctx, "ticker rpc error, backing off", zap.String("ticker", ticker), zap.Error(err))
	deadline := time.Now().Add(time.Duration(cfg.ErrorBackoffMs) * time.Millisecond)
	s.mu.Lock()
	s.backoff[ticker] = deadline
	s.mu.Unlock()
	metrics.TickerBackoffState.WithLabelValues(ticker).Set(1)
}

func (s *Scheduler) backoffDeadline(ticker string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deadline, ok := s.backoff[ticker]
	if ok && time.Now().After(deadline) {
		delete(s.backoff, ticker)
		metrics.TickerBackoffState.WithLabelValues(ticker).Set(0)
		return time.Time{}, false
	}
	return deadline, ok
}
