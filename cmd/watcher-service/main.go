// Command watcher-service runs the deposit watcher: the Scheduler polling
// each ticker's wallet daemon on its own cadence, driving the Job State
// Machine, alongside the Intake HTTP surface that creates Jobs and serves
// their Status.
package main

import (
	"context"
	"log"
	"math/big"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"zanowatcher.com/internal/config"
	"zanowatcher.com/internal/intake"
	"zanowatcher.com/internal/jobstore"
	"zanowatcher.com/internal/kv"
	"zanowatcher.com/internal/ledger"
	"zanowatcher.com/internal/matcher"
	"zanowatcher.com/internal/scheduler"
	"zanowatcher.com/internal/statemachine"
	"zanowatcher.com/internal/walletrpc"
	"zanowatcher.com/internal/webhook"
	"zanowatcher.com/pkg/logger"
	"zanowatcher.com/pkg/metrics"
	"zanowatcher.com/pkg/safe"
	"zanowatcher.com/pkg/xredis"
)

const serviceName = "watcher-service"

// masterLockTTL and masterLockInterval bound how long a crashed watcher can
// hold the single-writer lock (§4.8 tolerates one watcher per key-prefix)
// before a standby instance takes over.
const (
	masterLockTTL      = 15 * time.Second
	masterLockInterval = 5 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfgStore, err := config.Load(serviceName)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := cfgStore.Get()

	logger.InitWithFile(serviceName, cfg.LogLevel, cfg.LogErrorFile)
	defer logger.Sync()
	metrics.MustRegister()

	store := kv.NewRedisStore(&xredis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	repo := jobstore.NewRepo(store,
		cfg.KeyPrefix,
		time.Duration(cfg.TTL.JobSeconds)*time.Second,
		time.Duration(cfg.TTL.StatusSeconds)*time.Second,
		time.Duration(cfg.TTL.SeenSeconds)*time.Second,
	)

	rpc := newRPCRegistry(cfgStore)
	mux := &muxRPC{}

	l, err := ledger.New(cfg.Ledger.Mode, cfg.KeyPrefix, cfg.Ledger.Dir, time.Duration(cfg.Ledger.TTLSeconds)*time.Second, store)
	if err != nil {
		logger.Fatal(ctx, "init ledger", zap.Error(err))
	}
	defer l.Close()

	m := matcher.New(mux)
	dispatcher := webhook.New()
	transfer := func(ctx context.Context, p walletrpc.TransferParams) (*walletrpc.TransferResult, error) {
		if mux.active == nil {
			return nil, &walletrpc.RpcError{Method: "transfer", Message: "no wallet rpc client active for ticker"}
		}
		return mux.active.Transfer(ctx, p)
	}
	machine := statemachine.New(repo, m, l, dispatcher, transfer)

	sched := scheduler.New(cfgStore, repo, machine, walletInfoFuncs(rpc), policyResolver(rpc, mux))
	runMasterElection(ctx, cfg, sched)

	rpcForIntake := func(ticker string) (*walletrpc.Client, bool) { return rpc.clientFor(ticker) }
	handler := intake.NewHandler(cfgStore, repo, rpcForIntake)
	httpSrv := intake.NewRouter(ctx, cfgStore, handler)

	go func() {
		logger.Info(ctx, "intake listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !isServerClosed(err) {
			logger.Error(ctx, "intake server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info(ctx, "shutting down")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "intake shutdown error", zap.Error(err))
	}
	logger.Info(ctx, "watcher-service exit")
}

func isServerClosed(err error) bool {
	return err.Error() == "http: Server closed"
}

// runMasterElection enforces the §4.8 single-watcher-per-key-prefix
// invariant with a Redis lock instead of leaving it to operator discipline:
// the Scheduler only ticks while this process holds lockKey, and
// yields it back within masterLockTTL if it crashes or is partitioned from
// Redis.
func runMasterElection(ctx context.Context, cfg *config.Config, sched *scheduler.Scheduler) {
	rdb := xredis.NewRedis(&xredis.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	lock := xredis.NewRedisLockMaster(rdb)
	lockKey := cfg.KeyPrefix + ":watcher:master"

	safe.GoCtx(ctx, func(ctx context.Context) {
		held := false
		ticker := time.NewTicker(masterLockInterval)
		defer ticker.Stop()
		for {
			acquired := lock.TryAcquireMaster(ctx, lockKey, masterLockTTL)
			if acquired && !held {
				logger.Info(ctx, "acquired watcher master lock", zap.String("key", lockKey))
				sched.Start(ctx)
			} else if !acquired && held {
				logger.Warn(ctx, "lost watcher master lock, pausing scheduler", zap.String("key", lockKey))
				sched.Stop()
			}
			held = acquired

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	})
}

// rpcRegistry builds, up front, one walletrpc.Client per distinct RPC URL, so
// tickers sharing a daemon share a client and its circuit breakers.
type rpcRegistry struct {
	byTicker map[string]*walletrpc.Client
}

func newRPCRegistry(cfgStore *config.Store) *rpcRegistry {
	c := cfgStore.Get()
	byURL := map[string]*walletrpc.Client{}
	reg := &rpcRegistry{byTicker: map[string]*walletrpc.Client{}}
	for _, ticker := range c.Tickers {
		url := c.WalletRPCURLFor(ticker)
		if url == "" {
			continue
		}
		client, ok := byURL[url]
		if !ok {
			client = walletrpc.New(url, c.WalletRPC.User, c.WalletRPC.Password, c.WalletRPCTimeout())
			byURL[url] = client
		}
		reg.byTicker[ticker] = client
	}
	return reg
}

func (r *rpcRegistry) clientFor(ticker string) (*walletrpc.Client, bool) {
	c, ok := r.byTicker[ticker]
	return c, ok
}

func walletInfoFuncs(reg *rpcRegistry) map[string]scheduler.WalletInfoFunc {
	out := map[string]scheduler.WalletInfoFunc{}
	for ticker, client := range reg.byTicker {
		client := client
		out[ticker] = func(ctx context.Context) (*walletrpc.WalletInfo, error) {
			return client.GetWalletInfo(ctx)
		}
	}
	return out
}

// muxRPC implements matcher.RPC by forwarding to whichever wallet client is
// currently active. The Scheduler is single-threaded (§4.8: one ticker
// scanned to completion before the next begins), so a plain field swapped
// by policyResolver ahead of each ticker's scan is race-free without a
// lock.
type muxRPC struct {
	active *walletrpc.Client
}

func (m *muxRPC) GetPayments(ctx context.Context, paymentId string) ([]walletrpc.Payment, error) {
	if m.active == nil {
		return nil, &walletrpc.RpcError{Method: "get_payments", Message: "no wallet rpc client active for ticker"}
	}
	return m.active.GetPayments(ctx, paymentId)
}

func (m *muxRPC) GetRecentTxsAndInfo2(ctx context.Context, p walletrpc.RecentTxsParams) ([]walletrpc.RecentTransfer, error) {
	if m.active == nil {
		return nil, &walletrpc.RpcError{Method: "get_recent_txs_and_info2", Message: "no wallet rpc client active for ticker"}
	}
	return m.active.GetRecentTxsAndInfo2(ctx, p)
}

// policyResolver builds the per-ticker TickerPolicy the state machine
// needs, and, as a side effect, points mux at that ticker's wallet client
// before the Scheduler scans its Jobs.
func policyResolver(reg *rpcRegistry, mux *muxRPC) scheduler.PolicyResolver {
	return func(cfg *config.Config, ticker string) (statemachine.TickerPolicy, bool) {
		tc, ok := cfg.Ticker(ticker)
		if !ok || !tc.Enabled {
			return statemachine.TickerPolicy{}, false
		}
		client, ok := reg.clientFor(ticker)
		if !ok {
			return statemachine.TickerPolicy{}, false
		}
		mux.active = client

		return statemachine.TickerPolicy{
			Ticker:           ticker,
			ExpectedAssetID:  tc.AssetID,
			Decimals:         tc.Decimals,
			WebhookURL:       cfg.WebhookURLFor(ticker),
			WebhookSecret:    cfg.Webhook.Secret,
			WebhookTimeout:   cfg.WebhookTimeout(),
			MaxAttempts:      cfg.Webhook.MaxAttempts,
			MaxRetryWindowMs: cfg.Webhook.MaxRetryWindowMs,
			Backoff: webhook.BackoffConfig{
				BaseMs: cfg.Webhook.BackoffBaseMs,
				Factor: cfg.Webhook.BackoffFactor,
				MaxMs:  cfg.Webhook.BackoffMaxMs,
				Jitter: cfg.Webhook.BackoffJitter,
			},
			Consolidation: consolidationPolicy(tc.Consolidation),
		}, true
	}
}

func consolidationPolicy(cc config.ConsolidationConfig) statemachine.ConsolidationPolicy {
	var fee *big.Int
	if cc.FeeAtomic != "" {
		if f, ok := new(big.Int).SetString(cc.FeeAtomic, 10); ok {
			fee = f
		}
	}
	return statemachine.ConsolidationPolicy{
		Enabled:          cc.Enabled,
		Address:          cc.Address,
		FeeAtomic:        fee,
		MinConfirmations: cc.MinConfirmations,
		Mixin:            cc.Mixin,
		Priority:         cc.Priority,
	}
}
