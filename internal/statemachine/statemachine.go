// Package statemachine implements the Job State Machine: the single
// writer to a Job, running the fifteen-step transition contract from
// §4.7 once per Job per scheduling pass.
package statemachine

import (
	"context"
	"errors"
	"math/big"
	"time"

	"go.uber.org/zap"
	"zanowatcher.com/internal/jobstore"
	"zanowatcher.com/internal/ledger"
	"zanowatcher.com/internal/matcher"
	"zanowatcher.com/internal/policy"
	"zanowatcher.com/internal/walletrpc"
	"zanowatcher.com/internal/webhook"
	"zanowatcher.com/pkg/logger"
	"zanowatcher.com/pkg/metrics"
)

// TransferFunc is the consolidation collaborator: a single-shot sweep
// call, satisfied by *walletrpc.Client.Transfer in production.
type TransferFunc func(ctx context.Context, p walletrpc.TransferParams) (*walletrpc.TransferResult, error)

// ConsolidationPolicy is the resolved per-ticker sweep configuration.
type ConsolidationPolicy struct {
	Enabled          bool
	Address          string
	FeeAtomic        *big.Int
	MinConfirmations int
	Mixin            int
	Priority         int
}

// TickerPolicy bundles everything the state machine needs to process one
// ticker's Jobs, resolved once per tick by the caller from Config.
type TickerPolicy struct {
	Ticker          string
	ExpectedAssetID string
	Decimals        int32

	WebhookURL       string
	WebhookSecret    string
	WebhookTimeout   time.Duration
	Backoff          webhook.BackoffConfig
	MaxAttempts      int
	MaxRetryWindowMs int64

	Consolidation ConsolidationPolicy
}

type Machine struct {
	repo       *jobstore.Repo
	matcher    *matcher.Matcher
	ledger     ledger.Ledger
	dispatcher *webhook.Dispatcher
	transfer   TransferFunc
	now        func() time.Time
}

func New(repo *jobstore.Repo, m *matcher.Matcher, l ledger.Ledger, d *webhook.Dispatcher, transfer TransferFunc) *Machine {
	return &Machine{repo: repo, matcher: m, ledger: l, dispatcher: d, transfer: transfer, now: time.Now}
}

const maxWebhookErrorLen = 500

// Process runs one pass of the transition contract for the Job at
// (ticker, paymentId). A returned *walletrpc.RpcError signals the caller
// (the Scheduler) to back off the whole ticker; any other error is
// logged by the caller and does not affect sibling Jobs.
func (m *Machine) Process(ctx context.Context, ticker, paymentId string, policy_ TickerPolicy, currentHeight int64) error {
	// Step 1: load, validate.
	job, ok, err := m.repo.LoadJob(ctx, ticker, paymentId)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if job.Address == "" || (job.PaymentId == "" && paymentId == "") {
		logger.Warn(ctx, "deleting malformed job", zap.String("ticker", ticker), zap.String("paymentId", paymentId))
		return m.repo.DeleteJob(ctx, ticker, paymentId)
	}

	// Step 2/3: backfill paymentId from Status if the Job predates it.
	if job.PaymentId == "" {
		status, found, serr := m.repo.LoadStatus(ctx, ticker, paymentId)
		if serr != nil {
			return serr
		}
		if found && status.PaymentId != "" {
			job.PaymentId = status.PaymentId
			if err := m.repo.PatchJob(ctx, ticker, paymentId, jobstore.Patch{jobstore.FieldPaymentId: job.PaymentId}); err != nil {
				return err
			}
		}
		if job.PaymentId == "" {
			return nil // still absent: skip RPC, retry next pass
		}
	}

	// Step 4: match on-chain activity, upsert the ledger for the best
	// observation.
	observations, merr := m.matcher.Match(ctx, matcher.Request{
		Address:         job.Address,
		Ticker:          ticker,
		PaymentId:       job.PaymentId,
		ExpectedAssetID: policy_.ExpectedAssetID,
	}, currentHeight)
	if merr != nil {
		var rpcErr *walletrpc.RpcError
		if errors.As(merr, &rpcErr) {
			return merr
		}
		logger.Warn(ctx, "matcher error", zap.String("ticker", ticker), zap.String("paymentId", paymentId), zap.Error(merr))
		return nil
	}

	best, found := matcher.Best(observations)
	if found {
		now := m.now()
		if err := m.ledger.Upsert(ctx, ledger.Entry{
			Ticker:        ticker,
			Hash:          best.Hash,
			Address:       job.Address,
			PaymentId:     job.PaymentId,
			AmountAtomic:  best.AmountAtomic.String(),
			Confirmations: best.Confirmations,
			FirstSeenAt:   now,
			LastSeenAt:    now,
		}); err != nil {
			logger.Warn(ctx, "ledger upsert failed", zap.Error(err))
		}
	}

	// Step 5: nothing observed yet.
	if !found {
		return nil
	}

	// Step 6: apply the dynamic confirmation policy exactly once.
	statusBefore, _, serr := m.repo.LoadStatus(ctx, ticker, paymentId)
	if serr != nil {
		return serr
	}
	if !job.DynamicMinConfApplied && (statusBefore == nil || statusBefore.Status != jobstore.StatusCompleted) {
		newMinConf := policy.DynamicMinConf(best.AmountAtomic, policy_.Decimals)
		if newMinConf != job.MinConf {
			job.MinConf = newMinConf
		}
		job.DynamicMinConfApplied = true
		if err := m.repo.PatchJob(ctx, ticker, paymentId, jobstore.Patch{
			jobstore.FieldMinConf:        job.MinConf,
			jobstore.FieldDynMinConfAppl: true,
		}); err != nil {
			return err
		}
	}

	// Step 7: is the best observation past threshold?
	if best.Confirmations < int64(job.MinConf) {
		return m.refreshConfirming(ctx, job, best.Hash, best.Confirmations)
	}

	// Step 8: idempotency guard against a restart racing the dedup write.
	seen, err := m.repo.IsSeen(ctx, best.Hash)
	if err != nil {
		return err
	}
	if seen {
		return m.repo.DeleteJob(ctx, ticker, paymentId)
	}

	// Step 9: build the canonical payload, running consolidation first if
	// due.
	feeAtomic := (*big.Int)(nil)
	consolidationTxId := job.ConsolidationTxId
	consolidationErr := job.ConsolidationError
	consolidationJustAttempted := false

	if policy_.Consolidation.Enabled && !job.ConsolidationAttempted {
		if int(best.Confirmations) >= policy_.Consolidation.MinConfirmations {
			consolidationJustAttempted = true
			res, terr := m.transfer(ctx, walletrpc.TransferParams{
				Destinations: []walletrpc.TransferDestination{{Address: policy_.Consolidation.Address, Amount: best.AmountAtomic}},
				Fee:          policy_.Consolidation.FeeAtomic,
				Mixin:        policy_.Consolidation.Mixin,
				Priority:     policy_.Consolidation.Priority,
			})
			if terr != nil {
				consolidationErr = truncate(terr.Error(), maxWebhookErrorLen)
			} else {
				consolidationTxId = res.TxHash
				feeAtomic = policy_.Consolidation.FeeAtomic
			}
		}
	}
	if consolidationJustAttempted {
		if err := m.repo.PatchJob(ctx, ticker, paymentId, jobstore.Patch{
			jobstore.FieldConsolAttempted: true,
			jobstore.FieldConsolTxId:      consolidationTxId,
			jobstore.FieldConsolError:     consolidationErr,
		}); err != nil {
			return err
		}
		job.ConsolidationAttempted = true
		job.ConsolidationTxId = consolidationTxId
		job.ConsolidationError = consolidationErr
	}

	payload, status := m.buildPayloadAndStatus(job, best, policy_, feeAtomic)

	// Step 10: previously completed, just pending cleanup.
	if job.WebhookSent {
		if err := m.repo.MarkSeen(ctx, best.Hash); err != nil {
			return err
		}
		return m.repo.DeleteJob(ctx, ticker, paymentId)
	}

	// Step 11: retry budgets.
	now := m.now()
	if !job.WebhookFirstAttemptAt.IsZero() && policy_.MaxRetryWindowMs > 0 {
		if now.Sub(job.WebhookFirstAttemptAt) > time.Duration(policy_.MaxRetryWindowMs)*time.Millisecond {
			metrics.WebhooksDispatchedTotal.WithLabelValues(ticker, "failed").Inc()
			status.Status = jobstore.StatusFailed
			status.WebhookError = truncate(job.WebhookLastError, maxWebhookErrorLen)
			status.UpdatedAt = now
			if err := m.repo.SaveStatus(ctx, status); err != nil {
				return err
			}
			if err := m.repo.MarkSeen(ctx, best.Hash); err != nil {
				return err
			}
			return m.repo.DeleteJob(ctx, ticker, paymentId)
		}
	}
	if policy_.MaxAttempts > 0 && job.WebhookAttempts >= policy_.MaxAttempts {
		return nil // held in CONFIRMING for manual intervention
	}

	// Step 12: still inside the backoff window from a prior failure.
	if !job.WebhookNextAttemptAt.IsZero() && job.WebhookNextAttemptAt.After(now) {
		return nil
	}

	// Step 13: refresh CONFIRMING before the attempt so pollers see
	// current confirmations.
	status.Status = jobstore.StatusConfirming
	status.UpdatedAt = now
	if err := m.repo.SaveStatus(ctx, status); err != nil {
		return err
	}

	// Step 14/15: dispatch.
	webhookURL := policy_.WebhookURL
	result := m.dispatcher.Dispatch(ctx, payload, webhookURL, policy_.WebhookSecret, policy_.WebhookTimeout)
	if result.Ok {
		metrics.WebhooksDispatchedTotal.WithLabelValues(ticker, "success").Inc()
		status.Status = jobstore.StatusCompleted
		status.UpdatedAt = m.now()
		if err := m.repo.SaveStatus(ctx, status); err != nil {
			return err
		}
		if err := m.repo.PatchJob(ctx, ticker, paymentId, jobstore.Patch{
			jobstore.FieldWebhookSent:    true,
			jobstore.FieldWebhookNextAt:  time.Time{},
			jobstore.FieldWebhookLastErr: "",
		}); err != nil {
			return err
		}
		if err := m.repo.MarkSeen(ctx, best.Hash); err != nil {
			return err
		}
		return m.repo.DeleteJob(ctx, ticker, paymentId)
	}

	metrics.WebhooksDispatchedTotal.WithLabelValues(ticker, "retry").Inc()
	attempts := job.WebhookAttempts + 1
	nextAttemptAt := now.Add(webhook.Delay(policy_.Backoff, attempts))
	lastErr := truncate(result.Error, maxWebhookErrorLen)
	patch := jobstore.Patch{
		jobstore.FieldWebhookAttempts: attempts,
		jobstore.FieldWebhookLastAt:   now,
		jobstore.FieldWebhookNextAt:   nextAttemptAt,
		jobstore.FieldWebhookLastErr:  lastErr,
	}
	if job.WebhookFirstAttemptAt.IsZero() {
		patch[jobstore.FieldWebhookFirstAt] = now
	}
	if err := m.repo.PatchJob(ctx, ticker, paymentId, patch); err != nil {
		return err
	}

	status.Status = jobstore.StatusConfirming
	status.WebhookError = lastErr
	status.UpdatedAt = now
	return m.repo.SaveStatus(ctx, status)
}

func (m *Machine) refreshConfirming(ctx context.Context, job *jobstore.Job, hash string, confirmations int64) error {
	status, _, err := m.repo.LoadStatus(ctx, job.Ticker, job.PaymentId)
	if err != nil {
		return err
	}
	if status == nil {
		status = &jobstore.Status{Ticker: job.Ticker, PaymentId: job.PaymentId, Address: job.Address, ClientReference: job.ClientReference, CreatedAt: job.CreatedAt}
	}
	status.Status = jobstore.StatusConfirming
	status.Hash = hash
	status.Confirmations = int(confirmations)
	status.RequiredConfirmations = job.MinConf
	status.UpdatedAt = m.now()
	return m.repo.SaveStatus(ctx, status)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
