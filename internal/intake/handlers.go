// Package intake implements the Intake Surface: the create/status/callback
// HTTP handlers that write the initial Job/Status and validate incoming
// webhook callbacks, per §4.9/§6.
package intake

import (
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"zanowatcher.com/internal/amount"
	"zanowatcher.com/internal/config"
	"zanowatcher.com/internal/jobstore"
	"zanowatcher.com/internal/walletrpc"
	"zanowatcher.com/pkg/common"
	"zanowatcher.com/pkg/logger"
	"zanowatcher.com/pkg/xerr"
)

// APIKeyHeader and CallbackSecretHeader are the shared-secret headers
// gating the create and callback routes respectively; the webhook's own
// outbound secret header is defined separately in internal/webhook, since
// it authenticates the opposite direction of the same conversation.
const (
	APIKeyHeader         = "X-Api-Key"
	CallbackSecretHeader = "X-Callback-Secret"
)

// RPCResolver returns the wallet RPC client to use for ticker, or false if
// none is configured.
type RPCResolver func(ticker string) (*walletrpc.Client, bool)

type Handler struct {
	cfg       *config.Store
	repo      *jobstore.Repo
	rpcFor    RPCResolver
	cache     *statusCache
	startedAt time.Time
	now       func() time.Time
}

func NewHandler(cfg *config.Store, repo *jobstore.Repo, rpcFor RPCResolver) *Handler {
	c := cfg.Get()
	cacheTTL := time.Duration(c.Intake.StatusCacheMs) * time.Millisecond
	return &Handler{
		cfg:       cfg,
		repo:      repo,
		rpcFor:    rpcFor,
		cache:     newStatusCache(cacheTTL),
		startedAt: time.Now(),
		now:       time.Now,
	}
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Uptime: time.Since(h.startedAt).Seconds()})
}

// Create handles POST /api/transaction/create.
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailLogged(c, http.StatusBadRequest, xerr.RequestParamsError, "malformed request body", err)
		return
	}
	if req.ClientReference == "" {
		common.Fail(c, http.StatusBadRequest, xerr.RequestParamsError, "client_reference is required")
		return
	}

	cfg := h.cfg.Get()
	tc, ok := cfg.Ticker(req.Ticker)
	if !ok || !tc.Enabled {
		common.Fail(c, http.StatusBadRequest, xerr.RequestParamsError, "ticker not enabled")
		return
	}

	ctx := c.Request.Context()
	var address, paymentId string

	switch {
	case req.PaymentId != "":
		paymentId = req.PaymentId
		address = tc.WatchAddress
		if address == "" {
			common.Fail(c, http.StatusBadRequest, xerr.RequestParamsError, "ticker has no watch address configured")
			return
		}
	case tc.AssetID != "":
		common.Fail(c, http.StatusBadRequest, xerr.RequestParamsError, "payment_id is required for an asset-mode ticker")
		return
	default:
		client, ok := h.rpcFor(req.Ticker)
		if !ok {
			common.Fail(c, http.StatusServiceUnavailable, xerr.NotConfigured, "wallet rpc not configured for ticker")
			return
		}
		ia, err := client.MakeIntegratedAddress(ctx, "")
		if err != nil {
			var rpcErr *walletrpc.RpcError
			if errors.As(err, &rpcErr) {
				common.FailLogged(c, http.StatusBadGateway, xerr.ServerCommonError, "wallet rpc unavailable", err)
				return
			}
			common.FailLogged(c, http.StatusInternalServerError, xerr.ServerCommonError, "failed to allocate address", err)
			return
		}
		address = ia.Address
		paymentId = ia.PaymentId
	}

	ttl := h.repo.JobTTL()
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}
	minConf := tc.MinConfirmations
	if minConf <= 0 {
		minConf = 1
	}
	now := h.now()

	job := &jobstore.Job{
		Ticker:          req.Ticker,
		Address:         address,
		PaymentId:       paymentId,
		ExpectedAmount:  req.ExpectedAmount,
		MinConf:         minConf,
		ClientReference: req.ClientReference,
		CreatedAt:       now,
	}
	if err := h.repo.CreateJobWithTTL(ctx, job, ttl); err != nil {
		common.FailLogged(c, http.StatusInternalServerError, xerr.ServerCommonError, "failed to persist job", err)
		return
	}

	status := &jobstore.Status{
		Status:                jobstore.StatusPending,
		Ticker:                req.Ticker,
		Address:               address,
		PaymentId:             paymentId,
		ClientReference:       req.ClientReference,
		RequiredConfirmations: minConf,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := h.repo.SaveStatus(ctx, status); err != nil {
		common.FailLogged(c, http.StatusInternalServerError, xerr.ServerCommonError, "failed to persist status", err)
		return
	}

	c.JSON(http.StatusOK, CreateResponse{
		Ok:         true,
		JobKey:     jobstore.JobKey(cfg.KeyPrefix, req.Ticker, paymentId),
		Status:     jobstore.StatusPending,
		Address:    address,
		PaymentId:  paymentId,
		ExpiresAt:  now.Add(ttl),
		TTLSeconds: int64(ttl.Seconds()),
	})
}

// Status handles GET /api/transaction/status/:ticker/:paymentId.
func (h *Handler) Status(c *gin.Context) {
	ticker := c.Param("ticker")
	paymentId := c.Param("paymentId")
	cacheKey := ticker + ":" + paymentId

	if status, found, hit := h.cache.get(cacheKey); hit {
		if !found {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return
		}
		c.JSON(http.StatusOK, status)
		return
	}

	status, found, err := h.repo.LoadStatus(c.Request.Context(), ticker, paymentId)
	if err != nil {
		common.FailLogged(c, http.StatusInternalServerError, xerr.ServerCommonError, "failed to read status", err)
		return
	}
	h.cache.put(cacheKey, status, found)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// Callback handles POST /api/transaction/callback/:ticker: an external
// status API asserting a deposit is already confirmed, bypassing the
// Scheduler/Matcher path entirely.
func (h *Handler) Callback(c *gin.Context) {
	ticker := c.Param("ticker")
	cfg := h.cfg.Get()
	if cfg.Intake.CallbackSecret == "" {
		common.Fail(c, http.StatusServiceUnavailable, xerr.NotConfigured, "callback endpoint not configured")
		return
	}
	if c.GetHeader(CallbackSecretHeader) != cfg.Intake.CallbackSecret {
		common.Fail(c, http.StatusUnauthorized, xerr.RequestParamsError, "invalid callback secret")
		return
	}

	var req CallbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.FailLogged(c, http.StatusBadRequest, xerr.RequestParamsError, "malformed request body", err)
		return
	}
	if req.PaymentId == "" || req.AmountAtomic == "" || req.Hash == "" {
		common.Fail(c, http.StatusBadRequest, xerr.RequestParamsError, "paymentId, amountAtomic and hash are required")
		return
	}

	tc, _ := cfg.Ticker(ticker)
	paidAmount := req.Amount
	if paidAmount == "" {
		if atomic, ok := new(big.Int).SetString(req.AmountAtomic, 10); ok {
			if formatted, ferr := amount.FormatAtomic(atomic, tc.Decimals); ferr == nil {
				paidAmount = formatted
			}
		}
	}

	now := h.now()
	createdAt := now
	if req.CreatedAt != nil {
		createdAt = *req.CreatedAt
	}

	ctx := c.Request.Context()
	status := &jobstore.Status{
		Status:                jobstore.StatusCompleted,
		Ticker:                ticker,
		Address:               req.Address,
		PaymentId:             req.PaymentId,
		ClientReference:       req.ClientReference,
		Confirmations:         req.Confirmations,
		RequiredConfirmations: req.Confirmations,
		Hash:                  req.Hash,
		PaidAmount:            paidAmount,
		PaidAmountAtomic:      req.AmountAtomic,
		EffectiveAmount:       paidAmount,
		EffectiveAmountAtomic: req.AmountAtomic,
		CreatedAt:             createdAt,
		UpdatedAt:             now,
	}
	if err := h.repo.SaveStatus(ctx, status); err != nil {
		common.FailLogged(c, http.StatusInternalServerError, xerr.ServerCommonError, "failed to persist status", err)
		return
	}
	if err := h.repo.MarkSeen(ctx, req.Hash); err != nil {
		logger.Warn(ctx, "callback: failed to mark seen", zap.String("hash", req.Hash), zap.Error(err))
	}
	if err := h.repo.DeleteJob(ctx, ticker, req.PaymentId); err != nil {
		logger.Warn(ctx, "callback: failed to delete job", zap.String("ticker", ticker), zap.String("paymentId", req.PaymentId), zap.Error(err))
	}

	c.JSON(http.StatusOK, CallbackResponse{Ok: true, Status: jobstore.StatusCompleted})
}
