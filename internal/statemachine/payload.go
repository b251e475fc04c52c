package statemachine

import (
	"math/big"

	"zanowatcher.com/internal/amount"
	"zanowatcher.com/internal/jobstore"
	"zanowatcher.com/internal/matcher"
	"zanowatcher.com/internal/webhook"
)

// buildPayloadAndStatus computes the canonical webhook payload and the
// matching in-flight Status record for a confirmed observation. When
// feeAtomic is non-nil, effectiveAmount is the gross amount net of the
// consolidation fee; otherwise effective equals gross.
func (m *Machine) buildPayloadAndStatus(job *jobstore.Job, best matcher.DepositObservation, p TickerPolicy, feeAtomic *big.Int) (webhook.Payload, *jobstore.Status) {
	paidAtomic := best.AmountAtomic
	effectiveAtomic := new(big.Int).Set(paidAtomic)
	if feeAtomic != nil {
		effectiveAtomic = new(big.Int).Sub(paidAtomic, feeAtomic)
		if effectiveAtomic.Sign() < 0 {
			effectiveAtomic = big.NewInt(0)
		}
	}

	paidDecimal, _ := amount.FormatAtomic(paidAtomic, p.Decimals)
	effectiveDecimal, _ := amount.FormatAtomic(effectiveAtomic, p.Decimals)

	var feePtr *string
	if feeAtomic != nil {
		s := feeAtomic.String()
		feePtr = &s
	}

	createdAt := job.CreatedAt
	payload := webhook.Payload{
		PaymentId:             job.PaymentId,
		Address:               job.Address,
		Amount:                paidDecimal,
		AmountAtomic:          paidAtomic.String(),
		PaidAmount:            paidDecimal,
		PaidAmountAtomic:      paidAtomic.String(),
		EffectiveAmount:       effectiveDecimal,
		EffectiveAmountAtomic: effectiveAtomic.String(),
		FeeAtomic:             feePtr,
		Confirmations:         best.Confirmations,
		Hash:                  best.Hash,
		Ticker:                job.Ticker,
		ClientReference:       job.ClientReference,
		CreatedAt:             &createdAt,
	}

	status := &jobstore.Status{
		Status:                jobstore.StatusConfirming,
		Ticker:                job.Ticker,
		Address:               job.Address,
		PaymentId:             job.PaymentId,
		ClientReference:       job.ClientReference,
		Confirmations:         int(best.Confirmations),
		RequiredConfirmations: job.MinConf,
		Hash:                  best.Hash,
		PaidAmount:            paidDecimal,
		PaidAmountAtomic:      paidAtomic.String(),
		EffectiveAmount:       effectiveDecimal,
		EffectiveAmountAtomic: effectiveAtomic.String(),
		CreatedAt:             job.CreatedAt,
	}
	if feeAtomic != nil {
		status.FeeAtomic = feeAtomic.String()
	}
	return payload, status
}
