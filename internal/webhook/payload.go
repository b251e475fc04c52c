package webhook

import "time"

// SecretHeader is the fixed header name carrying the shared secret, per
// §6's outbound webhook contract.
const SecretHeader = "X-Zano-Secret"

// Payload is the canonical envelope from §4.6. Field presence is stable
// across releases; new fields are additive.
type Payload struct {
	PaymentId             string     `json:"paymentId"`
	Address               string     `json:"address"`
	Amount                string     `json:"amount"`
	AmountAtomic          string     `json:"amountAtomic"`
	PaidAmount            string     `json:"paidAmount"`
	PaidAmountAtomic      string     `json:"paidAmountAtomic"`
	EffectiveAmount       string     `json:"effectiveAmount"`
	EffectiveAmountAtomic string     `json:"effectiveAmountAtomic"`
	FeeAtomic             *string    `json:"feeAtomic"`
	Confirmations         int64      `json:"confirmations"`
	Hash                  string     `json:"hash"`
	Ticker                string     `json:"ticker"`
	ClientReference       string     `json:"clientReference,omitempty"`
	CreatedAt             *time.Time `json:"createdAt,omitempty"`
}
