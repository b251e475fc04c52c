package jobstore

import "time"

// Status mirrors the JSON blob published at StatusKey, read directly by
// polling clients and by the Intake status endpoint's cache.
type Status struct {
	Status                string    `json:"status"` // PENDING | CONFIRMING | COMPLETED | FAILED
	Ticker                string    `json:"ticker"`
	Address               string    `json:"address"`
	PaymentId             string    `json:"paymentId"`
	ClientReference       string    `json:"clientReference,omitempty"`
	Confirmations         int       `json:"confirmations"`
	RequiredConfirmations int       `json:"requiredConfirmations"`
	Hash                  string    `json:"hash,omitempty"`
	PaidAmount            string    `json:"paidAmount,omitempty"`
	PaidAmountAtomic      string    `json:"paidAmountAtomic,omitempty"`
	EffectiveAmount       string    `json:"effectiveAmount,omitempty"`
	EffectiveAmountAtomic string    `json:"effectiveAmountAtomic,omitempty"`
	FeeAtomic             string    `json:"feeAtomic,omitempty"`
	CreatedAt             time.Time `json:"createdAt"`
	UpdatedAt             time.Time `json:"updatedAt"`
	WebhookError          string    `json:"webhookError,omitempty"`
}

const (
	StatusPending    = "PENDING"
	StatusConfirming = "CONFIRMING"
	StatusCompleted  = "COMPLETED"
	StatusFailed     = "FAILED"
)

// IsTerminal reports whether the status can no longer transition, per
// invariant 2 in §3 (a Status without a Job must be terminal).
func (s *Status) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusFailed
}
