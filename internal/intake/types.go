package intake

import "time"

// CreateRequest is the body of POST /api/transaction/create.
type CreateRequest struct {
	Ticker          string `json:"ticker"`
	ClientReference string `json:"client_reference"`
	PaymentId       string `json:"payment_id,omitempty"`
	ExpectedAmount  string `json:"expectedAmount,omitempty"`
	TTLSeconds      int64  `json:"ttlSeconds,omitempty"`
}

// CreateResponse is the body of a successful create.
type CreateResponse struct {
	Ok         bool      `json:"ok"`
	JobKey     string    `json:"jobKey"`
	Status     string    `json:"status"`
	Address    string    `json:"address"`
	PaymentId  string    `json:"paymentId"`
	ExpiresAt  time.Time `json:"expiresAt"`
	TTLSeconds int64     `json:"ttlSeconds"`
}

// CallbackRequest is the body of POST /api/transaction/callback/:ticker.
type CallbackRequest struct {
	PaymentId       string `json:"paymentId"`
	Address         string `json:"address"`
	Amount          string `json:"amount,omitempty"`
	AmountAtomic    string `json:"amountAtomic"`
	ExpectedAmount  string `json:"expectedAmount,omitempty"`
	Confirmations   int    `json:"confirmations"`
	Hash            string `json:"hash"`
	ClientReference string `json:"clientReference,omitempty"`
	CreatedAt       *time.Time `json:"createdAt,omitempty"`
}

// CallbackResponse is the body of a successful callback.
type CallbackResponse struct {
	Ok     bool   `json:"ok"`
	Status string `json:"status"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string  `json:"status"`
	Uptime float64 `json:"uptime"`
}
