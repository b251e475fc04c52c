package jobstore

import (
	"strconv"
	"time"
)

// Job is the canonical field set from §3. It is the Job State Machine's
// only mutable record; every field round-trips through the KV hash at
// JobKey(prefix, Ticker, PaymentId).
type Job struct {
	Ticker          string
	Address         string
	PaymentId       string
	ExpectedAmount  string
	MinConf         int
	ClientReference string
	CreatedAt       time.Time

	DynamicMinConfApplied bool

	WebhookSent           bool
	WebhookAttempts       int
	WebhookFirstAttemptAt time.Time
	WebhookLastAttemptAt  time.Time
	WebhookNextAttemptAt  time.Time
	WebhookLastError      string

	ConsolidationAttempted bool
	ConsolidationTxId      string
	ConsolidationError     string
}

// Field names as stored in the KV hash. Exported so callers building a
// partial Patch (the State Machine, mostly) name fields the same way the
// full Job encodes them.
const (
	FieldTicker          = "ticker"
	FieldAddress         = "address"
	FieldPaymentId       = "paymentId"
	FieldExpectedAmount  = "expectedAmount"
	FieldMinConf         = "minConf"
	FieldClientRef       = "clientReference"
	FieldCreatedAt       = "createdAt"
	FieldDynMinConfAppl  = "dynamicMinConfApplied"
	FieldWebhookSent     = "webhookSent"
	FieldWebhookAttempts = "webhookAttempts"
	FieldWebhookFirstAt  = "webhookFirstAttemptAt"
	FieldWebhookLastAt   = "webhookLastAttemptAt"
	FieldWebhookNextAt   = "webhookNextAttemptAt"
	FieldWebhookLastErr  = "webhookLastError"
	FieldConsolAttempted = "consolidationAttempted"
	FieldConsolTxId      = "consolidationTxId"
	FieldConsolError     = "consolidationError"

	fTicker          = FieldTicker
	fAddress         = FieldAddress
	fPaymentId       = FieldPaymentId
	fExpectedAmount  = FieldExpectedAmount
	fMinConf         = FieldMinConf
	fClientRef       = FieldClientRef
	fCreatedAt       = FieldCreatedAt
	fDynMinConfAppl  = FieldDynMinConfAppl
	fWebhookSent     = FieldWebhookSent
	fWebhookAttempts = FieldWebhookAttempts
	fWebhookFirstAt  = FieldWebhookFirstAt
	fWebhookLastAt   = FieldWebhookLastAt
	fWebhookNextAt   = FieldWebhookNextAt
	fWebhookLastErr  = FieldWebhookLastErr
	fConsolAttempted = FieldConsolAttempted
	fConsolTxId      = FieldConsolTxId
	fConsolError     = FieldConsolError
)

func encodeBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func decodeBool(s string) bool { return s == "1" || s == "true" }

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func decodeTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

func decodeInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// Fields serializes the full Job into a hash-ready map, for creation.
func (j *Job) Fields() map[string]string {
	return map[string]string{
		fTicker:          j.Ticker,
		fAddress:         j.Address,
		fPaymentId:       j.PaymentId,
		fExpectedAmount:  j.ExpectedAmount,
		fMinConf:         strconv.Itoa(j.MinConf),
		fClientRef:       j.ClientReference,
		fCreatedAt:       encodeTime(j.CreatedAt),
		fDynMinConfAppl:  encodeBool(j.DynamicMinConfApplied),
		fWebhookSent:     encodeBool(j.WebhookSent),
		fWebhookAttempts: strconv.Itoa(j.WebhookAttempts),
		fWebhookFirstAt:  encodeTime(j.WebhookFirstAttemptAt),
		fWebhookLastAt:   encodeTime(j.WebhookLastAttemptAt),
		fWebhookNextAt:   encodeTime(j.WebhookNextAttemptAt),
		fWebhookLastErr:  j.WebhookLastError,
		fConsolAttempted: encodeBool(j.ConsolidationAttempted),
		fConsolTxId:      j.ConsolidationTxId,
		fConsolError:     j.ConsolidationError,
	}
}

// JobFromFields decodes a hash returned by kv.Store.HGetAll. An empty map
// decodes to (nil, false): the Job does not exist.
func JobFromFields(m map[string]string) (*Job, bool) {
	if len(m) == 0 {
		return nil, false
	}
	return &Job{
		Ticker:                 m[fTicker],
		Address:                m[fAddress],
		PaymentId:              m[fPaymentId],
		ExpectedAmount:         m[fExpectedAmount],
		MinConf:                decodeInt(m[fMinConf]),
		ClientReference:        m[fClientRef],
		CreatedAt:              decodeTime(m[fCreatedAt]),
		DynamicMinConfApplied:  decodeBool(m[fDynMinConfAppl]),
		WebhookSent:            decodeBool(m[fWebhookSent]),
		WebhookAttempts:        decodeInt(m[fWebhookAttempts]),
		WebhookFirstAttemptAt:  decodeTime(m[fWebhookFirstAt]),
		WebhookLastAttemptAt:   decodeTime(m[fWebhookLastAt]),
		WebhookNextAttemptAt:   decodeTime(m[fWebhookNextAt]),
		WebhookLastError:       m[fWebhookLastErr],
		ConsolidationAttempted: decodeBool(m[fConsolAttempted]),
		ConsolidationTxId:      m[fConsolTxId],
		ConsolidationError:     m[fConsolError],
	}, true
}

// Patch holds only the fields being changed; Encode turns them into the
// string map callers HSet as a partial update without disturbing other
// fields (§4.1).
type Patch map[string]interface{}

func (p Patch) Encode() map[string]string {
	out := make(map[string]string, len(p))
	for k, v := range p {
		switch val := v.(type) {
		case string:
			out[k] = val
		case int:
			out[k] = strconv.Itoa(val)
		case bool:
			out[k] = encodeBool(val)
		case time.Time:
			out[k] = encodeTime(val)
		}
	}
	return out
}
