package internal

import "time"

// Outcome classifies the terminal state of one webhook delivery.
type Outcome string

const (
	OutcomeReceived    Outcome = "received"
	OutcomeIgnored     Outcome = "ignored"
	OutcomeSkipped     Outcome = "skipped"
	OutcomeApplied     Outcome = "applied"
	OutcomeError       Outcome = "error"
	OutcomeHandshake   Outcome = "handshake"
	OutcomeHealthcheck Outcome = "healthcheck"
)

// Reasons recorded in Decision.OutcomeReason.
const (
	ReasonUnknownApproval    = "unknown_approval_state"
	ReasonMissingUserOrDays  = "missing_user_or_days"
	ReasonMissingPaymentID   = "missing_provider_payment_id"
	ReasonNoCandidate        = "no_candidate"
	ReasonMultipleCandidates = "multiple_candidates"
	ReasonClaimFailed        = "claim_failed"
	ReasonInvalidAmount      = "invalid_amount"
	ReasonInvalidIntentRow   = "invalid_intent_row"
)

// Approval is the tri-state answer to "was this payment successful".
// Ambiguous payloads stay unknown; they are never coerced to rejected.
type Approval int

const (
	ApprovalUnknown Approval = iota
	ApprovalApproved
	ApprovalRejected
)

func (a Approval) String() string {
	switch a {
	case ApprovalApproved:
		return "true"
	case ApprovalRejected:
		return "false"
	default:
		return "unknown"
	}
}

// Fields is the normalized view of a raw provider payload. Every field is
// best-effort except ProviderPaymentID, which is always populated (a hash of
// the raw body when the provider sent nothing usable).
type Fields struct {
	EventName         string
	Status            string
	Approved          Approval
	AmountCents       *int64
	PaidAmountCents   *int64
	ReferenceRaw      string
	PayerEmail        string
	ProviderPaymentID string
}

// Decision is the terminal output for one delivery. It is written to the
// audit log unconditionally and published to the configured topics.
type Decision struct {
	Provider          string    `json:"provider"`
	RequestID         string    `json:"request_id"`
	Outcome           Outcome   `json:"outcome"`
	OutcomeReason     string    `json:"outcome_reason,omitempty"`
	EventName         string    `json:"event_name,omitempty"`
	Status            string    `json:"status,omitempty"`
	Approved          string    `json:"approved"`
	AmountCents       *int64    `json:"amount_cents,omitempty"`
	Reference         string    `json:"reference,omitempty"`
	PayerEmail        string    `json:"payer_email,omitempty"`
	ProviderPaymentID string    `json:"provider_payment_id,omitempty"`
	UserID            string    `json:"user_id,omitempty"`
	Days              int       `json:"days,omitempty"`
	IdentitySource    string    `json:"identity_source,omitempty"`
	CreatedAt         time.Time `json:"created_at"`

	RawPayload []byte      `json:"-"`
	RawObject  interface{} `json:"-"`
}
