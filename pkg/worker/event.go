package worker

import (
	"encoding/json"
	"time"
)

// Decision is the published form of one webhook decision, as emitted by the
// ingest service.
type Decision struct {
	// Provider is the payment provider the webhook came from.
	Provider string `json:"provider"`
	// RequestID correlates the decision with the ingest request that made it.
	RequestID string `json:"request_id"`
	// Outcome is the terminal classification (applied, ignored, skipped, ...).
	Outcome string `json:"outcome"`
	// OutcomeReason explains skipped and error outcomes.
	OutcomeReason string `json:"outcome_reason,omitempty"`
	EventName     string `json:"event_name,omitempty"`
	Status        string `json:"status,omitempty"`
	Approved      string `json:"approved"`
	AmountCents   *int64 `json:"amount_cents,omitempty"`
	Reference     string `json:"reference,omitempty"`
	PayerEmail    string `json:"payer_email,omitempty"`
	// ProviderPaymentID is the dedup key for downstream side effects.
	ProviderPaymentID string    `json:"provider_payment_id"`
	UserID            string    `json:"user_id,omitempty"`
	Days              int       `json:"days,omitempty"`
	IdentitySource    string    `json:"identity_source,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Event represents a decision message received by the worker.
type Event struct {
	// Topic is the name of the topic the message was received on.
	Topic string `json:"topic"`
	// Metadata contains message-broker-specific metadata.
	Metadata map[string]string `json:"metadata"`
	// Payload is the raw JSON payload of the message.
	Payload json.RawMessage `json:"payload"`
	// Decision is the decoded decision.
	Decision Decision `json:"decision"`
}
