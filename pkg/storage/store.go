package storage

import (
	"context"
	"encoding/json"
	"time"
)

// IntentStatus is the lifecycle of a pending checkout intent.
type IntentStatus string

const (
	IntentPending IntentStatus = "pending"
	IntentMatched IntentStatus = "matched"
	IntentApplied IntentStatus = "applied"
	IntentError   IntentStatus = "error"
)

// PendingIntent is a row created before checkout redirect, representing an
// expected future payment. This service only reads and conditionally claims
// intents; it never creates them.
type PendingIntent struct {
	ID          string
	UserID      string
	Days        int
	AmountCents int64
	Status      IntentStatus
	CreatedAt   time.Time
}

// IntentFilter selects candidate intents for matching.
type IntentFilter struct {
	Provider    string
	Status      IntentStatus
	AmountCents int64
	Since       time.Time
	Limit       int
}

// ApplyCreditRequest carries one account-credit operation. The remote ledger
// is expected to be idempotent on ProviderPaymentID.
type ApplyCreditRequest struct {
	UserID            string
	Days              int
	AmountCents       int64
	Provider          string
	ProviderPaymentID string
	Description       string
	RawEvent          json.RawMessage
}

// AuditRow is one best-effort decision log entry.
type AuditRow struct {
	Provider          string
	RequestID         string
	Outcome           string
	OutcomeReason     string
	EventName         string
	Status            string
	Approved          string
	AmountCents       *int64
	Reference         string
	PayerEmail        string
	ProviderPaymentID string
	UserID            string
	Days              int
	IdentitySource    string
	RawPayload        json.RawMessage
	CreatedAt         time.Time
}

// AccountService is the remote account/ledger collaborator.
type AccountService interface {
	// ApplyCredit grants days of credit. Safe to call more than once with
	// the same provider payment id; deduplication is the remote side's
	// contract.
	ApplyCredit(ctx context.Context, req ApplyCreditRequest) error
	// ResolveUserByEmail returns the user id for an email, or "" when no
	// user matches.
	ResolveUserByEmail(ctx context.Context, email string) (string, error)
}

// AuditLog persists decision rows. Implementations must be tolerant: an
// insert failure is the caller's to swallow, and unknown-column errors are
// retried once with a reduced column set.
type AuditLog interface {
	InsertLog(ctx context.Context, row AuditRow) error
}

// IntentStore reads and conditionally claims pending intents.
type IntentStore interface {
	// SelectPendingIntents returns candidates ordered newest-first.
	SelectPendingIntents(ctx context.Context, filter IntentFilter) ([]PendingIntent, error)
	// PatchIntent updates an intent only while it still has the expected
	// status and returns the number of rows affected, which callers inspect
	// to detect claim races.
	PatchIntent(ctx context.Context, id string, expected, next IntentStatus, fields map[string]interface{}) (int64, error)
	Close() error
}
