package internal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"payhooks/pkg/storage"
)

type fakeAudit struct {
	mu   sync.Mutex
	rows []storage.AuditRow
	err  error
}

func (f *fakeAudit) InsertLog(ctx context.Context, row storage.AuditRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, row)
	return nil
}

func (f *fakeAudit) last(t *testing.T) storage.AuditRow {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.rows) == 0 {
		t.Fatalf("expected an audit row")
	}
	return f.rows[len(f.rows)-1]
}

func newPipeline(accounts *fakeAccounts, intents *fakeIntents, audit *fakeAudit) *Pipeline {
	return &Pipeline{
		Provider:    "testpay",
		Description: "payment webhook credit",
		Extractor:   NewExtractor(DefaultScanLimits()),
		Resolver:    newResolver(accounts, intents),
		Accounts:    accounts,
		Intents:     intents,
		Audit:       audit,
	}
}

// TestProcessApproved tests the happy path: approved payment with a
// reference gets exactly one credit call and an applied decision.
func TestProcessApproved(t *testing.T) {
	accounts := &fakeAccounts{}
	audit := &fakeAudit{}
	p := newPipeline(accounts, &fakeIntents{}, audit)

	raw := []byte(`{
		"event": "payment.approved",
		"data": {
			"id": "abc",
			"status": "approved",
			"amount": 799,
			"reference": "user_` + testUUID + `_days_30"
		}
	}`)

	decision, err := p.Process(context.Background(), raw)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if decision.Outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s (%s)", decision.Outcome, decision.OutcomeReason)
	}
	if decision.UserID != testUUID || decision.Days != 30 {
		t.Fatalf("unexpected identity: %s/%d", decision.UserID, decision.Days)
	}
	if decision.RequestID == "" {
		t.Fatalf("expected a request id")
	}

	if len(accounts.creditCalls) != 1 {
		t.Fatalf("expected exactly one credit call, got %d", len(accounts.creditCalls))
	}
	call := accounts.creditCalls[0]
	if call.UserID != testUUID || call.Days != 30 || call.AmountCents != 799 {
		t.Fatalf("unexpected credit call: %+v", call)
	}
	if call.ProviderPaymentID != "abc" {
		t.Fatalf("expected payment id abc, got %q", call.ProviderPaymentID)
	}

	row := audit.last(t)
	if row.Outcome != "applied" || row.UserID != testUUID {
		t.Fatalf("unexpected audit row: %+v", row)
	}
}

// TestProcessDeeplyNestedStatus tests that a Status field buried in an
// unknown envelope still drives approval through the scanner fallback.
func TestProcessDeeplyNestedStatus(t *testing.T) {
	accounts := &fakeAccounts{}
	p := newPipeline(accounts, &fakeIntents{}, &fakeAudit{})

	raw := []byte(`{
		"envelope": {
			"body": {
				"payment": {
					"details": {
						"Status": "Approved"
					}
				}
			}
		},
		"reference": "user_` + testUUID + `_days_30"
	}`)

	decision, err := p.Process(context.Background(), raw)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if decision.Outcome != OutcomeApplied {
		t.Fatalf("expected applied, got %s (%s)", decision.Outcome, decision.OutcomeReason)
	}
	if len(accounts.creditCalls) != 1 {
		t.Fatalf("expected one credit call, got %d", len(accounts.creditCalls))
	}
}

// TestProcessRejectedIgnored tests that rejected payments are ignored with
// no side effects.
func TestProcessRejectedIgnored(t *testing.T) {
	accounts := &fakeAccounts{}
	audit := &fakeAudit{}
	p := newPipeline(accounts, &fakeIntents{}, audit)

	decision, err := p.Process(context.Background(), []byte(`{"status":"refused"}`))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if decision.Outcome != OutcomeIgnored {
		t.Fatalf("expected ignored, got %s", decision.Outcome)
	}
	if len(accounts.creditCalls) != 0 {
		t.Fatalf("expected no credit calls")
	}
	if audit.last(t).Outcome != "ignored" {
		t.Fatalf("expected ignored audit row")
	}
}

// TestProcessUnknownSkipped tests that unclassifiable payloads are skipped
// with the unknown_approval_state reason.
func TestProcessUnknownSkipped(t *testing.T) {
	accounts := &fakeAccounts{}
	p := newPipeline(accounts, &fakeIntents{}, &fakeAudit{})

	decision, err := p.Process(context.Background(), []byte(`{"foo":"bar"}`))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if decision.Outcome != OutcomeSkipped || decision.OutcomeReason != ReasonUnknownApproval {
		t.Fatalf("expected skipped/unknown_approval_state, got %s/%s", decision.Outcome, decision.OutcomeReason)
	}
	if len(accounts.creditCalls) != 0 {
		t.Fatalf("expected no credit calls")
	}
}

// TestProcessApprovedWithoutIdentity tests that an approved payment with no
// resolvable user is skipped, never guessed.
func TestProcessApprovedWithoutIdentity(t *testing.T) {
	accounts := &fakeAccounts{}
	p := newPipeline(accounts, &fakeIntents{}, &fakeAudit{})

	decision, err := p.Process(context.Background(), []byte(`{"status":"approved","amount":123}`))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if decision.Outcome != OutcomeSkipped {
		t.Fatalf("expected skipped, got %s", decision.Outcome)
	}
	if decision.OutcomeReason == "" {
		t.Fatalf("expected an outcome reason")
	}
	if len(accounts.creditCalls) != 0 {
		t.Fatalf("expected no credit calls")
	}
}

// TestProcessMalformedBody tests that unparsable bodies classify instead of
// erroring.
func TestProcessMalformedBody(t *testing.T) {
	p := newPipeline(&fakeAccounts{}, &fakeIntents{}, &fakeAudit{})

	decision, err := p.Process(context.Background(), []byte(`{"not json`))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if decision.Outcome != OutcomeSkipped || decision.OutcomeReason != ReasonUnknownApproval {
		t.Fatalf("expected skipped/unknown_approval_state, got %s/%s", decision.Outcome, decision.OutcomeReason)
	}
	if decision.ProviderPaymentID == "" {
		t.Fatalf("expected synthetic payment id")
	}
}

// TestProcessCreditFailure tests the error outcome: the failure propagates
// and the claimed intent is moved to error.
func TestProcessCreditFailure(t *testing.T) {
	accounts := &fakeAccounts{creditErr: errors.New("ledger unavailable")}
	intents := &fakeIntents{intents: []storage.PendingIntent{
		{ID: "i1", UserID: testUUID, Days: 30, AmountCents: 799, Status: storage.IntentPending, CreatedAt: time.Now()},
	}}
	audit := &fakeAudit{}
	p := newPipeline(accounts, intents, audit)

	decision, err := p.Process(context.Background(), []byte(`{"status":"approved","amount":799}`))
	if err == nil {
		t.Fatalf("expected error")
	}
	if decision.Outcome != OutcomeError {
		t.Fatalf("expected error outcome, got %s", decision.Outcome)
	}

	// claim then rollback to error
	if len(intents.patches) != 2 {
		t.Fatalf("expected claim and error patch, got %+v", intents.patches)
	}
	if intents.patches[1].expected != storage.IntentMatched || intents.patches[1].next != storage.IntentError {
		t.Fatalf("expected matched->error patch, got %+v", intents.patches[1])
	}
	if audit.last(t).Outcome != "error" {
		t.Fatalf("expected error audit row")
	}
}

// TestProcessIntentApplied tests that a claimed intent is finalized after a
// successful credit.
func TestProcessIntentApplied(t *testing.T) {
	accounts := &fakeAccounts{}
	intents := &fakeIntents{intents: []storage.PendingIntent{
		{ID: "i1", UserID: testUUID, Days: 30, AmountCents: 799, Status: storage.IntentPending, CreatedAt: time.Now()},
	}}
	p := newPipeline(accounts, intents, &fakeAudit{})

	decision, err := p.Process(context.Background(), []byte(`{"status":"approved","amount":799}`))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if decision.Outcome != OutcomeApplied || decision.IdentitySource != "intent" {
		t.Fatalf("expected applied via intent, got %s/%s", decision.Outcome, decision.IdentitySource)
	}
	if intents.intents[0].Status != storage.IntentApplied {
		t.Fatalf("expected intent applied, got %s", intents.intents[0].Status)
	}
}

// TestProcessAuditFailureSwallowed tests that audit insert failures never
// change the outcome.
func TestProcessAuditFailureSwallowed(t *testing.T) {
	accounts := &fakeAccounts{}
	audit := &fakeAudit{err: errors.New("log table missing")}
	p := newPipeline(accounts, &fakeIntents{}, audit)

	raw := []byte(`{"status":"approved","amount":799,"reference":"user_` + testUUID + `_days_30"}`)
	decision, err := p.Process(context.Background(), raw)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if decision.Outcome != OutcomeApplied {
		t.Fatalf("expected applied despite audit failure, got %s", decision.Outcome)
	}
}

// TestRecordProbe tests handshake and healthcheck audit rows.
func TestRecordProbe(t *testing.T) {
	audit := &fakeAudit{}
	p := newPipeline(&fakeAccounts{}, &fakeIntents{}, audit)

	decision := p.RecordProbe(context.Background(), OutcomeHandshake, []byte(`{"probe":true}`))
	if decision.Outcome != OutcomeHandshake {
		t.Fatalf("expected handshake outcome, got %s", decision.Outcome)
	}
	if audit.last(t).Outcome != "handshake" {
		t.Fatalf("expected handshake audit row")
	}
}
