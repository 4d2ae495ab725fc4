package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"payhooks/internal"
	"payhooks/pkg/storage"
)

type stubAccounts struct {
	mu          sync.Mutex
	creditCalls int
	creditErr   error
}

func (s *stubAccounts) ApplyCredit(ctx context.Context, req storage.ApplyCreditRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creditCalls++
	return s.creditErr
}

func (s *stubAccounts) ResolveUserByEmail(ctx context.Context, email string) (string, error) {
	return "", nil
}

type stubAudit struct {
	mu   sync.Mutex
	rows []storage.AuditRow
}

func (s *stubAudit) InsertLog(ctx context.Context, row storage.AuditRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, row)
	return nil
}

func testPipeline(accounts storage.AccountService, audit storage.AuditLog) *internal.Pipeline {
	return &internal.Pipeline{
		Provider:  "testpay",
		Extractor: internal.NewExtractor(internal.DefaultScanLimits()),
		Resolver: &internal.Resolver{
			Accounts:   accounts,
			Provider:   "testpay",
			AmountDays: map[int64]int{799: 30},
			Limits:     internal.DefaultScanLimits(),
		},
		Accounts: accounts,
		Audit:    audit,
	}
}

func postBody(t *testing.T, handler http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

// TestPaymentHandlerApplied tests the 200 success body for applied payments.
func TestPaymentHandlerApplied(t *testing.T) {
	accounts := &stubAccounts{}
	handler := NewPaymentHandler(testPipeline(accounts, &stubAudit{}), "testpay", 1<<20, nil)

	rec := postBody(t, handler, `{"status":"approved","amount":799,"reference":"user_123e4567-e89b-12d3-a456-426614174000_days_30","payment_id":"p1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["success"] != true {
		t.Fatalf("expected success body, got %v", body)
	}
	if accounts.creditCalls != 1 {
		t.Fatalf("expected one credit call, got %d", accounts.creditCalls)
	}
}

// TestPaymentHandlerSkipped tests that skipped outcomes still answer 200
// with the reason.
func TestPaymentHandlerSkipped(t *testing.T) {
	handler := NewPaymentHandler(testPipeline(&stubAccounts{}, &stubAudit{}), "testpay", 1<<20, nil)

	rec := postBody(t, handler, `{"status":"approved","amount":123}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["skipped"] != true || body["reason"] == "" {
		t.Fatalf("expected skipped body with reason, got %v", body)
	}
}

// TestPaymentHandlerIgnored tests the plain ack for rejected payments.
func TestPaymentHandlerIgnored(t *testing.T) {
	accounts := &stubAccounts{}
	handler := NewPaymentHandler(testPipeline(accounts, &stubAudit{}), "testpay", 1<<20, nil)

	rec := postBody(t, handler, `{"status":"refused"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["received"] != true {
		t.Fatalf("expected received ack, got %v", body)
	}
	if accounts.creditCalls != 0 {
		t.Fatalf("expected no credit calls")
	}
}

// TestPaymentHandlerCreditFailure tests that failed credit application
// answers 500 so the provider redelivers.
func TestPaymentHandlerCreditFailure(t *testing.T) {
	accounts := &stubAccounts{creditErr: context.DeadlineExceeded}
	handler := NewPaymentHandler(testPipeline(accounts, &stubAudit{}), "testpay", 1<<20, nil)

	rec := postBody(t, handler, `{"status":"approved","amount":799,"reference":"user_123e4567-e89b-12d3-a456-426614174000_days_30"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["error"] == "" {
		t.Fatalf("expected error body, got %v", body)
	}
}

// TestPaymentHandlerNotConfigured tests the configuration-error path.
func TestPaymentHandlerNotConfigured(t *testing.T) {
	pipeline := &internal.Pipeline{Extractor: internal.NewExtractor(internal.DefaultScanLimits())}
	handler := NewPaymentHandler(pipeline, "testpay", 1<<20, nil)

	rec := postBody(t, handler, `{"status":"approved"}`)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 when account service missing, got %d", rec.Code)
	}
}

// TestPaymentHandlerMethodNotAllowed tests the POST-only restriction.
func TestPaymentHandlerMethodNotAllowed(t *testing.T) {
	handler := NewPaymentHandler(testPipeline(&stubAccounts{}, &stubAudit{}), "testpay", 1<<20, nil)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/payments", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rec.Code)
	}
}

// TestHandshakeHandler tests that probes ack and audit without touching
// accounts.
func TestHandshakeHandler(t *testing.T) {
	accounts := &stubAccounts{}
	audit := &stubAudit{}
	handler := NewHandshakeHandler(testPipeline(accounts, audit), nil)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments/handshake", strings.NewReader(`{"probe":true}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if accounts.creditCalls != 0 {
		t.Fatalf("expected no credit calls")
	}
	if len(audit.rows) != 1 || audit.rows[0].Outcome != "handshake" {
		t.Fatalf("expected handshake audit row, got %+v", audit.rows)
	}
}

// TestDiagHandler tests the report fields and the optional write probe.
func TestDiagHandler(t *testing.T) {
	audit := &stubAudit{}
	handler := NewDiagHandler(testPipeline(&stubAccounts{}, audit), "testpay", nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/webhooks/payments/diag?write=true", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["account_configured"] != true {
		t.Fatalf("expected account_configured, got %v", body)
	}
	if body["write"] != "ok" {
		t.Fatalf("expected write probe, got %v", body)
	}
	if len(audit.rows) != 1 || audit.rows[0].Outcome != "healthcheck" {
		t.Fatalf("expected healthcheck audit row, got %+v", audit.rows)
	}
}
