package internal

import (
	"encoding/json"
	"testing"
)

// TestNormalizeAmountCents tests the unit heuristic: fractional values under
// 1000 are major units, everything else already cents.
func TestNormalizeAmountCents(t *testing.T) {
	cases := []struct {
		name  string
		value interface{}
		want  int64
		none  bool
	}{
		{name: "fractional major units", value: 7.99, want: 799},
		{name: "integral cents", value: float64(799), want: 799},
		{name: "string number", value: "799", want: 799},
		{name: "string fractional", value: "7.99", want: 799},
		{name: "json number", value: json.Number("19.99"), want: 1999},
		{name: "large fractional stays cents", value: 1999.5, want: 2000},
		{name: "nil", value: nil, none: true},
		{name: "garbage string", value: "free", none: true},
		{name: "empty string", value: "", none: true},
		{name: "bool", value: true, none: true},
	}

	for _, tc := range cases {
		got := NormalizeAmountCents(tc.value)
		if tc.none {
			if got != nil {
				t.Fatalf("%s: expected nil, got %d", tc.name, *got)
			}
			continue
		}
		if got == nil {
			t.Fatalf("%s: expected %d, got nil", tc.name, tc.want)
		}
		if *got != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, *got)
		}
	}
}

// TestSyntheticPaymentID tests that the derived id is stable and 32 chars.
func TestSyntheticPaymentID(t *testing.T) {
	a := SyntheticPaymentID([]byte(`{"x":1}`))
	b := SyntheticPaymentID([]byte(`{"x":1}`))
	c := SyntheticPaymentID([]byte(`{"x":2}`))

	if a != b {
		t.Fatalf("expected stable id, got %q and %q", a, b)
	}
	if a == c {
		t.Fatalf("expected different payloads to produce different ids")
	}
	if len(a) != 32 {
		t.Fatalf("expected 32-char id, got %d", len(a))
	}
}

// TestExtractKnownShape tests extraction from a conventional payload.
func TestExtractKnownShape(t *testing.T) {
	raw := []byte(`{
		"event": "payment.approved",
		"data": {
			"id": "abc",
			"status": "APPROVED",
			"amount": 799,
			"reference": "user_123e4567-e89b-12d3-a456-426614174000_days_30",
			"customer": {"email": " Buyer@Example.com "}
		}
	}`)
	root := decode(t, string(raw))

	fields := NewExtractor(DefaultScanLimits()).Extract(raw, root)
	if fields.EventName != "payment.approved" {
		t.Fatalf("event name: %q", fields.EventName)
	}
	if fields.Status != "approved" {
		t.Fatalf("expected lowercased status, got %q", fields.Status)
	}
	if fields.AmountCents == nil || *fields.AmountCents != 799 {
		t.Fatalf("amount: %v", fields.AmountCents)
	}
	if fields.ReferenceRaw != "user_123e4567-e89b-12d3-a456-426614174000_days_30" {
		t.Fatalf("reference: %q", fields.ReferenceRaw)
	}
	if fields.PayerEmail != "Buyer@Example.com" {
		t.Fatalf("email: %q", fields.PayerEmail)
	}
	if fields.ProviderPaymentID != "abc" {
		t.Fatalf("payment id: %q", fields.ProviderPaymentID)
	}
}

// TestExtractScannerFallback tests that unknown nesting still yields fields
// through the bounded scan.
func TestExtractScannerFallback(t *testing.T) {
	raw := []byte(`{"envelope":{"payload":{"payment_status":"paid","transaction_id":"tx-9"}}}`)
	root := decode(t, string(raw))

	fields := NewExtractor(DefaultScanLimits()).Extract(raw, root)
	if fields.Status != "paid" {
		t.Fatalf("expected scanned status, got %q", fields.Status)
	}
	if fields.ProviderPaymentID != "tx-9" {
		t.Fatalf("expected scanned payment id, got %q", fields.ProviderPaymentID)
	}
}

// TestExtractSyntheticIDFallback tests that a payload without any payment id
// gets the derived one.
func TestExtractSyntheticIDFallback(t *testing.T) {
	raw := []byte(`{"status":"paid"}`)
	root := decode(t, string(raw))

	fields := NewExtractor(DefaultScanLimits()).Extract(raw, root)
	if fields.ProviderPaymentID != SyntheticPaymentID(raw) {
		t.Fatalf("expected synthetic payment id, got %q", fields.ProviderPaymentID)
	}
}

// TestExtractMalformedBody tests that a nil root degrades to absence.
func TestExtractMalformedBody(t *testing.T) {
	raw := []byte(`{"not json`)

	fields := NewExtractor(DefaultScanLimits()).Extract(raw, nil)
	if fields.Status != "" || fields.AmountCents != nil {
		t.Fatalf("expected empty fields, got %+v", fields)
	}
	if fields.ProviderPaymentID == "" {
		t.Fatalf("expected synthetic payment id for malformed body")
	}
}
