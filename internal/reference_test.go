package internal

import "testing"

const testUUID = "123e4567-e89b-12d3-a456-426614174000"

// TestParseReferenceGrammars tests the three reference grammars.
func TestParseReferenceGrammars(t *testing.T) {
	cases := []struct {
		raw    string
		userID string
		days   int
		ok     bool
	}{
		{raw: "user_" + testUUID + "_days_30", userID: testUUID, days: 30, ok: true},
		{raw: "user_" + testUUID + "_90", userID: testUUID, days: 90, ok: true},
		{raw: "user_" + testUUID + "_premium", userID: testUUID, days: 30, ok: true},
		{raw: "user_" + testUUID + "_standard", userID: testUUID, days: 0, ok: true},
		{raw: "  user_" + testUUID + "_days_30  ", userID: testUUID, days: 30, ok: true},
		{raw: "order_" + testUUID + "_days_30", ok: false},
		{raw: "user_short_days_30", ok: false},
		{raw: "user_" + testUUID + "_gold", ok: false},
		{raw: "", ok: false},
	}

	for _, tc := range cases {
		ref, ok := ParseReference(tc.raw)
		if ok != tc.ok {
			t.Fatalf("%q: expected ok=%v, got %v", tc.raw, tc.ok, ok)
		}
		if !ok {
			continue
		}
		if ref.UserID != tc.userID || ref.Days != tc.days {
			t.Fatalf("%q: expected %s/%d, got %s/%d", tc.raw, tc.userID, tc.days, ref.UserID, ref.Days)
		}
	}
}

// TestExtractReferenceEmbedded tests fishing a reference out of a longer
// string.
func TestExtractReferenceEmbedded(t *testing.T) {
	ref, ok := ExtractReference("https://pay.example.com/checkout/user_" + testUUID + "_days_30?src=email")
	if !ok {
		t.Fatalf("expected embedded reference to parse")
	}
	if ref.UserID != testUUID || ref.Days != 30 {
		t.Fatalf("unexpected parse: %+v", ref)
	}

	if _, ok := ExtractReference("no reference here"); ok {
		t.Fatalf("expected no match")
	}
}

// TestLooksLikeUserID tests the uuid shape check for metadata values.
func TestLooksLikeUserID(t *testing.T) {
	if !LooksLikeUserID(testUUID) {
		t.Fatalf("expected uuid shape to pass")
	}
	if LooksLikeUserID("12345") {
		t.Fatalf("expected non-uuid to fail")
	}
	if LooksLikeUserID("user_" + testUUID) {
		t.Fatalf("expected prefixed value to fail")
	}
}
