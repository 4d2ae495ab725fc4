package internal

import (
	"encoding/json"
	"regexp"
	"testing"
)

func decode(t *testing.T, raw string) interface{} {
	t.Helper()
	var out interface{}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return out
}

// TestFindByKeyDeeplyNested tests that a value several levels down is found
// when fixed paths would miss it.
func TestFindByKeyDeeplyNested(t *testing.T) {
	root := decode(t, `{"a":{"b":{"c":{"d":{"Status":"paid"}}}}}`)

	value, ok := FindByKey(root, []string{"status"}, DefaultScanLimits())
	if !ok {
		t.Fatalf("expected to find status")
	}
	if value != "paid" {
		t.Fatalf("expected paid, got %v", value)
	}
}

// TestFindByKeyDepthLimit tests that the scan gives up beyond the depth
// limit instead of erroring.
func TestFindByKeyDepthLimit(t *testing.T) {
	root := decode(t, `{"a":{"b":{"c":{"d":{"e":{"f":{"g":{"status":"paid"}}}}}}}}`)

	limits := ScanLimits{MaxDepth: 3, MaxBreadthPerArray: 16, MaxKeysVisited: 512}
	if _, ok := FindByKey(root, []string{"status"}, limits); ok {
		t.Fatalf("expected depth limit to hide the value")
	}
}

// TestFindByKeyShallowWins tests breadth-first order: a top-level match is
// returned before a nested one.
func TestFindByKeyShallowWins(t *testing.T) {
	root := decode(t, `{"status":"top","data":{"status":"nested"}}`)

	value, ok := FindByKey(root, []string{"status"}, DefaultScanLimits())
	if !ok || value != "top" {
		t.Fatalf("expected top-level status, got %v", value)
	}
}

// TestFindByKeyArrayBreadth tests that array elements past the breadth
// limit are ignored.
func TestFindByKeyArrayBreadth(t *testing.T) {
	items := make([]interface{}, 0, 20)
	for i := 0; i < 20; i++ {
		items = append(items, map[string]interface{}{"noise": float64(i)})
	}
	items = append(items, map[string]interface{}{"status": "paid"})
	root := map[string]interface{}{"items": items}

	limits := ScanLimits{MaxDepth: 6, MaxBreadthPerArray: 4, MaxKeysVisited: 512}
	if _, ok := FindByKey(root, []string{"status"}, limits); ok {
		t.Fatalf("expected breadth limit to hide the value")
	}
}

// TestScanRepeatedSubstructure tests that a payload referencing the same map
// twice terminates.
func TestScanRepeatedSubstructure(t *testing.T) {
	shared := map[string]interface{}{"noise": "x"}
	root := map[string]interface{}{
		"a": shared,
		"b": shared,
		"c": map[string]interface{}{"status": "paid"},
	}

	value, ok := FindByKey(root, []string{"status"}, DefaultScanLimits())
	if !ok || value != "paid" {
		t.Fatalf("expected to find status despite shared substructure, got %v", value)
	}
}

// TestFindStringByPattern tests value-pattern matching regardless of key.
func TestFindStringByPattern(t *testing.T) {
	root := decode(t, `{"data":{"checkout":{"slug":"user_123e4567-e89b-12d3-a456-426614174000_days_30"}}}`)

	text, ok := FindStringByPattern(root, regexp.MustCompile(`user_[0-9a-fA-F-]{36}_days_[0-9]+`), DefaultScanLimits())
	if !ok {
		t.Fatalf("expected to find reference string")
	}
	if text != "user_123e4567-e89b-12d3-a456-426614174000_days_30" {
		t.Fatalf("unexpected match: %q", text)
	}
}
