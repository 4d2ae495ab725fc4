package internal

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/PaesslerAG/jsonpath"
)

// Fixed access paths per semantic field, hand-ordered: known top-level
// names first, the same names nested under data, then provider-specific
// synonyms. The scanner key sets below are the last resort.
var (
	eventNamePaths = []string{
		"$.event", "$.data.event",
		"$.event_name", "$.data.event_name",
		"$.eventName", "$.data.eventName",
		"$.type", "$.data.type",
		"$.event_type", "$.data.event_type",
	}
	eventNameKeys = []string{"event", "event_name", "eventname", "event_type"}

	statusPaths = []string{
		"$.status", "$.data.status",
		"$.payment_status", "$.data.payment_status",
		"$.paymentStatus", "$.data.paymentStatus",
		"$.state", "$.data.state",
		"$.data.charge.status", "$.data.payment.status",
	}
	statusKeys = []string{"status", "payment_status", "state"}

	amountPaths = []string{
		"$.amount", "$.data.amount",
		"$.amount_cents", "$.data.amount_cents",
		"$.amountCents", "$.data.amountCents",
		"$.total", "$.data.total",
		"$.value", "$.data.value",
		"$.data.charge.amount", "$.data.payment.amount",
	}
	amountKeys = []string{"amount", "amount_cents", "total"}

	paidAmountPaths = []string{
		"$.paid_amount", "$.data.paid_amount",
		"$.paidAmount", "$.data.paidAmount",
		"$.amount_paid", "$.data.amount_paid",
		"$.paid_value", "$.data.paid_value",
	}
	paidAmountKeys = []string{"paid_amount", "amount_paid", "paidamount", "paid_value"}

	referencePaths = []string{
		"$.reference", "$.data.reference",
		"$.external_reference", "$.data.external_reference",
		"$.reference_id", "$.data.reference_id",
		"$.referenceId", "$.data.referenceId",
		"$.invoice_slug", "$.data.invoice_slug",
		"$.metadata.reference", "$.data.metadata.reference",
		"$.order_nsu", "$.data.order_nsu",
	}
	referenceKeys = []string{"reference", "external_reference", "reference_id", "invoice_slug"}

	emailPaths = []string{
		"$.customer.email", "$.data.customer.email",
		"$.payer.email", "$.data.payer.email",
		"$.buyer.email", "$.data.buyer.email",
		"$.customer_email", "$.data.customer_email",
		"$.payer_email", "$.data.payer_email",
		"$.email", "$.data.email",
	}
	emailKeys = []string{"email", "customer_email", "payer_email", "buyer_email"}

	paymentIDPaths = []string{
		"$.payment_id", "$.data.payment_id",
		"$.paymentId", "$.data.paymentId",
		"$.transaction_id", "$.data.transaction_id",
		"$.transactionId", "$.data.transactionId",
		"$.transaction_nsu", "$.data.transaction_nsu",
		"$.charge_id", "$.data.charge_id",
		"$.data.id", "$.id",
	}
	paymentIDKeys = []string{"payment_id", "transaction_id", "transaction_nsu", "charge_id", "nsu"}
)

// Extractor resolves each semantic field from an arbitrarily shaped payload:
// fixed paths first, then a bounded breadth-first scan.
type Extractor struct {
	Limits ScanLimits
}

func NewExtractor(limits ScanLimits) *Extractor {
	if limits.MaxDepth <= 0 {
		limits = DefaultScanLimits()
	}
	return &Extractor{Limits: limits}
}

// Extract computes the normalized fields for a payload. root is the decoded
// body (may be nil for malformed bodies); raw is the body bytes used for the
// synthetic payment id.
func (e *Extractor) Extract(raw []byte, root interface{}) Fields {
	fields := Fields{
		EventName:         e.stringField(root, eventNamePaths, eventNameKeys),
		ReferenceRaw:      e.stringField(root, referencePaths, referenceKeys),
		PayerEmail:        strings.TrimSpace(e.stringField(root, emailPaths, emailKeys)),
		ProviderPaymentID: e.stringField(root, paymentIDPaths, paymentIDKeys),
		AmountCents:       e.amountField(root, amountPaths, amountKeys),
		PaidAmountCents:   e.amountField(root, paidAmountPaths, paidAmountKeys),
	}
	fields.Status = strings.ToLower(strings.TrimSpace(e.stringField(root, statusPaths, statusKeys)))
	if fields.ProviderPaymentID == "" {
		fields.ProviderPaymentID = SyntheticPaymentID(raw)
	}
	return fields
}

func (e *Extractor) stringField(root interface{}, paths []string, keys []string) string {
	if value, ok := firstPath(root, paths); ok {
		if text := asString(value); text != "" {
			return text
		}
	}
	if value, ok := FindByKey(root, keys, e.Limits); ok {
		return asString(value)
	}
	return ""
}

func (e *Extractor) amountField(root interface{}, paths []string, keys []string) *int64 {
	if value, ok := firstPath(root, paths); ok {
		if cents := NormalizeAmountCents(value); cents != nil {
			return cents
		}
	}
	if value, ok := FindByKey(root, keys, e.Limits); ok {
		return NormalizeAmountCents(value)
	}
	return nil
}

// firstPath tries each fixed path in order and returns the first non-nil
// value. Path misses are expected; errors from the path library mean the
// path does not exist in this payload.
func firstPath(root interface{}, paths []string) (interface{}, bool) {
	if root == nil {
		return nil, false
	}
	for _, path := range paths {
		value, err := jsonpath.Get(path, root)
		if err != nil || value == nil {
			continue
		}
		return value, true
	}
	return nil, false
}

// NormalizeAmountCents converts a provider amount of unknown unit into a
// minor-unit (cents) integer. A numeric value under 1000 with a fractional
// part is a major-unit amount and gets multiplied by 100; integral values
// are assumed to already be cents. Returns nil when no amount is present or
// the value is not numeric.
func NormalizeAmountCents(value interface{}) *int64 {
	switch typed := value.(type) {
	case nil:
		return nil
	case int:
		v := int64(typed)
		return &v
	case int64:
		v := typed
		return &v
	case float64:
		return normalizeFloatAmount(typed)
	case json.Number:
		return NormalizeAmountCents(typed.String())
	case string:
		trimmed := strings.TrimSpace(typed)
		if trimmed == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return nil
		}
		return normalizeFloatAmount(parsed)
	default:
		return nil
	}
}

func normalizeFloatAmount(value float64) *int64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	if value != math.Trunc(value) && math.Abs(value) < 1000 {
		cents := int64(math.Round(value * 100))
		return &cents
	}
	cents := int64(math.Round(value))
	return &cents
}

// SyntheticPaymentID derives a stable payment id from the raw body so the
// same payload always logs under the same key.
func SyntheticPaymentID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])[:32]
}

func asString(value interface{}) string {
	switch typed := value.(type) {
	case string:
		return strings.TrimSpace(typed)
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		if typed == math.Trunc(typed) {
			return strconv.FormatInt(int64(typed), 10)
		}
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case json.Number:
		return typed.String()
	default:
		return ""
	}
}
