package internal

import (
	"strings"

	"github.com/PaesslerAG/jsonpath"
)

// Explicit boolean flags, nested-under-data first. The first path holding a
// recognized boolean-like value wins.
var approvalFlagPaths = []string{
	"$.data.approved", "$.data.paid", "$.data.success", "$.data.is_paid",
	"$.approved", "$.paid", "$.success", "$.is_paid",
}

// "Something happened at" fields whose mere presence implies approval.
var paidTimestampPaths = []string{
	"$.paid_at", "$.data.paid_at",
	"$.paidAt", "$.data.paidAt",
	"$.approved_at", "$.data.approved_at",
	"$.confirmed_at", "$.data.confirmed_at",
	"$.captured_at", "$.data.captured_at",
}

var paidTimestampKeys = []string{
	"paid_at", "paidat",
	"approved_at", "approvedat",
	"confirmed_at", "confirmedat",
	"captured_at", "capturedat",
}

var statusAllowList = newStringSet(
	"approved", "paid", "succeeded", "success", "completed", "confirmed",
	"captured", "settled", "authorized",
	// Portuguese provider variants
	"aprovado", "aprovada", "pago", "paga", "confirmado", "confirmada",
	"concluido", "concluida", "autorizado", "autorizada",
)

var statusDenyList = newStringSet(
	"rejected", "refused", "failed", "failure", "canceled", "cancelled",
	"chargeback", "refunded", "expired", "voided",
	"rejeitado", "rejeitada", "recusado", "recusada", "falhou", "falha",
	"cancelado", "cancelada", "estornado", "estornada", "expirado",
	"expirada", "reembolsado", "reembolsada",
)

var eventAllowList = newStringSet(
	"payment.approved", "payment.confirmed", "payment.succeeded",
	"payment.completed", "purchase.approved", "order.paid", "invoice.paid",
	"charge.succeeded", "charge.paid", "checkout.completed", "pix.paid",
	"transaction.approved",
)

var eventDenyList = newStringSet(
	"payment.rejected", "payment.refused", "payment.failed",
	"payment.canceled", "payment.expired", "purchase.refused",
	"order.canceled", "charge.failed", "charge.refunded",
	"charge.chargeback", "transaction.rejected", "subscription.canceled",
)

// InferApproval runs the ordered approval decision list; the first matching
// rule wins. Unresolvable payloads stay unknown so that ambiguity surfaces
// as its own loggable state instead of a silently dropped payment.
func InferApproval(root interface{}, fields Fields, limits ScanLimits) Approval {
	// 1. explicit boolean flags
	if root != nil {
		for _, path := range approvalFlagPaths {
			value, err := jsonpath.Get(path, root)
			if err != nil {
				continue
			}
			if approved, ok := asBoolFlag(value); ok {
				if approved {
					return ApprovalApproved
				}
				return ApprovalRejected
			}
		}
	}

	// 2. paid/approved/confirmed/captured timestamps
	if value, ok := firstPath(root, paidTimestampPaths); ok && asString(value) != "" {
		return ApprovalApproved
	}
	if value, ok := FindByKey(root, paidTimestampKeys, limits); ok && asString(value) != "" {
		return ApprovalApproved
	}

	// 3. amount-based inference
	if fields.AmountCents != nil && fields.PaidAmountCents != nil {
		if *fields.PaidAmountCents >= *fields.AmountCents {
			return ApprovalApproved
		}
		if *fields.PaidAmountCents == 0 {
			return ApprovalRejected
		}
	}

	// 4. status allow/deny lists
	if fields.Status != "" {
		if _, ok := statusAllowList[fields.Status]; ok {
			return ApprovalApproved
		}
		if _, ok := statusDenyList[fields.Status]; ok {
			return ApprovalRejected
		}
	}

	// 5. event-name allow/deny lists
	if name := normalizeEventName(fields.EventName); name != "" {
		if _, ok := eventAllowList[name]; ok {
			return ApprovalApproved
		}
		if _, ok := eventDenyList[name]; ok {
			return ApprovalRejected
		}
		// schema drift: fall back to the terminal segment against the
		// status lists ("payment_approved", "order-paid", ...)
		if segment := lastEventSegment(name); segment != "" {
			if _, ok := statusAllowList[segment]; ok {
				return ApprovalApproved
			}
			if _, ok := statusDenyList[segment]; ok {
				return ApprovalRejected
			}
		}
	}

	return ApprovalUnknown
}

// asBoolFlag recognizes the boolean-like encodings providers actually send:
// true/false, "true"/"false", 1/0, "1"/"0".
func asBoolFlag(value interface{}) (bool, bool) {
	switch typed := value.(type) {
	case bool:
		return typed, true
	case float64:
		if typed == 1 {
			return true, true
		}
		if typed == 0 {
			return false, true
		}
	case int:
		if typed == 1 {
			return true, true
		}
		if typed == 0 {
			return false, true
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(typed)) {
		case "true", "1":
			return true, true
		case "false", "0":
			return false, true
		}
	}
	return false, false
}

func normalizeEventName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", ".")
	name = strings.ReplaceAll(name, "-", ".")
	return name
}

func lastEventSegment(name string) string {
	parts := strings.Split(name, ".")
	return parts[len(parts)-1]
}

func newStringSet(values ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[value] = struct{}{}
	}
	return set
}
