package internal

import "expvar"

var (
	requestsTotal  = expvar.NewMap("payhooks_requests_total")
	decisionsTotal = expvar.NewMap("payhooks_decisions_total")
	parseErrors    = expvar.NewMap("payhooks_parse_errors_total")
	publishErrors  = expvar.NewMap("payhooks_publish_errors_total")
	auditDrops     = expvar.NewInt("payhooks_audit_drops_total")
	scanLimitHits  = expvar.NewInt("payhooks_scan_limit_hits_total")
)

func IncRequest(provider string) {
	requestsTotal.Add(provider, 1)
}

func IncDecision(outcome Outcome) {
	decisionsTotal.Add(string(outcome), 1)
}

func IncParseError(provider string) {
	parseErrors.Add(provider, 1)
}

func IncPublishError(driver string) {
	publishErrors.Add(driver, 1)
}

func IncAuditDrop() {
	auditDrops.Add(1)
}

func IncScanLimitHit() {
	scanLimitHits.Add(1)
}
