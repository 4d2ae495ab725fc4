package webhook

import (
	"context"
	"log"
	"net/http"

	"payhooks/internal"
)

// Pinger is implemented by stores that can verify backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DiagHandler reports configuration presence and backend reachability.
// With ?write=true it also writes a healthcheck row through the audit path,
// exercising the full insert including the narrowed-column retry.
type DiagHandler struct {
	pipeline *internal.Pipeline
	provider string
	pinger   Pinger
	logger   *log.Logger
}

func NewDiagHandler(pipeline *internal.Pipeline, provider string, pinger Pinger, logger *log.Logger) *DiagHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &DiagHandler{pipeline: pipeline, provider: provider, pinger: pinger, logger: logger}
}

func (h *DiagHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	report := map[string]interface{}{
		"provider":           h.provider,
		"account_configured": h.pipeline.Ready(),
	}

	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			report["backend"] = "unreachable"
			report["backend_error"] = err.Error()
		} else {
			report["backend"] = "ok"
		}
	}

	if r.URL.Query().Get("write") == "true" {
		decision := h.pipeline.RecordProbe(r.Context(), internal.OutcomeHealthcheck, nil)
		report["write"] = "ok"
		report["request_id"] = decision.RequestID
	}

	writeJSON(w, http.StatusOK, report)
}

// HealthHandler is the liveness probe.
type HealthHandler struct{}

func (HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
