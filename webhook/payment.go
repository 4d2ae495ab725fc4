package webhook

import (
	"io"
	"log"
	"net/http"

	"payhooks/internal"
)

// PaymentHandler ingests provider webhook deliveries. Every classified
// outcome answers 200 so the provider stops redelivering; only configuration
// errors and failed credit application answer 500.
type PaymentHandler struct {
	pipeline     *internal.Pipeline
	provider     string
	maxBodyBytes int64
	logger       *log.Logger
}

func NewPaymentHandler(pipeline *internal.Pipeline, provider string, maxBodyBytes int64, logger *log.Logger) *PaymentHandler {
	if logger == nil {
		logger = log.Default()
	}
	if maxBodyBytes <= 0 {
		maxBodyBytes = 1 << 20
	}
	return &PaymentHandler{
		pipeline:     pipeline,
		provider:     provider,
		maxBodyBytes: maxBodyBytes,
		logger:       logger,
	}
}

func (h *PaymentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	internal.IncRequest(h.provider)

	if !h.pipeline.Ready() {
		writeError(w, http.StatusInternalServerError, "account service is not configured")
		return
	}

	raw, err := io.ReadAll(io.LimitReader(r.Body, h.maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "read body failed")
		return
	}

	decision, err := h.pipeline.Process(r.Context(), raw)
	h.logger.Printf("decision provider=%s request=%s outcome=%s reason=%s user=%s days=%d payment=%s",
		decision.Provider, decision.RequestID, decision.Outcome, decision.OutcomeReason,
		decision.UserID, decision.Days, decision.ProviderPaymentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, decision.OutcomeReason)
		return
	}

	switch decision.Outcome {
	case internal.OutcomeApplied:
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	case internal.OutcomeSkipped:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"received": true,
			"skipped":  true,
			"reason":   decision.OutcomeReason,
		})
	default:
		writeJSON(w, http.StatusOK, map[string]interface{}{"received": true})
	}
}

// HandshakeHandler acknowledges provider endpoint-verification probes. The
// probe is audited but never touches accounts or intents.
type HandshakeHandler struct {
	pipeline *internal.Pipeline
	logger   *log.Logger
}

func NewHandshakeHandler(pipeline *internal.Pipeline, logger *log.Logger) *HandshakeHandler {
	if logger == nil {
		logger = log.Default()
	}
	return &HandshakeHandler{pipeline: pipeline, logger: logger}
}

func (h *HandshakeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(io.LimitReader(r.Body, 1<<16))
	decision := h.pipeline.RecordProbe(r.Context(), internal.OutcomeHandshake, raw)
	h.logger.Printf("handshake provider=%s request=%s", decision.Provider, decision.RequestID)
	writeJSON(w, http.StatusOK, map[string]interface{}{"received": true})
}
