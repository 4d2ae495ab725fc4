package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/ThreeDotsLabs/watermill"

	"payhooks/pkg/storage"
)

// Pipeline sequences extraction, approval inference, identity resolution,
// and credit application into one terminal decision per delivery. Requests
// are independent; the pipeline holds no mutable state.
type Pipeline struct {
	Provider    string
	Description string
	Extractor   *Extractor
	Resolver    *Resolver
	Accounts    storage.AccountService
	Intents     storage.IntentStore
	Audit       storage.AuditLog
	Publisher   Publisher
	Rules       *RuleEngine
	Logger      *log.Logger
}

// Ready reports whether the pipeline can apply credit. Without a configured
// account service the request must fail before any processing.
func (p *Pipeline) Ready() bool {
	return p != nil && p.Accounts != nil
}

// Process turns one raw webhook body into a terminal decision. The returned
// error is non-nil only for the error outcome (failed credit application),
// which the caller surfaces as HTTP 500 so the provider redelivers.
func (p *Pipeline) Process(ctx context.Context, raw []byte) (Decision, error) {
	root := decodePayload(raw)
	if root == nil && len(raw) > 0 {
		IncParseError(p.Provider)
	}

	fields := p.Extractor.Extract(raw, root)
	fields.Approved = InferApproval(root, fields, p.Extractor.Limits)

	decision := Decision{
		Provider:          p.Provider,
		RequestID:         watermill.NewUUID(),
		EventName:         fields.EventName,
		Status:            fields.Status,
		Approved:          fields.Approved.String(),
		AmountCents:       fields.AmountCents,
		Reference:         fields.ReferenceRaw,
		PayerEmail:        fields.PayerEmail,
		ProviderPaymentID: fields.ProviderPaymentID,
		CreatedAt:         time.Now().UTC(),
		RawPayload:        raw,
		RawObject:         root,
	}

	switch fields.Approved {
	case ApprovalRejected:
		decision.Outcome = OutcomeIgnored
	case ApprovalUnknown:
		decision.Outcome = OutcomeSkipped
		decision.OutcomeReason = ReasonUnknownApproval
	case ApprovalApproved:
		return p.applyApproved(ctx, decision, root, fields)
	}

	p.finish(ctx, &decision)
	return decision, nil
}

func (p *Pipeline) applyApproved(ctx context.Context, decision Decision, root interface{}, fields Fields) (Decision, error) {
	resolution := p.Resolver.Resolve(ctx, root, fields)
	decision.UserID = resolution.UserID
	decision.Days = resolution.Days
	decision.IdentitySource = resolution.Source

	switch {
	case resolution.UserID == "" || resolution.Days <= 0:
		decision.Outcome = OutcomeSkipped
		decision.OutcomeReason = ReasonMissingUserOrDays
		if resolution.FailureReason != "" {
			decision.OutcomeReason = resolution.FailureReason
		}
	case fields.ProviderPaymentID == "":
		// unreachable with the synthetic id fallback, kept as a guard on
		// the idempotency invariant
		decision.Outcome = OutcomeSkipped
		decision.OutcomeReason = ReasonMissingPaymentID
	default:
		var amount int64
		if fields.AmountCents != nil {
			amount = *fields.AmountCents
		}
		err := p.Accounts.ApplyCredit(ctx, storage.ApplyCreditRequest{
			UserID:            resolution.UserID,
			Days:              resolution.Days,
			AmountCents:       amount,
			Provider:          p.Provider,
			ProviderPaymentID: fields.ProviderPaymentID,
			Description:       p.Description,
			RawEvent:          json.RawMessage(decision.RawPayload),
		})
		if err != nil {
			decision.Outcome = OutcomeError
			decision.OutcomeReason = err.Error()
			p.markIntent(ctx, resolution.IntentID, storage.IntentError)
			p.finish(ctx, &decision)
			return decision, fmt.Errorf("apply credit: %w", err)
		}
		decision.Outcome = OutcomeApplied
		p.markIntent(ctx, resolution.IntentID, storage.IntentApplied)
	}

	p.finish(ctx, &decision)
	return decision, nil
}

// RecordProbe audits and publishes a side-effect-free probe decision
// (handshake or healthcheck).
func (p *Pipeline) RecordProbe(ctx context.Context, outcome Outcome, raw []byte) Decision {
	decision := Decision{
		Provider:          p.Provider,
		RequestID:         watermill.NewUUID(),
		Outcome:           outcome,
		Approved:          ApprovalUnknown.String(),
		ProviderPaymentID: SyntheticPaymentID(raw),
		CreatedAt:         time.Now().UTC(),
		RawPayload:        raw,
		RawObject:         decodePayload(raw),
	}
	p.finish(ctx, &decision)
	return decision
}

// markIntent moves a claimed intent out of the matched state. Best effort:
// a failed patch leaves the intent matched for manual recovery.
func (p *Pipeline) markIntent(ctx context.Context, intentID string, status storage.IntentStatus) {
	if intentID == "" || p.Intents == nil {
		return
	}
	fields := map[string]interface{}{"resolved_at": time.Now().UTC()}
	if _, err := p.Intents.PatchIntent(ctx, intentID, storage.IntentMatched, status, fields); err != nil {
		if p.Logger != nil {
			p.Logger.Printf("mark intent %s %s failed: %v", intentID, status, err)
		}
	}
}

// finish writes the audit row and publishes the decision. Both are
// fire-and-forget: neither may change the outcome or block the response.
func (p *Pipeline) finish(ctx context.Context, decision *Decision) {
	IncDecision(decision.Outcome)

	if p.Audit != nil {
		if err := p.Audit.InsertLog(ctx, auditRow(*decision)); err != nil {
			IncAuditDrop()
			if p.Logger != nil {
				p.Logger.Printf("audit insert failed: %v", err)
			}
		}
	}

	if p.Publisher == nil || p.Rules == nil {
		return
	}
	for _, match := range p.Rules.Evaluate(*decision) {
		if err := p.Publisher.PublishForDrivers(ctx, match.Topic, *decision, match.Drivers); err != nil {
			if p.Logger != nil {
				p.Logger.Printf("publish %s failed: %v", match.Topic, err)
			}
		}
	}
}

func auditRow(decision Decision) storage.AuditRow {
	return storage.AuditRow{
		Provider:          decision.Provider,
		RequestID:         decision.RequestID,
		Outcome:           string(decision.Outcome),
		OutcomeReason:     decision.OutcomeReason,
		EventName:         decision.EventName,
		Status:            decision.Status,
		Approved:          decision.Approved,
		AmountCents:       decision.AmountCents,
		Reference:         decision.Reference,
		PayerEmail:        decision.PayerEmail,
		ProviderPaymentID: decision.ProviderPaymentID,
		UserID:            decision.UserID,
		Days:              decision.Days,
		IdentitySource:    decision.IdentitySource,
		RawPayload:        json.RawMessage(decision.RawPayload),
		CreatedAt:         decision.CreatedAt,
	}
}

// decodePayload decodes the body into a generic tree. Malformed bodies
// decode to nil so every field access degrades to absence instead of
// failing the request.
func decodePayload(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
