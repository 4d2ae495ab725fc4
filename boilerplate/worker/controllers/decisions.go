package controllers

import (
	"context"
	"log"

	"payhooks/pkg/worker"
)

// HandleApplied is where fulfillment side effects go: welcome emails,
// entitlement cache warmup, analytics.
func HandleApplied(ctx context.Context, evt *worker.Event) error {
	log.Printf("applied user=%s days=%d payment=%s", evt.Decision.UserID, evt.Decision.Days, evt.Decision.ProviderPaymentID)
	return nil
}

// HandleSkipped is where skipped payments get routed for manual review.
func HandleSkipped(ctx context.Context, evt *worker.Event) error {
	log.Printf("skipped reason=%s payment=%s", evt.Decision.OutcomeReason, evt.Decision.ProviderPaymentID)
	return nil
}
