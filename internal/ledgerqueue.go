package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// ledgerQueuePublisher inserts decisions into a Postgres jobs table so
// out-of-process workers can pick them up (fulfillment mails, ledger
// reconciliation).
type ledgerQueuePublisher struct {
	db  *sql.DB
	cfg LedgerQueueConfig
}

func newLedgerQueuePublisher(cfg LedgerQueueConfig) (*ledgerQueuePublisher, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = "postgres"
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledgerqueue dsn is required")
	}
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	return &ledgerQueuePublisher{db: db, cfg: cfg}, nil
}

// Publish inserts one job row per decision.
func (p *ledgerQueuePublisher) Publish(ctx context.Context, topic string, decision Decision) error {
	argsPayload, err := json.Marshal(decision)
	if err != nil {
		return err
	}

	metadata := map[string]interface{}{
		"provider":            decision.Provider,
		"outcome":             decision.Outcome,
		"provider_payment_id": decision.ProviderPaymentID,
		"topic":               topic,
	}
	metadataPayload, err := json.Marshal(metadata)
	if err != nil {
		return err
	}

	table := strings.TrimSpace(p.cfg.Table)
	if table == "" {
		table = "credit_jobs"
	}

	query := fmt.Sprintf(
		`INSERT INTO %s (args, kind, max_attempts, metadata, priority, queue, scheduled_at, tags)
VALUES ($1, $2, $3, $4, $5, $6, now(), $7)`,
		table,
	)

	_, err = p.db.ExecContext(
		ctx,
		query,
		string(argsPayload),
		p.cfg.Kind,
		p.cfg.MaxAttempts,
		string(metadataPayload),
		p.cfg.Priority,
		p.cfg.Queue,
		pq.Array(p.cfg.Tags),
	)
	return err
}

func (p *ledgerQueuePublisher) Close() error {
	if p.db == nil {
		return nil
	}
	return p.db.Close()
}

// PublishForDrivers is a convenience method that calls Publish.
func (p *ledgerQueuePublisher) PublishForDrivers(ctx context.Context, topic string, decision Decision, drivers []string) error {
	return p.Publish(ctx, topic, decision)
}
