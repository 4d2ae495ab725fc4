// Package sqlstore implements the intent store and audit log on a database
// this service owns, for deployments without the remote PostgREST API.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"payhooks/pkg/storage"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Config mirrors the intents.sql configuration section.
type Config struct {
	Driver       string
	DSN          string
	Dialect      string
	IntentsTable string
	AuditTable   string
	AutoMigrate  bool
}

// Store implements storage.IntentStore and storage.AuditLog on top of GORM.
type Store struct {
	db           *gorm.DB
	intentsTable string
	auditTable   string
}

type intentRow struct {
	ID          string     `gorm:"column:id;size:64;primaryKey"`
	Provider    string     `gorm:"column:provider;size:32;not null;index"`
	UserID      string     `gorm:"column:user_id;size:64;not null"`
	Days        int        `gorm:"column:days;not null"`
	AmountCents int64      `gorm:"column:amount_cents;not null;index"`
	Status      string     `gorm:"column:status;size:16;not null;index"`
	MatchedAt   *time.Time `gorm:"column:matched_at"`
	ResolvedAt  *time.Time `gorm:"column:resolved_at"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime;index"`
}

type auditRow struct {
	ID                uint      `gorm:"column:id;primaryKey;autoIncrement"`
	Provider          string    `gorm:"column:provider;size:32;not null"`
	RequestID         string    `gorm:"column:request_id;size:64"`
	Outcome           string    `gorm:"column:outcome;size:16;not null"`
	OutcomeReason     string    `gorm:"column:outcome_reason;size:64"`
	EventName         string    `gorm:"column:event_name;size:128"`
	Status            string    `gorm:"column:status;size:64"`
	Approved          string    `gorm:"column:approved;size:8"`
	AmountCents       *int64    `gorm:"column:amount_cents"`
	Reference         string    `gorm:"column:reference;size:255"`
	PayerEmail        string    `gorm:"column:payer_email;size:255"`
	ProviderPaymentID string    `gorm:"column:provider_payment_id;size:128;index"`
	UserID            string    `gorm:"column:user_id;size:64"`
	Days              int       `gorm:"column:days"`
	IdentitySource    string    `gorm:"column:identity_source;size:32"`
	RawPayload        string    `gorm:"column:raw_payload;type:text"`
	CreatedAt         time.Time `gorm:"column:created_at"`
}

// Open creates a GORM-backed intent and audit store.
func Open(cfg Config) (*Store, error) {
	if cfg.Driver == "" && cfg.Dialect == "" {
		return nil, errors.New("storage driver or dialect is required")
	}
	if cfg.DSN == "" {
		return nil, errors.New("storage dsn is required")
	}
	driver := normalizeDriver(cfg.Driver)
	if driver == "" {
		driver = normalizeDriver(cfg.Dialect)
	}
	if driver == "" {
		return nil, errors.New("unsupported storage driver")
	}

	gormDB, err := openGorm(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	store := &Store{
		db:           gormDB,
		intentsTable: cfg.IntentsTable,
		auditTable:   cfg.AuditTable,
	}
	if store.intentsTable == "" {
		store.intentsTable = "payment_intents"
	}
	if store.auditTable == "" {
		store.auditTable = "webhook_decision_log"
	}
	if cfg.AutoMigrate {
		if err := store.migrate(); err != nil {
			return nil, err
		}
	}
	return store, nil
}

// Close closes the underlying DB connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SelectPendingIntents returns candidate intents, newest first.
func (s *Store) SelectPendingIntents(ctx context.Context, filter storage.IntentFilter) ([]storage.PendingIntent, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("store is not initialized")
	}
	query := s.intentsDB().WithContext(ctx)
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.AmountCents > 0 {
		query = query.Where("amount_cents = ?", filter.AmountCents)
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}
	query = query.Order("created_at desc")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var rows []intentRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	intents := make([]storage.PendingIntent, 0, len(rows))
	for _, row := range rows {
		intents = append(intents, storage.PendingIntent{
			ID:          row.ID,
			UserID:      row.UserID,
			Days:        row.Days,
			AmountCents: row.AmountCents,
			Status:      storage.IntentStatus(row.Status),
			CreatedAt:   row.CreatedAt,
		})
	}
	return intents, nil
}

// PatchIntent updates the intent only while it still has the expected status.
// RowsAffected is the conditional-update result callers inspect for claim
// races.
func (s *Store) PatchIntent(ctx context.Context, id string, expected, next storage.IntentStatus, fields map[string]interface{}) (int64, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("store is not initialized")
	}
	updates := make(map[string]interface{}, len(fields)+1)
	for key, value := range fields {
		updates[key] = value
	}
	updates["status"] = string(next)

	result := s.intentsDB().
		WithContext(ctx).
		Where("id = ? AND status = ?", id, string(expected)).
		Updates(updates)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// InsertLog persists one decision row.
func (s *Store) InsertLog(ctx context.Context, row storage.AuditRow) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	data := auditRow{
		Provider:          row.Provider,
		RequestID:         row.RequestID,
		Outcome:           row.Outcome,
		OutcomeReason:     row.OutcomeReason,
		EventName:         row.EventName,
		Status:            row.Status,
		Approved:          row.Approved,
		AmountCents:       row.AmountCents,
		Reference:         row.Reference,
		PayerEmail:        row.PayerEmail,
		ProviderPaymentID: row.ProviderPaymentID,
		UserID:            row.UserID,
		Days:              row.Days,
		IdentitySource:    row.IdentitySource,
		RawPayload:        string(row.RawPayload),
		CreatedAt:         row.CreatedAt,
	}
	if data.CreatedAt.IsZero() {
		data.CreatedAt = time.Now().UTC()
	}
	return s.auditDB().WithContext(ctx).Create(&data).Error
}

// Ping verifies the connection for the diag endpoint.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return errors.New("store is not initialized")
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Store) migrate() error {
	if err := s.intentsDB().AutoMigrate(&intentRow{}); err != nil {
		return err
	}
	return s.auditDB().AutoMigrate(&auditRow{})
}

func (s *Store) intentsDB() *gorm.DB {
	return s.db.Table(s.intentsTable)
}

func (s *Store) auditDB() *gorm.DB {
	return s.db.Table(s.auditTable)
}

func normalizeDriver(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	switch value {
	case "postgres", "postgresql", "pgx":
		return "postgres"
	case "mysql":
		return "mysql"
	case "sqlite", "sqlite3":
		return "sqlite"
	default:
		return ""
	}
}

func openGorm(driver, dsn string) (*gorm.DB, error) {
	switch driver {
	case "postgres":
		return gorm.Open(postgres.Open(dsn), &gorm.Config{})
	case "mysql":
		return gorm.Open(mysql.Open(dsn), &gorm.Config{})
	case "sqlite":
		return gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", driver)
	}
}
