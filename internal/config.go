package internal

import (
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// AppConfig is the main application configuration, loaded once at startup
// and treated as immutable afterwards.
type AppConfig struct {
	// Server holds HTTP server settings.
	Server struct {
		Port           int    `yaml:"port"`
		ReadTimeoutMS  int64  `yaml:"read_timeout_ms"`
		WriteTimeoutMS int64  `yaml:"write_timeout_ms"`
		IdleTimeoutMS  int64  `yaml:"idle_timeout_ms"`
		ReadHeaderMS   int64  `yaml:"read_header_timeout_ms"`
		MaxBodyBytes   int64  `yaml:"max_body_bytes"`
		RateLimitRPS   int64  `yaml:"rate_limit_rps"`
		RateLimitBurst int64  `yaml:"rate_limit_burst"`
		MetricsEnabled bool   `yaml:"metrics_enabled"`
		MetricsPath    string `yaml:"metrics_path"`
	} `yaml:"server"`
	// Provider identifies the payment provider whose webhooks this process
	// ingests and the endpoints it serves.
	Provider ProviderConfig `yaml:"provider"`
	// Account points at the remote account/ledger service.
	Account AccountConfig `yaml:"account"`
	// Intents configures pending-intent matching.
	Intents IntentsConfig `yaml:"intents"`
	// Credit holds the credit-granting heuristics.
	Credit CreditConfig `yaml:"credit"`
	// Scan bounds the fallback payload scanner.
	Scan ScanConfig `yaml:"scan"`
	// Watermill configures decision publishing.
	Watermill WatermillConfig `yaml:"watermill"`
}

// Config is the full configuration including routing rules.
type Config struct {
	AppConfig   `yaml:",inline"`
	Rules       []Rule `yaml:"rules"`
	RulesStrict bool   `yaml:"rules_strict"`
}

// ProviderConfig names the provider and the paths it is served on.
type ProviderConfig struct {
	Name          string `yaml:"name"`
	Path          string `yaml:"path"`
	HandshakePath string `yaml:"handshake_path"`
	DiagPath      string `yaml:"diag_path"`
	HealthPath    string `yaml:"health_path"`
}

// AccountConfig holds the remote account service connection. Either APIKey
// or the OAuth client-credentials trio authenticates requests.
type AccountConfig struct {
	BaseURL           string `yaml:"base_url"`
	APIKey            string `yaml:"api_key"`
	OAuthTokenURL     string `yaml:"oauth_token_url"`
	OAuthClientID     string `yaml:"oauth_client_id"`
	OAuthClientSecret string `yaml:"oauth_client_secret"`
	TimeoutMS         int64  `yaml:"timeout_ms"`
	LogTable          string `yaml:"log_table"`
	IntentsTable      string `yaml:"intents_table"`
}

// IntentsConfig controls the pending-intent matching strategy. Mode remote
// reads intents through the account service; mode sql owns the tables.
type IntentsConfig struct {
	Enabled       bool           `yaml:"enabled"`
	Mode          string         `yaml:"mode"`
	WindowMinutes int            `yaml:"window_minutes"`
	Limit         int            `yaml:"limit"`
	SQL           SQLStoreConfig `yaml:"sql"`
}

// SQLStoreConfig configures the self-hosted intent/audit store.
type SQLStoreConfig struct {
	Driver       string `yaml:"driver"`
	DSN          string `yaml:"dsn"`
	Dialect      string `yaml:"dialect"`
	IntentsTable string `yaml:"intents_table"`
	AuditTable   string `yaml:"audit_table"`
	AutoMigrate  bool   `yaml:"auto_migrate"`
}

// CreditConfig holds the amount→days table and the ledger description.
type CreditConfig struct {
	AmountDays  map[int64]int `yaml:"amount_days"`
	Description string        `yaml:"description"`
}

// ScanConfig bounds the fallback payload scanner.
type ScanConfig struct {
	MaxDepth           int `yaml:"max_depth"`
	MaxBreadthPerArray int `yaml:"max_breadth_per_array"`
	MaxKeysVisited     int `yaml:"max_keys_visited"`
}

// WatermillConfig holds the configuration for the decision publisher.
type WatermillConfig struct {
	Driver       string             `yaml:"driver"`
	Drivers      []string           `yaml:"drivers"`
	GoChannel    GoChannelConfig    `yaml:"gochannel"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	NATS         NATSConfig         `yaml:"nats"`
	AMQP         AMQPConfig         `yaml:"amqp"`
	SQL          SQLConfig          `yaml:"sql"`
	HTTP         HTTPConfig         `yaml:"http"`
	LedgerQueue  LedgerQueueConfig  `yaml:"ledgerqueue"`
	PublishRetry PublishRetryConfig `yaml:"publish_retry"`
}

// GoChannelConfig holds configuration for the GoChannel pub/sub.
type GoChannelConfig struct {
	OutputChannelBuffer            int64 `yaml:"output_buffer"`
	Persistent                     bool  `yaml:"persistent"`
	BlockPublishUntilSubscriberAck bool  `yaml:"block_publish_until_subscriber_ack"`
}

// KafkaConfig holds configuration for the Kafka pub/sub.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
}

// NATSConfig holds configuration for the NATS streaming pub/sub.
type NATSConfig struct {
	ClusterID string `yaml:"cluster_id"`
	ClientID  string `yaml:"client_id"`
	URL       string `yaml:"url"`
}

// AMQPConfig holds configuration for the AMQP pub/sub.
type AMQPConfig struct {
	URL  string `yaml:"url"`
	Mode string `yaml:"mode"`
}

// SQLConfig holds configuration for the SQL pub/sub.
type SQLConfig struct {
	Driver               string `yaml:"driver"`
	DSN                  string `yaml:"dsn"`
	Dialect              string `yaml:"dialect"`
	AutoInitializeSchema bool   `yaml:"auto_initialize_schema"`
}

// HTTPConfig holds configuration for the HTTP publisher.
type HTTPConfig struct {
	BaseURL string `yaml:"base_url"`
	Mode    string `yaml:"mode"`
}

// LedgerQueueConfig holds configuration for the job-queue publisher, which
// inserts decisions into a Postgres jobs table for out-of-process workers.
type LedgerQueueConfig struct {
	Driver      string   `yaml:"driver"`
	DSN         string   `yaml:"dsn"`
	Table       string   `yaml:"table"`
	Queue       string   `yaml:"queue"`
	Kind        string   `yaml:"kind"`
	MaxAttempts int      `yaml:"max_attempts"`
	Priority    int      `yaml:"priority"`
	Tags        []string `yaml:"tags"`
}

type PublishRetryConfig struct {
	Attempts int `yaml:"attempts"`
	DelayMS  int `yaml:"delay_ms"`
}

// LoadConfig loads the full configuration, including routing rules, from a
// YAML file. It expands environment variables, applies defaults, and
// normalizes rules.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, err
	}

	applyDefaults(&cfg.AppConfig)
	if len(cfg.Rules) == 0 {
		cfg.Rules = defaultRules()
	}
	normalized, err := normalizeRules(cfg.Rules)
	if err != nil {
		return cfg, err
	}
	cfg.Rules = normalized

	return cfg, nil
}

// RulesConfig carries the routing rules into the rule engine.
type RulesConfig struct {
	Rules  []Rule `yaml:"rules"`
	Strict bool   `yaml:"rules_strict"`
	Logger *log.Logger
}

// ScanLimits converts the scan section into scanner limits.
func (c ScanConfig) Limits() ScanLimits {
	limits := DefaultScanLimits()
	if c.MaxDepth > 0 {
		limits.MaxDepth = c.MaxDepth
	}
	if c.MaxBreadthPerArray > 0 {
		limits.MaxBreadthPerArray = c.MaxBreadthPerArray
	}
	if c.MaxKeysVisited > 0 {
		limits.MaxKeysVisited = c.MaxKeysVisited
	}
	return limits
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeoutMS == 0 {
		cfg.Server.ReadTimeoutMS = 5000
	}
	if cfg.Server.WriteTimeoutMS == 0 {
		cfg.Server.WriteTimeoutMS = 10000
	}
	if cfg.Server.IdleTimeoutMS == 0 {
		cfg.Server.IdleTimeoutMS = 60000
	}
	if cfg.Server.ReadHeaderMS == 0 {
		cfg.Server.ReadHeaderMS = 5000
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
	if cfg.Provider.Name == "" {
		cfg.Provider.Name = "default"
	}
	if cfg.Provider.Path == "" {
		cfg.Provider.Path = "/webhooks/payments"
	}
	if cfg.Provider.HandshakePath == "" {
		cfg.Provider.HandshakePath = "/webhooks/payments/handshake"
	}
	if cfg.Provider.DiagPath == "" {
		cfg.Provider.DiagPath = "/webhooks/payments/diag"
	}
	if cfg.Provider.HealthPath == "" {
		cfg.Provider.HealthPath = "/healthz"
	}
	if cfg.Account.TimeoutMS == 0 {
		cfg.Account.TimeoutMS = 10000
	}
	if cfg.Account.LogTable == "" {
		cfg.Account.LogTable = "webhook_decision_log"
	}
	if cfg.Account.IntentsTable == "" {
		cfg.Account.IntentsTable = "payment_intents"
	}
	if cfg.Intents.Mode == "" {
		cfg.Intents.Mode = "remote"
	}
	if cfg.Intents.WindowMinutes == 0 {
		cfg.Intents.WindowMinutes = 60
	}
	if cfg.Intents.Limit == 0 {
		cfg.Intents.Limit = 5
	}
	if cfg.Intents.SQL.IntentsTable == "" {
		cfg.Intents.SQL.IntentsTable = "payment_intents"
	}
	if cfg.Intents.SQL.AuditTable == "" {
		cfg.Intents.SQL.AuditTable = "webhook_decision_log"
	}
	if len(cfg.Credit.AmountDays) == 0 {
		cfg.Credit.AmountDays = map[int64]int{
			799:  30,
			1999: 90,
			3500: 180,
			5999: 365,
		}
	}
	if cfg.Credit.Description == "" {
		cfg.Credit.Description = "payment webhook credit"
	}
	if cfg.Watermill.Driver == "" {
		cfg.Watermill.Driver = "gochannel"
	}
	if cfg.Watermill.GoChannel.OutputChannelBuffer == 0 {
		cfg.Watermill.GoChannel.OutputChannelBuffer = 64
	}
	if cfg.Watermill.HTTP.Mode == "" {
		cfg.Watermill.HTTP.Mode = "topic_url"
	}
	if cfg.Watermill.LedgerQueue.Table == "" {
		cfg.Watermill.LedgerQueue.Table = "credit_jobs"
	}
	if cfg.Watermill.LedgerQueue.Queue == "" {
		cfg.Watermill.LedgerQueue.Queue = "default"
	}
	if cfg.Watermill.LedgerQueue.Kind == "" {
		cfg.Watermill.LedgerQueue.Kind = "payhooks.decision"
	}
	if cfg.Watermill.LedgerQueue.MaxAttempts == 0 {
		cfg.Watermill.LedgerQueue.MaxAttempts = 25
	}
	if cfg.Watermill.PublishRetry.Attempts == 0 {
		cfg.Watermill.PublishRetry.Attempts = 3
	}
	if cfg.Watermill.PublishRetry.DelayMS == 0 {
		cfg.Watermill.PublishRetry.DelayMS = 500
	}
}

func defaultRules() []Rule {
	return []Rule{
		{When: `outcome == "applied"`, Emit: "payments.applied"},
		{When: `outcome == "ignored"`, Emit: "payments.ignored"},
		{When: `outcome == "skipped"`, Emit: "payments.skipped"},
		{When: `outcome == "error"`, Emit: "payments.error"},
	}
}

func normalizeRules(rules []Rule) ([]Rule, error) {
	out := make([]Rule, 0, len(rules))
	for i := range rules {
		rule := rules[i]
		rule.When = strings.TrimSpace(rule.When)
		rule.Emit = strings.TrimSpace(rule.Emit)
		if rule.When == "" || rule.Emit == "" {
			return nil, fmt.Errorf("rule %d is missing when or emit", i)
		}
		if len(rule.Drivers) > 0 {
			drivers := make([]string, 0, len(rule.Drivers))
			for _, driver := range rule.Drivers {
				trimmed := strings.TrimSpace(driver)
				if trimmed != "" {
					drivers = append(drivers, trimmed)
				}
			}
			rule.Drivers = drivers
		}
		out = append(out, rule)
	}
	return out, nil
}
