// Package rest implements the account-service collaborators over a
// PostgREST-style HTTP API: RPC endpoints for credit and email resolution,
// plain table endpoints for audit rows and pending intents.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"payhooks/pkg/storage"
)

// Config holds the remote service connection. APIKey and the OAuth trio are
// alternatives; when OAuthTokenURL is set the client fetches bearer tokens
// via client credentials instead of sending the static key.
type Config struct {
	BaseURL           string
	APIKey            string
	OAuthTokenURL     string
	OAuthClientID     string
	OAuthClientSecret string
	Timeout           time.Duration
	LogTable          string
	IntentsTable      string
}

// Client talks to the remote account service. It implements
// storage.AccountService, storage.AuditLog, and storage.IntentStore.
type Client struct {
	baseURL      string
	apiKey       string
	logTable     string
	intentsTable string
	httpClient   *http.Client
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rest: base_url is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.LogTable == "" {
		cfg.LogTable = "webhook_decision_log"
	}
	if cfg.IntentsTable == "" {
		cfg.IntentsTable = "payment_intents"
	}

	httpClient := &http.Client{Timeout: cfg.Timeout}
	if cfg.OAuthTokenURL != "" {
		oauthCfg := clientcredentials.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			TokenURL:     cfg.OAuthTokenURL,
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
		httpClient = oauthCfg.Client(ctx)
		httpClient.Timeout = cfg.Timeout
	}

	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		logTable:     cfg.LogTable,
		intentsTable: cfg.IntentsTable,
		httpClient:   httpClient,
	}, nil
}

// ApplyCredit calls the apply_credit RPC. Deduplication on the provider
// payment id is the remote side's contract.
func (c *Client) ApplyCredit(ctx context.Context, req storage.ApplyCreditRequest) error {
	body := map[string]interface{}{
		"p_user_id":             req.UserID,
		"p_days":                req.Days,
		"p_amount_cents":        req.AmountCents,
		"p_provider":            req.Provider,
		"p_provider_payment_id": req.ProviderPaymentID,
		"p_description":         req.Description,
	}
	if len(req.RawEvent) > 0 {
		body["p_raw_event"] = req.RawEvent
	}
	resp, err := c.do(ctx, http.MethodPost, "/rpc/apply_credit", nil, body, nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("rest: apply_credit: %s", responseError(resp))
	}
	return nil
}

// ResolveUserByEmail calls the resolve_user_by_email RPC. The remote function
// has answered in three shapes over time (bare id, one-element row list, and
// a row object), so all three are accepted. No match is ("", nil).
func (c *Client) ResolveUserByEmail(ctx context.Context, email string) (string, error) {
	body := map[string]interface{}{"p_email": strings.ToLower(strings.TrimSpace(email))}
	resp, err := c.do(ctx, http.MethodPost, "/rpc/resolve_user_by_email", nil, body, nil)
	if err != nil {
		return "", err
	}
	defer drain(resp)
	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("rest: resolve_user_by_email: %s", responseError(resp))
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("rest: resolve_user_by_email: read body: %w", err)
	}
	return parseUserID(payload)
}

func parseUserID(payload []byte) (string, error) {
	var value interface{}
	if err := json.Unmarshal(payload, &value); err != nil {
		return "", fmt.Errorf("rest: resolve_user_by_email: decode: %w", err)
	}
	switch typed := value.(type) {
	case nil:
		return "", nil
	case string:
		return typed, nil
	case []interface{}:
		if len(typed) == 0 {
			return "", nil
		}
		if row, ok := typed[0].(map[string]interface{}); ok {
			return userIDField(row), nil
		}
		if id, ok := typed[0].(string); ok {
			return id, nil
		}
		return "", nil
	case map[string]interface{}:
		return userIDField(typed), nil
	default:
		return "", nil
	}
}

func userIDField(row map[string]interface{}) string {
	for _, key := range []string{"user_id", "id", "uid"} {
		if id, ok := row[key].(string); ok && id != "" {
			return id
		}
	}
	return ""
}

// auditColumns is the full insert shape; safeAuditColumns is the subset every
// deployed schema is known to have, used for the narrowed retry when the
// remote rejects an unknown column.
var safeAuditColumns = map[string]struct{}{
	"provider":            {},
	"outcome":             {},
	"outcome_reason":      {},
	"event_name":          {},
	"status":              {},
	"approved":            {},
	"provider_payment_id": {},
	"user_id":             {},
	"created_at":          {},
}

// InsertLog posts one audit row. On an unknown-column rejection it retries
// once with the safe column subset so schema drift degrades the row instead
// of losing it.
func (c *Client) InsertLog(ctx context.Context, row storage.AuditRow) error {
	columns := auditRowColumns(row)
	err := c.insertRow(ctx, columns)
	if err == nil {
		return nil
	}
	if !isUnknownColumn(err) {
		return err
	}
	narrowed := make(map[string]interface{}, len(safeAuditColumns))
	for key, value := range columns {
		if _, ok := safeAuditColumns[key]; ok {
			narrowed[key] = value
		}
	}
	return c.insertRow(ctx, narrowed)
}

func (c *Client) insertRow(ctx context.Context, columns map[string]interface{}) error {
	resp, err := c.do(ctx, http.MethodPost, "/"+c.logTable, nil, columns, map[string]string{
		"Prefer": "return=minimal",
	})
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode >= 300 {
		return fmt.Errorf("rest: insert %s: %s", c.logTable, responseError(resp))
	}
	return nil
}

func auditRowColumns(row storage.AuditRow) map[string]interface{} {
	columns := map[string]interface{}{
		"provider":            row.Provider,
		"request_id":          row.RequestID,
		"outcome":             row.Outcome,
		"outcome_reason":      row.OutcomeReason,
		"event_name":          row.EventName,
		"status":              row.Status,
		"approved":            row.Approved,
		"reference":           row.Reference,
		"payer_email":         row.PayerEmail,
		"provider_payment_id": row.ProviderPaymentID,
		"user_id":             row.UserID,
		"days":                row.Days,
		"identity_source":     row.IdentitySource,
		"created_at":          row.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if row.AmountCents != nil {
		columns["amount_cents"] = *row.AmountCents
	}
	if len(row.RawPayload) > 0 && json.Valid(row.RawPayload) {
		columns["raw_payload"] = row.RawPayload
	}
	return columns
}

// isUnknownColumn matches PostgREST's unknown-column rejection: HTTP 400 with
// code PGRST204 or a message naming the column.
func isUnknownColumn(err error) bool {
	msg := strings.ToLower(err.Error())
	if !strings.Contains(msg, "400") {
		return false
	}
	return strings.Contains(msg, "pgrst204") || strings.Contains(msg, "column")
}

// SelectPendingIntents filters the intents table, newest first.
func (c *Client) SelectPendingIntents(ctx context.Context, filter storage.IntentFilter) ([]storage.PendingIntent, error) {
	query := url.Values{}
	if filter.Provider != "" {
		query.Set("provider", "eq."+filter.Provider)
	}
	if filter.Status != "" {
		query.Set("status", "eq."+string(filter.Status))
	}
	if filter.AmountCents > 0 {
		query.Set("amount_cents", "eq."+strconv.FormatInt(filter.AmountCents, 10))
	}
	if !filter.Since.IsZero() {
		query.Set("created_at", "gte."+filter.Since.UTC().Format(time.RFC3339))
	}
	query.Set("order", "created_at.desc")
	if filter.Limit > 0 {
		query.Set("limit", strconv.Itoa(filter.Limit))
	}

	resp, err := c.do(ctx, http.MethodGet, "/"+c.intentsTable, query, nil, nil)
	if err != nil {
		return nil, err
	}
	defer drain(resp)
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("rest: select %s: %s", c.intentsTable, responseError(resp))
	}

	var rows []intentRow
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("rest: select %s: decode: %w", c.intentsTable, err)
	}
	intents := make([]storage.PendingIntent, 0, len(rows))
	for _, row := range rows {
		intents = append(intents, row.toIntent())
	}
	return intents, nil
}

type intentRow struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Days        int       `json:"days"`
	AmountCents int64     `json:"amount_cents"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func (r intentRow) toIntent() storage.PendingIntent {
	return storage.PendingIntent{
		ID:          r.ID,
		UserID:      r.UserID,
		Days:        r.Days,
		AmountCents: r.AmountCents,
		Status:      storage.IntentStatus(r.Status),
		CreatedAt:   r.CreatedAt,
	}
}

// PatchIntent updates the intent only while it still has the expected status.
// The representation Prefer header makes the response carry the updated rows,
// whose count is the conditional-update result the caller inspects.
func (c *Client) PatchIntent(ctx context.Context, id string, expected, next storage.IntentStatus, fields map[string]interface{}) (int64, error) {
	query := url.Values{}
	query.Set("id", "eq."+id)
	query.Set("status", "eq."+string(expected))

	body := make(map[string]interface{}, len(fields)+1)
	for key, value := range fields {
		if t, ok := value.(time.Time); ok {
			value = t.UTC().Format(time.RFC3339Nano)
		}
		body[key] = value
	}
	body["status"] = string(next)

	resp, err := c.do(ctx, http.MethodPatch, "/"+c.intentsTable, query, body, map[string]string{
		"Prefer": "return=representation",
	})
	if err != nil {
		return 0, err
	}
	defer drain(resp)
	if resp.StatusCode >= 300 {
		return 0, fmt.Errorf("rest: patch %s: %s", c.intentsTable, responseError(resp))
	}

	var rows []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return 0, fmt.Errorf("rest: patch %s: decode: %w", c.intentsTable, err)
	}
	return int64(len(rows)), nil
}

// Ping checks reachability for the diag endpoint. Any response below 500
// means the service answered.
func (c *Client) Ping(ctx context.Context) error {
	query := url.Values{}
	query.Set("limit", "1")
	query.Set("select", "id")
	resp, err := c.do(ctx, http.MethodGet, "/"+c.intentsTable, query, nil, nil)
	if err != nil {
		return err
	}
	defer drain(resp)
	if resp.StatusCode >= 500 {
		return fmt.Errorf("rest: ping: %s", responseError(resp))
	}
	return nil
}

func (c *Client) Close() error { return nil }

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}, headers map[string]string) (*http.Response, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("rest: encode %s: %w", path, err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("rest: build %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
		if req.Header.Get("Authorization") == "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rest: %s %s: %w", method, path, err)
	}
	return resp, nil
}

func responseError(resp *http.Response) string {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Sprintf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}
