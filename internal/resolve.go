package internal

import (
	"context"
	"log"
	"strconv"
	"time"

	"payhooks/pkg/storage"
)

var (
	metadataUserPaths = []string{
		"$.uid", "$.data.uid",
		"$.user_id", "$.data.user_id",
		"$.userId", "$.data.userId",
		"$.metadata.uid", "$.data.metadata.uid",
		"$.metadata.user_id", "$.data.metadata.user_id",
	}
	metadataUserKeys = []string{"uid", "user_id", "userid"}

	metadataDaysPaths = []string{
		"$.days", "$.data.days",
		"$.plan_days", "$.data.plan_days",
		"$.planDays", "$.data.planDays",
		"$.metadata.days", "$.data.metadata.days",
	}
	metadataDaysKeys = []string{"days", "plan_days", "plandays"}
)

// Resolution is the outcome of one identity-resolution pass.
type Resolution struct {
	UserID string
	Days   int
	// Source names the strategy that produced the user id: reference,
	// reference_scan, metadata, email, or intent.
	Source string
	// IntentID is set when a pending intent was claimed for this request.
	IntentID string
	// FailureReason carries the last strategy's diagnostic when no user
	// could be resolved.
	FailureReason string
}

// Resolver determines which user and how many days of credit an event
// corresponds to, via an ordered fallback chain that stops at the first
// success. Ambiguity is always resolution failure, never a guess.
type Resolver struct {
	Accounts   storage.AccountService
	Intents    storage.IntentStore
	Provider   string
	Window     time.Duration
	Limit      int
	AmountDays map[int64]int
	Limits     ScanLimits
	Logger     *log.Logger
}

// DaysFromAmount maps an exact cents amount to a plan length. It only ever
// fills in days; it never supplies a user id.
func (r *Resolver) DaysFromAmount(amountCents int64) (int, bool) {
	days, ok := r.AmountDays[amountCents]
	return days, ok
}

func (r *Resolver) Resolve(ctx context.Context, root interface{}, fields Fields) Resolution {
	// 1. reference parsing
	if ref, ok := ParseReference(fields.ReferenceRaw); ok {
		return Resolution{UserID: ref.UserID, Days: ref.Days, Source: "reference"}
	}

	// 2. payload-wide reference scan
	if text, ok := FindStringByPattern(root, refAnyPattern, r.Limits); ok {
		if ref, ok := ExtractReference(text); ok {
			return Resolution{UserID: ref.UserID, Days: ref.Days, Source: "reference_scan"}
		}
	}

	// 3. direct metadata fields
	userID := ""
	if value, ok := firstPath(root, metadataUserPaths); ok && LooksLikeUserID(asString(value)) {
		userID = asString(value)
	}
	if userID == "" {
		if value, ok := FindByKey(root, metadataUserKeys, r.Limits); ok && LooksLikeUserID(asString(value)) {
			userID = asString(value)
		}
	}
	days := r.metadataDays(root)

	// 4. amount-to-days table, days only
	if days <= 0 && fields.AmountCents != nil {
		if mapped, ok := r.DaysFromAmount(*fields.AmountCents); ok {
			days = mapped
		}
	}

	if userID != "" {
		return Resolution{UserID: userID, Days: days, Source: "metadata"}
	}

	// 5. email resolution
	if fields.PayerEmail != "" && r.Accounts != nil {
		resolved, err := r.Accounts.ResolveUserByEmail(ctx, fields.PayerEmail)
		if err != nil {
			if r.Logger != nil {
				r.Logger.Printf("resolve user by email failed: %v", err)
			}
		} else if resolved != "" {
			return Resolution{UserID: resolved, Days: days, Source: "email"}
		}
	}

	// 6. pending-intent matching
	claimed := r.matchIntent(ctx, fields)
	if claimed.UserID != "" {
		if days > 0 {
			claimed.Days = days
		}
		return claimed
	}

	return Resolution{Days: days, FailureReason: claimed.FailureReason}
}

func (r *Resolver) metadataDays(root interface{}) int {
	if value, ok := firstPath(root, metadataDaysPaths); ok {
		if days, ok := asDays(value); ok {
			return days
		}
	}
	if value, ok := FindByKey(root, metadataDaysKeys, r.Limits); ok {
		if days, ok := asDays(value); ok {
			return days
		}
	}
	return 0
}

// matchIntent requires exactly one pending intent for the provider with a
// matching amount inside the window, then claims it with a conditional
// update. Zero or multiple candidates, and lost claim races, are all "no
// safe match".
func (r *Resolver) matchIntent(ctx context.Context, fields Fields) Resolution {
	if r.Intents == nil {
		return Resolution{FailureReason: ReasonNoCandidate}
	}
	if fields.AmountCents == nil || *fields.AmountCents <= 0 {
		return Resolution{FailureReason: ReasonInvalidAmount}
	}

	limit := r.Limit
	if limit <= 0 {
		limit = 5
	}
	window := r.Window
	if window <= 0 {
		window = time.Hour
	}

	candidates, err := r.Intents.SelectPendingIntents(ctx, storage.IntentFilter{
		Provider:    r.Provider,
		Status:      storage.IntentPending,
		AmountCents: *fields.AmountCents,
		Since:       time.Now().UTC().Add(-window),
		Limit:       limit,
	})
	if err != nil {
		if r.Logger != nil {
			r.Logger.Printf("select pending intents failed: %v", err)
		}
		return Resolution{FailureReason: ReasonNoCandidate}
	}
	if len(candidates) == 0 {
		return Resolution{FailureReason: ReasonNoCandidate}
	}
	if len(candidates) > 1 {
		return Resolution{FailureReason: ReasonMultipleCandidates}
	}

	intent := candidates[0]
	if intent.ID == "" || intent.UserID == "" {
		return Resolution{FailureReason: ReasonInvalidIntentRow}
	}

	updated, err := r.Intents.PatchIntent(ctx, intent.ID, storage.IntentPending, storage.IntentMatched, map[string]interface{}{
		"matched_at": time.Now().UTC(),
	})
	if err != nil {
		if r.Logger != nil {
			r.Logger.Printf("intent claim failed: %v", err)
		}
		return Resolution{FailureReason: ReasonClaimFailed}
	}
	if updated != 1 {
		// lost the race to a concurrent delivery
		return Resolution{FailureReason: ReasonClaimFailed}
	}

	return Resolution{UserID: intent.UserID, Days: intent.Days, Source: "intent", IntentID: intent.ID}
}

func asDays(value interface{}) (int, bool) {
	switch typed := value.(type) {
	case float64:
		if typed == float64(int(typed)) {
			return int(typed), true
		}
	case int:
		return typed, true
	case string:
		days, err := strconv.Atoi(asString(typed))
		if err == nil {
			return days, true
		}
	}
	return 0, false
}
