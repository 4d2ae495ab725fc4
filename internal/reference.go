package internal

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// The reference string is caller-supplied and threaded through the provider
// untouched; it carries the user id and plan length in one of three
// grammars. The uuid token is validated by format only (36 hex/dash chars).
const uuidToken = `[0-9a-fA-F-]{36}`

var (
	refDaysPattern   = regexp.MustCompile(`^user_(` + uuidToken + `)_days_([0-9]+)$`)
	refShortPattern  = regexp.MustCompile(`^user_(` + uuidToken + `)_([0-9]+)$`)
	refLegacyPattern = regexp.MustCompile(`^user_(` + uuidToken + `)_(premium|standard)$`)

	// unanchored variant used to fish references out of arbitrary strings
	// during payload-wide scans
	refAnyPattern = regexp.MustCompile(`user_` + uuidToken + `_(?:days_[0-9]+|[0-9]+|premium|standard)`)
)

// ParsedReference is the identity recovered from a reference string.
type ParsedReference struct {
	UserID string
	Days   int
}

// ParseReference matches raw against the known reference grammars:
// user_<uuid>_days_<N>, user_<uuid>_<N>, and the legacy
// user_<uuid>_premium|standard (30 and 0 days respectively).
func ParseReference(raw string) (ParsedReference, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ParsedReference{}, false
	}
	if m := refDaysPattern.FindStringSubmatch(raw); m != nil {
		days, err := strconv.Atoi(m[2])
		if err != nil {
			return ParsedReference{}, false
		}
		return ParsedReference{UserID: m[1], Days: days}, true
	}
	if m := refLegacyPattern.FindStringSubmatch(raw); m != nil {
		days := 0
		if m[2] == "premium" {
			days = 30
		}
		return ParsedReference{UserID: m[1], Days: days}, true
	}
	if m := refShortPattern.FindStringSubmatch(raw); m != nil {
		days, err := strconv.Atoi(m[2])
		if err != nil {
			return ParsedReference{}, false
		}
		return ParsedReference{UserID: m[1], Days: days}, true
	}
	return ParsedReference{}, false
}

// ExtractReference pulls the first embedded reference out of a longer
// string, for payload-wide scans where the grammar may sit inside a URL or
// description field.
func ExtractReference(raw string) (ParsedReference, bool) {
	match := refAnyPattern.FindString(raw)
	if match == "" {
		return ParsedReference{}, false
	}
	return ParseReference(match)
}

// LooksLikeUserID reports whether a metadata value has the shape of a user
// id. Only the canonical dashed form is accepted; uuid.Parse alone would
// also admit braced, urn and undashed spellings the account store never
// produces.
func LooksLikeUserID(raw string) bool {
	raw = strings.TrimSpace(raw)
	if len(raw) != 36 {
		return false
	}
	_, err := uuid.Parse(raw)
	return err == nil
}
