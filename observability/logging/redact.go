package logging

import (
	"log/slog"
	"sort"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

var redactionAllowlist = map[string]struct{}{
	"service":   {},
	"env":       {},
	"message":   {},
	"severity":  {},
	"timestamp": {},
	"error":     {},
	"reason":    {},
	"component": {},
	"method":    {},
	"route":     {},
	"status":    {},
	"pool":      {},
	"invariant": {},
}

// Keys that are masked automatically by the handler installed in Setup.
var sensitiveKeys = map[string]struct{}{
	"authorization": {},
	"token":         {},
	"bearer":        {},
	"secret":        {},
	"jwt_secret":    {},
	"password":      {},
	"database_url":  {},
}

// IsAllowlisted reports whether the provided key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := redactionAllowlist[normalized]
	return ok
}

// IsSensitive reports whether values logged under key are always masked.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	_, ok := sensitiveKeys[normalized]
	return ok
}

// RedactionAllowlist returns a sorted copy of the log keys that are allowed to be emitted
// without redaction. Tests use this to ensure sensitive keys remain masked.
func RedactionAllowlist() []string {
	keys := make([]string, 0, len(redactionAllowlist))
	for key := range redactionAllowlist {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// MaskValue returns the canonical redacted placeholder for non-empty values. Empty values
// are returned unchanged to avoid introducing noise in logs.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField returns a slog.Attr that redacts the supplied value unless the key is
// explicitly allowlisted. Key casing is preserved.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// MaskParticipant keeps the human-readable prefix and the last four
// characters of a bech32 address so log lines stay correlatable without
// exposing full identities.
func MaskParticipant(addr string) string {
	trimmed := strings.TrimSpace(addr)
	sep := strings.LastIndexByte(trimmed, '1')
	if sep <= 0 || len(trimmed)-sep-1 <= 4 {
		return MaskValue(trimmed)
	}
	return trimmed[:sep+1] + "…" + trimmed[len(trimmed)-4:]
}
