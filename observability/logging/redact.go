package logging

import (
	"log/slog"
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
	"kind":      {},
	"operation": {},
	"method":    {},
	"height":    {},
	"addr":      {},
}

// Substrings marking a key whose value must never reach a log sink.
var secretMarkers = []string{"secret", "passphrase", "password", "token", "dsn", "header", "authorization", "private"}

// Keys carrying account addresses; logged shortened.
var addressKeys = map[string]struct{}{
	"admin":       {},
	"keystore":    {},
	"caller":      {},
	"account":     {},
	"beneficiary": {},
	"borrower":    {},
}

// IsAllowlisted reports whether the provided key is exempt from automatic redaction.
func IsAllowlisted(key string) bool {
	_, ok := redactionAllowlist[normalizeKey(key)]
	return ok
}

// MaskField returns a slog.Attr that redacts the supplied value unless the key is
// explicitly allowlisted. Empty values pass through unchanged.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || IsAllowlisted(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}

// ShortAddress keeps the first and last six characters of an address.
func ShortAddress(addr string) string {
	if len(addr) <= 16 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-6:]
}

// redactAttr masks secrets and shortens addresses in every record passing
// through the handler.
func redactAttr(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() != slog.KindString {
		return attr
	}
	key := normalizeKey(attr.Key)
	if _, ok := redactionAllowlist[key]; ok {
		return attr
	}
	value := attr.Value.String()
	if value == "" || value == RedactedValue {
		return attr
	}
	for _, marker := range secretMarkers {
		if strings.Contains(key, marker) {
			return slog.String(attr.Key, RedactedValue)
		}
	}
	if _, ok := addressKeys[key]; ok {
		return slog.String(attr.Key, ShortAddress(value))
	}
	return attr
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
