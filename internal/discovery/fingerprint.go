package discovery

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// Fingerprint derives the stable dedup key for a posting: a SHA-256 digest
// over the normalized title, company, location and the source id. The same
// posting re-surfaced by a source always hashes to the same value.
func Fingerprint(title, company, location, sourceID string) string {
	key := strings.Join([]string{
		normalizeField(title),
		normalizeField(company),
		normalizeField(location),
		sourceID,
	}, "|")
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// normalizeField lowercases, strips punctuation and collapses whitespace so
// that cosmetic variance between re-posts does not defeat deduplication.
func normalizeField(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
