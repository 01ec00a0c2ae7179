package finding

import (
	"strings"

	"github.com/traceprint/api/pkg/domain/provider"
)

// keyMaxLen bounds the sanitized discriminator segment of a finding key.
// Long, similar seeds can collide past this length; widening it or hashing
// the seed changes key stability across existing data, so the bound stays
// until a migration is scheduled.
const keyMaxLen = 20

// Key derives the deterministic dedup key for a finding from its provider,
// kind, and a caller-selected unique discriminator. Two raw records that
// represent the same fact must map to the same key; the same three inputs
// always yield the identical string.
func Key(providerID provider.ID, kind Kind, seed string) string {
	return string(providerID) + ":" + string(kind) + ":" + sanitizeSeed(seed)
}

// sanitizeSeed lowercases the seed, strips everything outside [a-z0-9],
// and truncates to keyMaxLen.
func sanitizeSeed(seed string) string {
	var b strings.Builder
	b.Grow(keyMaxLen)
	for _, r := range strings.ToLower(seed) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() >= keyMaxLen {
				break
			}
		}
	}
	return b.String()
}
