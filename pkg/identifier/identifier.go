// Package identifier generates collision-resistant external identifiers for
// business records (report IDs, cross-organization study IDs). IDs are not
// globally unique by construction; callers that store them under a uniqueness
// constraint must handle the rare insert conflict by regenerating.
package identifier

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// SuffixLength is the number of random characters appended to every ID.
const SuffixLength = 6

// New returns an identifier of the form
// PREFIX-TOKEN1-...-TOKENn-<base36 unix millis>-<random suffix>.
// The prefix and scope tokens are upper-cased and stripped of separator
// characters so the ID stays parseable.
func New(prefix string, scopeTokens ...string) string {
	parts := make([]string, 0, len(scopeTokens)+3)
	parts = append(parts, sanitize(prefix))
	for _, t := range scopeTokens {
		if s := sanitize(t); s != "" {
			parts = append(parts, s)
		}
	}
	parts = append(parts, strconv.FormatInt(time.Now().UnixMilli(), 36))
	parts = append(parts, randomSuffix(SuffixLength))
	return strings.Join(parts, "-")
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - ('a' - 'A')
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return -1
		}
	}, s)
	return s
}

func randomSuffix(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand never fails on supported platforms; fall back to a
		// timestamp-derived suffix rather than panicking in a request path.
		return fmt.Sprintf("%06x", time.Now().UnixNano()&0xffffff)
	}
	for i, b := range buf {
		buf[i] = suffixAlphabet[int(b)%len(suffixAlphabet)]
	}
	return string(buf)
}
