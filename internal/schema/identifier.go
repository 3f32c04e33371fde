package schema

import (
	"encoding/hex"
	"slices"
	"strings"

	"github.com/zeebo/blake3"
)

// Identifier builds a deterministic constraint name such as "users_index_email_3f2a9c1d".
// The hash covers the table, the kind and the sorted column list, so the same declaration
// always yields the same name. Names longer than maxLength are truncated before the hash.
func Identifier(table, kind string, columns []string, maxLength int) string {
	sorted := slices.Clone(columns)
	slices.Sort(sorted)
	sum := blake3.Sum256([]byte(table + "\x00" + kind + "\x00" + strings.Join(sorted, "\x00")))
	suffix := hex.EncodeToString(sum[:4])

	parts := append([]string{table, kind}, columns...)
	base := sanitizeIdentifier(strings.Join(parts, "_"))
	if maxLength > 0 && len(base)+1+len(suffix) > maxLength {
		base = strings.TrimRight(base[:max(0, maxLength-1-len(suffix))], "_")
	}
	return base + "_" + suffix
}

func sanitizeIdentifier(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			return r
		}
		return '_'
	}, name)
}
