package instance

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// sanitizeName keeps endpoint names portable across socket paths and pipe names.
func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	if b.Len() == 0 {
		return "app"
	}
	return b.String()
}

// scopeHash distinguishes data directories so separate profiles do not share a lock.
func scopeHash(scope string) string {
	sum := sha256.Sum256([]byte(scope))
	return hex.EncodeToString(sum[:4])
}
