package secret

import (
	"fmt"
	"regexp"
	"strings"
)

var refPattern = regexp.MustCompile(`^\$\{([^:}]+):([^}]+)\}$`)

// ParseRef parses a ${type:name} reference.
func ParseRef(input string) (Ref, error) {
	m := refPattern.FindStringSubmatch(strings.TrimSpace(input))
	if len(m) != 3 {
		return Ref{}, fmt.Errorf("invalid secret reference %q, expected ${type:name}", input)
	}
	return Ref{
		Type:     strings.TrimSpace(m[1]),
		Name:     strings.TrimSpace(m[2]),
		Original: input,
	}, nil
}

// IsRef reports whether input is a complete secret reference.
func IsRef(input string) bool {
	return refPattern.MatchString(strings.TrimSpace(input))
}

// Mask hides all but the last four characters of a secret for display.
func Mask(value string) string {
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}
