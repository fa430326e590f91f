package seq

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CanonicalName normalizes an entity name for identity comparison.
// Unicode is NFC-normalized and surrounding whitespace is dropped, so
// two names that render identically cannot refer to different entities.
func CanonicalName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// reservedName reports whether a name is reserved for compiler-internal
// blocks. User-defined windows and jumps may not use the underscore
// prefix; the compiler claims it for the start marker and the terminator.
func reservedName(name string) bool {
	return strings.HasPrefix(name, "_")
}
