package registry

import "strings"

// SimilarityKey computes the key two package names collide under: the
// similarity check treats names as equivalent if they
// produce the same key after lowercasing and dropping underscores and
// hyphens. It must match the regexp_replace-based SQL expression
// internal/metadatastore/postgres uses (lowercase, strip every '-' and
// '_') so the in-memory NameTracker and the database agree on every
// decision.
func SimilarityKey(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", "")
	name = strings.ReplaceAll(name, "_", "")
	return name
}

// ValidIdentifier reports whether name has the legal package-identifier
// shape: 1-64 chars, matching `^[a-zA-Z_][a-zA-Z0-9_]*$`.
func ValidIdentifier(name string) bool {
	if len(name) == 0 || len(name) > 64 {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// reservedWords are language keywords a package name may never equal.
var reservedWords = map[string]struct{}{
	"assert": {}, "async": {}, "await": {}, "break": {}, "case": {}, "catch": {},
	"class": {}, "const": {}, "continue": {}, "default": {}, "do": {}, "else": {},
	"enum": {}, "extends": {}, "false": {}, "final": {}, "finally": {}, "for": {},
	"if": {}, "in": {}, "is": {}, "new": {}, "null": {}, "rethrow": {}, "return": {},
	"super": {}, "switch": {}, "this": {}, "throw": {}, "true": {}, "try": {}, "var": {},
	"void": {}, "while": {}, "with": {}, "yield": {},
}

// IsReservedWord reports whether name is a reserved word under the
// normalization rule used by the similarity check (case-insensitive).
func IsReservedWord(name string) bool {
	_, ok := reservedWords[strings.ToLower(name)]
	return ok
}
