package consumer

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
	nonSlugRegex    = regexp.MustCompile(`[^a-z0-9]+`)
)

// sanitizeString collapses whitespace and trims the result.
func sanitizeString(value string) string {
	value = whitespaceRegex.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}

// normalizeEmail lowercases and trims the provided email.
func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

// derivedID builds a deterministic node id from a display name, so that every event
// naming the same merchant, category, tag or location merges onto one node.
func derivedID(prefix string, parts ...string) string {
	joined := strings.ToLower(sanitizeString(strings.Join(parts, " ")))
	slug := strings.Trim(nonSlugRegex.ReplaceAllString(joined, "-"), "-")
	if slug == "" {
		if joined == "" {
			return ""
		}
		slug = hashValue(joined)[:16]
	}
	return prefix + "-" + slug
}

// hashValue returns a deterministic SHA-256 hash for the provided value.
func hashValue(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
