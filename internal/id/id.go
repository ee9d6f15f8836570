package id

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
)

// DefaultTreeID is the id every invalid tree id collapses to.
const DefaultTreeID = "default-skill-tree"

const charset = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"
const hashLen = 5
const maxLen = 64
const maxSlugLen = 40

var validPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Valid reports whether s can be used as a tree id and therefore as a file name.
func Valid(s string) bool {
	return validPattern.MatchString(s)
}

// Sanitize returns s unchanged if it is a valid id, otherwise DefaultTreeID.
func Sanitize(s string) string {
	if Valid(s) {
		return s
	}
	return DefaultTreeID
}

// New derives a fresh tree id from a display name: a slug of the name plus a
// random suffix, e.g. "backend-roadmap-K7Q2M".
func New(name string) (string, error) {
	b := make([]byte, hashLen)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating id: %w", err)
	}
	for i := range b {
		b[i] = charset[int(b[i])%len(charset)]
	}
	slug := Slug(name)
	if slug == "" {
		slug = "tree"
	}
	id := slug + "-" + string(b)
	if len(id) > maxLen {
		return "", fmt.Errorf("generated id %q exceeds %d chars", id, maxLen)
	}
	return id, nil
}

// Slug lowercases name and collapses every run of characters outside
// [a-z0-9] into a single hyphen.
func Slug(name string) string {
	var sb strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			sb.WriteRune(r)
			dash = false
			continue
		}
		if !dash && sb.Len() > 0 {
			sb.WriteByte('-')
			dash = true
		}
	}
	s := strings.TrimSuffix(sb.String(), "-")
	if len(s) > maxSlugLen {
		s = strings.TrimSuffix(s[:maxSlugLen], "-")
	}
	return s
}
