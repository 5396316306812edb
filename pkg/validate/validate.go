// Package validate holds the pure input predicates shared by the store-side
// mutations and the HTTP layer. Both layers must apply identical rules, so
// the patterns live here and nowhere else.
package validate

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	// Swiss subscriber numbers: +41 followed by exactly nine digits, the
	// first of which is never zero.
	swissPhone = regexp.MustCompile(`^\+41[1-9][0-9]{8}$`)

	// Kosovo subscriber numbers: +383 followed by eight or nine digits,
	// the first of which is 4-9.
	kosovoPhone = regexp.MustCompile(`^\+383[4-9][0-9]{7,8}$`)

	// Permissive local@domain.tld shape.
	email = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	// The existence-check endpoint accepts numbers with a single optional
	// space between digit groups. This pattern is intentionally distinct
	// from the strict one above.
	groupedPhone = regexp.MustCompile(`^(\+41\s?[0-9]{2}\s?[0-9]{3}\s?[0-9]{2}\s?[0-9]{2}|\+383\s?[0-9]{2}\s?[0-9]{3}\s?[0-9]{3})$`)
)

// Phone reports whether s is a valid Swiss or Kosovo phone number.
func Phone(s string) bool {
	return swissPhone.MatchString(s) || kosovoPhone.MatchString(s)
}

// GroupedPhone reports whether s is a Swiss or Kosovo phone number with
// optional spaces between digit groups, as accepted by /users/check.
func GroupedPhone(s string) bool {
	return groupedPhone.MatchString(s)
}

// Email reports whether s has a plausible email shape. Callers skip this
// check entirely when the email is absent.
func Email(s string) bool {
	return email.MatchString(s)
}

// Name reports whether s is non-empty after trimming.
func Name(s string) bool {
	return strings.TrimSpace(s) != ""
}

// MessageRole reports whether s is one of the two accepted roles.
func MessageRole(s string) bool {
	return s == "user" || s == "assistant"
}

// MessageContent reports whether s is non-empty. Content is stored as sent,
// without trimming.
func MessageContent(s string) bool {
	return s != ""
}

// URL reports whether s parses as an absolute URL. Used for avatar URLs.
func URL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}
