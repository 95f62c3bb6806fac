package invite

import "regexp"

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether email has the local-part@domain.tld shape.
func ValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}
