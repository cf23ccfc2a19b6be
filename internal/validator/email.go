package validator

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// Dot-atom local part, or a quoted string.
	emailUserPattern = regexp.MustCompile(
		"(?i)^[-!#$%&'*+/=?^_`{}|~0-9a-z]+(\\.[-!#$%&'*+/=?^_`{}|~0-9a-z]+)*$" +
			`|^"([\x01-\x08\x0b\x0c\x0e-\x1f!#-\[\]-\x7f]|\\[\x01-\x09\x0b\x0c\x0e-\x7f])*"$`)

	// One or more labels followed by an alphabetic-ish TLD of 2..63 chars.
	emailDomainPattern = regexp.MustCompile(
		`(?i)^((?:[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?\.)+)(?:[a-z0-9-]{2,63})$`)

	emailLiteralPattern = regexp.MustCompile(`^\[[0-9.:a-fA-F]+\]$`)
)

// ValidEmail reports whether s is a syntactically valid address of the form
// user@domain. "localhost" is accepted as a bare domain.
func ValidEmail(s string) bool {
	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 {
		return false
	}
	user, domain := s[:at], s[at+1:]

	if !emailUserPattern.MatchString(user) {
		return false
	}
	if domain == "localhost" || emailLiteralPattern.MatchString(domain) {
		return true
	}
	if strings.HasSuffix(domain, "-") {
		return false
	}
	return emailDomainPattern.MatchString(domain)
}

func maxCharsMessage(n int) string {
	return fmt.Sprintf("Ensure this field has no more than %d characters.", n)
}

func minCharsMessage(n int) string {
	return fmt.Sprintf("Ensure this field has at least %d characters.", n)
}
