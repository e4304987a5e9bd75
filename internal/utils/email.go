package utils

import "strings"

// ExtractDomainFromEmail accepts a bare address or the "Name <addr>" form.
func ExtractDomainFromEmail(email string) string {
	email = strings.TrimSpace(email)
	if start, end := strings.LastIndex(email, "<"), strings.LastIndex(email, ">"); start >= 0 && end > start {
		email = email[start+1 : end]
	}

	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}
