package conversation

import (
	"regexp"
	"strings"
)

// Entity variable names set by ExtractEntities.
const (
	EntityEmail = "email"
	EntityPhone = "phone"
	EntityName  = "name"
)

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)
	phonePattern = regexp.MustCompile(`\+?\(?\d[\d\s().\-]{6,}\d`)
	namePattern  = regexp.MustCompile(`(?:[Mm]y name is|[Tt]his is|[Ii] am|I'm|[Cc]all me)\s+([A-Z][A-Za-z'\-]+(?:\s+[A-Z][A-Za-z'\-]+)?)`)
)

// ExtractEntities returns the email address, phone number and name found in
// text, keyed by EntityEmail, EntityPhone and EntityName. Only the first
// match of each kind is returned.
func ExtractEntities(text string) map[string]any {
	entities := map[string]any{}
	if email := emailPattern.FindString(text); email != "" {
		entities[EntityEmail] = email
	}
	if phone := phonePattern.FindString(text); phone != "" && countDigits(phone) >= 7 {
		entities[EntityPhone] = strings.TrimSpace(phone)
	}
	if match := namePattern.FindStringSubmatch(text); match != nil {
		entities[EntityName] = match[1]
	}
	return entities
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}
