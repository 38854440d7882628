// Package enrich holds the outbound contact/company enrichment clients:
// Apollo-style person and organization lookups cached in the K/V store, and
// a Brandfetch-style logo fetcher.
package enrich

import "strings"

// personalDomains are freemail providers; company enrichment is pointless
// for them.
var personalDomains = map[string]struct{}{
	"gmail.com":   {},
	"yahoo.com":   {},
	"hotmail.com": {},
	"outlook.com": {},
	"icloud.com":  {},
	"me.com":      {},
}

// DomainFromEmail returns the lowercased domain part of an email address,
// or "" when the address has no domain.
func DomainFromEmail(email string) string {
	_, domain, found := strings.Cut(email, "@")
	if !found {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(domain))
}

// IsPersonalDomain reports whether domain belongs to a freemail provider.
func IsPersonalDomain(domain string) bool {
	_, ok := personalDomains[strings.ToLower(domain)]
	return ok
}

// CleanDomain strips protocol, www prefix, and trailing slashes.
func CleanDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	return strings.TrimRight(d, "/")
}
