// Package trust verifies sender domains against a local allowlist and DNS
// authentication records, and applies the post-scan trusted-sender downgrade.
package trust

import (
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/norm"
)

// DomainOf extracts the domain part of an address, empty if there is none.
func DomainOf(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return email[at+1:]
}

// NormalizeDomain lowercases, strips a leading www., and converts the domain
// to its ASCII punycode form for comparison. The second return reports
// whether NFKC normalization changed the input, which marks a disguised
// domain that must never be trusted.
func NormalizeDomain(domain string) (string, bool) {
	if domain == "" {
		return "", false
	}
	domain = strings.ToLower(strings.TrimSpace(domain))
	domain = strings.TrimPrefix(domain, "www.")

	nfkc := norm.NFKC.String(domain)
	changed := nfkc != domain

	ascii, err := idna.Lookup.ToASCII(nfkc)
	if err != nil {
		return nfkc, changed
	}
	return ascii, changed
}
