// Package identity canonicalizes email addresses so that the rest of the
// system can compare participants reliably.
package identity

import (
	"net/mail"
	"strings"
)

// canonicalDomains are provider domains whose local parts are aliased:
// dots are insignificant and "+tag" suffixes address the same mailbox.
var canonicalDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
}

// Normalize returns the canonical comparable form of an email address:
// trimmed and lowercased, with provider-specific alias folding applied
// for domains in the canonicalization set. Normalization is idempotent.
func Normalize(address string) string {
	addr := strings.ToLower(strings.TrimSpace(address))

	at := strings.LastIndex(addr, "@")
	if at <= 0 || at == len(addr)-1 {
		return addr
	}

	local, domain := addr[:at], addr[at+1:]
	if !canonicalDomains[domain] {
		return addr
	}

	if plus := strings.Index(local, "+"); plus >= 0 {
		local = local[:plus]
	}
	local = strings.ReplaceAll(local, ".", "")

	return local + "@" + domain
}

// ExtractAddress parses a single header value of the form
// "Display Name <addr>" (or a bare address) and returns the address part.
// Returns "" when nothing parseable is present.
func ExtractAddress(headerValue string) string {
	headerValue = strings.TrimSpace(headerValue)
	if headerValue == "" {
		return ""
	}

	if parsed, err := mail.ParseAddress(headerValue); err == nil {
		return parsed.Address
	}

	// Tolerate malformed display names: fall back to the bracketed part,
	// or the raw value when no brackets are present.
	if open := strings.LastIndex(headerValue, "<"); open >= 0 {
		if close := strings.Index(headerValue[open:], ">"); close > 0 {
			return strings.TrimSpace(headerValue[open+1 : open+close])
		}
	}

	return headerValue
}

// ExtractAllAddresses parses a comma-separated header value into its
// component addresses, tolerating bare addresses and malformed entries.
func ExtractAllAddresses(headerValue string) []string {
	headerValue = strings.TrimSpace(headerValue)
	if headerValue == "" {
		return nil
	}

	if parsed, err := mail.ParseAddressList(headerValue); err == nil {
		addrs := make([]string, 0, len(parsed))
		for _, p := range parsed {
			addrs = append(addrs, p.Address)
		}
		return addrs
	}

	// Fallback: split on commas and extract each entry individually.
	var addrs []string
	for _, part := range strings.Split(headerValue, ",") {
		if addr := ExtractAddress(part); addr != "" {
			addrs = append(addrs, addr)
		}
	}
	return addrs
}

// AliasSet is the local account's set of canonical addresses, including
// the primary address.
type AliasSet map[string]struct{}

// NewAliasSet normalizes and collects the given addresses.
func NewAliasSet(addresses ...string) AliasSet {
	set := make(AliasSet, len(addresses))
	for _, a := range addresses {
		if n := Normalize(a); n != "" {
			set[n] = struct{}{}
		}
	}
	return set
}

// Contains reports whether the address (after normalization) belongs to
// the local account.
func (s AliasSet) Contains(address string) bool {
	_, ok := s[Normalize(address)]
	return ok
}
